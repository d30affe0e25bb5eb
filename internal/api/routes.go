package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tabone/drone/internal/auth"
)

// MaxMoveDuration bounds a single movement request.
const MaxMoveDuration = 10 * time.Second

const flightPrefix = "/api/v1/flight/"

// RegisterRoutes registers every API route on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/state", s.protect(s.handleState, auth.ScopeRead))
	mux.HandleFunc("/api/v1/telemetry", s.protect(s.handleTelemetry, auth.ScopeTelemetry))
	mux.HandleFunc(flightPrefix+"move", s.protect(s.handleMove, auth.ScopeControl))
	mux.HandleFunc(flightPrefix, s.protect(s.handleFlight, auth.ScopeControl))
}

func (s *Server) protect(h http.HandlerFunc, scopes ...string) http.HandlerFunc {
	if s.authMiddleware == nil {
		return h
	}
	return s.authMiddleware.RequireScope(scopes...)(h)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		"Only "+method+" method is allowed", nil)
	return false
}

func unavailable(w http.ResponseWriter, what string) {
	WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", what+" not available", nil)
}

// handleHealth handles GET /api/v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	status := "ok"
	health := map[string]interface{}{
		"uptimeSec": time.Since(s.startTime).Seconds(),
	}
	if s.ports.State != nil {
		health["mode"] = s.ports.State.Snapshot().Mode
	}
	if s.ports.Scheduler != nil {
		if err := s.ports.Scheduler.Err(); err != nil {
			status = "degraded"
			health["commandError"] = err.Error()
		}
	}
	health["status"] = status

	if status != "ok" {
		writeResponse(w, http.StatusServiceUnavailable, SuccessResponse(health))
		return
	}
	WriteSuccess(w, health)
}

// handleState handles GET /api/v1/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.ports.State == nil {
		unavailable(w, "Navdata state")
		return
	}

	data := map[string]interface{}{
		"navdata": s.ports.State.Snapshot(),
	}
	if s.ports.Scheduler != nil {
		commands := map[string]interface{}{
			"sequence": s.ports.Scheduler.Seq(),
			"queued":   s.ports.Scheduler.Len(),
		}
		if err := s.ports.Scheduler.Err(); err != nil {
			commands["error"] = err.Error()
		}
		data["commands"] = commands
	}
	WriteSuccess(w, data)
}

// handleTelemetry handles GET /api/v1/telemetry (SSE).
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.ports.Telemetry == nil {
		unavailable(w, "Telemetry service")
		return
	}
	s.ports.Telemetry.ServeSSE(w, r)
}

// handleFlight handles POST /api/v1/flight/{action}.
func (s *Server) handleFlight(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if s.ports.Flight == nil {
		unavailable(w, "Flight control")
		return
	}

	f := s.ports.Flight
	var run func(context.Context) error
	action := strings.TrimPrefix(r.URL.Path, flightPrefix)
	switch action {
	case "takeoff":
		run = f.Takeoff
	case "land":
		run = f.Land
	case "mayday":
		run = f.Mayday
	case "trim":
		// Retained trims would pile up one per request.
		run = f.TrimOnce
	case "hover":
		run = func(context.Context) error { f.Hover(); return nil }
	default:
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "Unknown flight action", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeouts.Command)
	defer cancel()

	log := s.logger.WithField("action", action)
	start := time.Now()
	if err := run(ctx); err != nil {
		log.WithError(err).Warn("flight command failed")
		writeAPIError(w, err)
		return
	}
	log.WithField("elapsed", time.Since(start)).Info("flight command confirmed")
	WriteSuccess(w, map[string]string{"action": action})
}

type moveRequest struct {
	Direction  string `json:"direction"`
	DurationMs int64  `json:"durationMs"`
}

// handleMove handles POST /api/v1/flight/move.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if s.ports.Flight == nil {
		unavailable(w, "Flight control")
		return
	}

	var req moveRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST",
			"Malformed JSON or unknown fields", nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Trailing data after JSON object", nil)
		return
	}

	if req.DurationMs < 1 || req.DurationMs > MaxMoveDuration.Milliseconds() {
		WriteError(w, http.StatusBadRequest, "INVALID_RANGE",
			"durationMs must be between 1 and 10000", nil)
		return
	}
	d := time.Duration(req.DurationMs) * time.Millisecond

	move := s.movement(req.Direction)
	if move == nil {
		WriteError(w, http.StatusBadRequest, "INVALID_RANGE", "Unknown direction", nil)
		return
	}
	move(d)
	WriteSuccess(w, req)
}

func (s *Server) movement(direction string) func(time.Duration) {
	f := s.ports.Flight
	switch direction {
	case "forward":
		return f.MoveForward
	case "back":
		return f.MoveBack
	case "left":
		return f.MoveLeft
	case "right":
		return f.MoveRight
	case "up":
		return f.MoveUp
	case "down":
		return f.MoveDown
	case "spinLeft":
		return f.SpinLeft
	case "spinRight":
		return f.SpinRight
	}
	return nil
}
