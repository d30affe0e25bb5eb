package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tabone/drone/internal/auth"
	"github.com/tabone/drone/internal/logging"
)

// DefaultCommandTimeout bounds how long a flight request waits for the
// vehicle to confirm the command.
const DefaultCommandTimeout = 10 * time.Second

// Ports groups the engine components the server reads from and drives.
// A nil port answers its routes with 503 UNAVAILABLE.
type Ports struct {
	State     StatePort
	Scheduler SchedulerPort
	Telemetry TelemetryPort
	Flight    FlightPort
}

// Timeouts configures the HTTP server. WriteTimeout applies to the
// telemetry stream as well, so zero is the usual setting.
type Timeouts struct {
	Read    time.Duration
	Write   time.Duration
	Idle    time.Duration
	Command time.Duration
}

// Server represents the HTTP API server.
type Server struct {
	httpServer     *http.Server
	ports          Ports
	authMiddleware *auth.Middleware
	logger         logrus.FieldLogger
	startTime      time.Time
	timeouts       Timeouts
}

// NewServer creates a new API server. Routes are unauthenticated when
// authMiddleware is nil.
func NewServer(ports Ports, authMiddleware *auth.Middleware, timeouts Timeouts, log logrus.FieldLogger) *Server {
	if timeouts.Command <= 0 {
		timeouts.Command = DefaultCommandTimeout
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		ports:          ports,
		authMiddleware: authMiddleware,
		logger:         logging.Component(log, "api"),
		startTime:      time.Now(),
		timeouts:       timeouts,
	}
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Start listens on addr and serves until Stop. It returns once the
// listener is bound; serve errors are logged.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.timeouts.Read,
		WriteTimeout: s.timeouts.Write,
		IdleTimeout:  s.timeouts.Idle,
	}

	s.logger.WithField("addr", ln.Addr().String()).Info("api listening")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("api server stopped")
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
