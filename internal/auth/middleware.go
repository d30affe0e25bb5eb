package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Claims are the verified token claims.
type Claims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
	Scopes  []string `json:"scopes"`
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type contextKey struct{}

// Scopes.
const (
	ScopeRead      = "read"
	ScopeControl   = "control"
	ScopeTelemetry = "telemetry"
)

// ErrorWriter writes an error response. The API package supplies its
// envelope writer.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	VerifyToken(token string) (*Claims, error)
}

// Middleware handles authentication and authorization.
type Middleware struct {
	verifier TokenVerifier
	writeErr ErrorWriter
}

// NewMiddleware creates middleware verifying tokens with verifier.
func NewMiddleware(verifier TokenVerifier, writeErr ErrorWriter) *Middleware {
	if writeErr == nil {
		writeErr = plainError
	}
	return &Middleware{verifier: verifier, writeErr: writeErr}
}

// RequireScope authenticates the request and requires every listed scope.
func (m *Middleware) RequireScope(scopes ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r)
			if err != nil {
				m.writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			claims, err := m.verifier.VerifyToken(token)
			if err != nil {
				m.writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
				return
			}

			for _, s := range scopes {
				if !claims.HasScope(s) {
					m.writeErr(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
					return
				}
			}

			next(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, claims)))
		}
	}
}

func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errors.New("invalid Authorization header format")
	}
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

// GetClaimsFromRequest returns the claims stored by RequireScope.
func GetClaimsFromRequest(r *http.Request) *Claims {
	claims, _ := r.Context().Value(contextKey{}).(*Claims)
	return claims
}

func plainError(w http.ResponseWriter, status int, code, message string) {
	http.Error(w, code+": "+message, status)
}
