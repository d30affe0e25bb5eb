package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tabone/drone/internal/command"
)

// APIError is an error with its envelope code and HTTP status.
type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string { return e.Code + ": " + e.Message }

// ToAPIError maps engine errors onto the envelope.
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	var chErr *command.ChannelError

	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, command.ErrPayloadExceeded):
		return &APIError{"BUSY", "Command did not fit in the cycle payload", http.StatusServiceUnavailable}
	case errors.Is(err, command.ErrInvalidCommand):
		return &APIError{"INVALID_COMMAND", "Command rejected by the encoder", http.StatusBadRequest}
	case errors.As(err, &chErr), errors.Is(err, command.ErrSchedulerStopped):
		return &APIError{"UNAVAILABLE", "Command channel is down", http.StatusServiceUnavailable}
	case errors.Is(err, context.DeadlineExceeded):
		return &APIError{"TIMEOUT", "Vehicle did not confirm the command in time", http.StatusGatewayTimeout}
	case errors.Is(err, context.Canceled):
		return &APIError{"CANCELLED", "Request cancelled", http.StatusServiceUnavailable}
	default:
		return &APIError{"INTERNAL", "Internal server error", http.StatusInternalServerError}
	}
}

// writeAPIError writes the envelope for err.
func writeAPIError(w http.ResponseWriter, err error) {
	e := ToAPIError(err)
	WriteError(w, e.StatusCode, e.Code, e.Message, nil)
}
