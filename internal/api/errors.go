package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-relay/internal/auth"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
)

// Error represents a structured error response.
//
// Success is always false; it keeps the body readable by web clients that
// only look at the success flag.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// Common error codes.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeUnauthorized  = "unauthorised"
	ErrCodeConflict      = "conflict"
	ErrCodeInternal      = "internal_error"
	ErrCodeValidation    = "validation_error"
	ErrCodeBrokerOffline = "broker_unavailable"
	ErrCodeUnavailable   = "service_unavailable"
)

// Messages the web client matches on.
const (
	msgNotAuthenticated = "You are not authenticated"
	msgUsernameTaken    = "This username is already taken"
	msgEmailTaken       = "User with this email is already existed"
	msgWrongCredentials = "Wrong username or password"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps errors from the auth, relay and mqtt packages to a
// response. Anything unrecognised is a 500 and is not echoed to the client.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *auth.ValidationError

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, verr.Error())
	case errors.Is(err, auth.ErrUsernameExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, msgUsernameTaken)
	case errors.Is(err, auth.ErrEmailExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, msgEmailTaken)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, msgWrongCredentials)
	case errors.Is(err, relay.ErrUnauthorized), errors.Is(err, auth.ErrUnauthenticated):
		writeUnauthorized(w, msgNotAuthenticated)
	case errors.Is(err, relay.ErrInvalidCommand):
		writeBadRequest(w, "command payload must be a JSON value")
	case errors.Is(err, mqtt.ErrNotConnected),
		errors.Is(err, mqtt.ErrPublishFailed),
		errors.Is(err, mqtt.ErrTimeout),
		errors.Is(err, mqtt.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeBrokerOffline, "broker unavailable, command not sent")
	case errors.Is(err, mqtt.ErrInvalidTopic), errors.Is(err, mqtt.ErrInvalidQoS):
		s.logger.Error("broker rejected command parameters, check mqtt.topics.command and mqtt.qos",
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, "command topic misconfigured, command not sent")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Debug("request abandoned",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "request cancelled, command not sent")
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, "internal server error")
	}
}
