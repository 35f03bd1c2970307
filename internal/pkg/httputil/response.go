package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sassongal/revWave-sub000/internal/domain"
	"github.com/sassongal/revWave-sub000/internal/pkg/logger"
)

var log = logger.With("httputil")

// ErrorResponse is the standard error envelope for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn("json encode failed", "error", err)
	}
}

func OK(w http.ResponseWriter, data any)      { JSON(w, http.StatusOK, data) }
func Created(w http.ResponseWriter, data any) { JSON(w, http.StatusCreated, data) }
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, data)
}

// NoContent writes a 204 response with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes a JSON error with an optional machine-readable code.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Error: message, Code: code})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "bad_request", message)
}

// FromError maps a service error onto a status code. 4xx responses carry the
// error text; 5xx responses are logged and answered generically.
func FromError(w http.ResponseWriter, err error) {
	var (
		status = http.StatusInternalServerError
		code   = "internal"
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrAlreadySent):
		status, code = http.StatusConflict, "already_sent"
	case errors.Is(err, domain.ErrReconnectRequired), errors.Is(err, domain.ErrNoRefreshToken):
		status, code = http.StatusConflict, "reconnect_required"
	case errors.Is(err, domain.ErrNotConnected):
		status, code = http.StatusConflict, "not_connected"
	case errors.Is(err, domain.ErrEmptyInput):
		status, code = http.StatusBadRequest, "empty_input"
	case errors.As(err, new(*ValidationError)):
		status, code = http.StatusBadRequest, "invalid"
	case errors.Is(err, domain.ErrClientError):
		status, code = http.StatusBadGateway, "provider_rejected"
	case errors.Is(err, domain.ErrExhaustedRetries), errors.Is(err, domain.ErrRefreshFailed):
		status, code = http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	}

	if status >= 500 {
		log.Error("request failed", "status", status, "error", err)
		Error(w, status, code, http.StatusText(status))
		return
	}
	Error(w, status, code, err.Error())
}

// ValidationError marks a request the service rejected as malformed.
type ValidationError struct{ Err error }

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps err so FromError answers 400.
func Invalid(err error) error { return &ValidationError{Err: err} }

// Decode reads JSON from the request body into dst. It writes a 400 and
// returns false on malformed input.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
