// Package httpx maps internal errors onto a uniform HTTP response shape:
// every error response is {success:false, error_message}.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"petnet-coordinator/internal/telemetry"
)

// HTTPError is an error with an associated HTTP status: validation errors
// map to 401, authorization failures to 403, and entity-lookup misses and
// unexpected errors both default to 500.
type HTTPError struct {
	status  int
	message string
	details map[string]string
}

func (e *HTTPError) Error() string { return e.message }
func (e *HTTPError) Status() int   { return e.status }

// WithFields attaches field-level validation detail.
func (e *HTTPError) WithFields(d map[string]string) *HTTPError {
	e.details = d
	return e
}

// BadRequest returns a 401 HTTPError for malformed input, classed the same
// as an authentication failure.
func BadRequest(msg string) *HTTPError {
	return &HTTPError{status: http.StatusUnauthorized, message: msg}
}

// Unauthorized returns a 401 HTTPError (missing/invalid JWT).
func Unauthorized(msg string) *HTTPError {
	return &HTTPError{status: http.StatusUnauthorized, message: msg}
}

// Forbidden returns a 403 HTTPError (authenticated but not permitted).
func Forbidden(msg string) *HTTPError {
	return &HTTPError{status: http.StatusForbidden, message: msg}
}

// NotFound returns a 500 HTTPError for an entity-lookup miss.
func NotFound(msg string) *HTTPError {
	return &HTTPError{status: http.StatusInternalServerError, message: msg}
}

// Internal returns a 500 HTTPError wrapping an unexpected error.
func Internal(err error) *HTTPError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &HTTPError{status: http.StatusInternalServerError, message: msg}
}

type envelope struct {
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// Write writes err to w as a {success:false, error_message} body.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	var he *HTTPError
	if errors.As(err, &he) {
		write(w, he.status, he.message, he.details)
		return
	}
	write(w, http.StatusInternalServerError, err.Error(), nil)
}

func write(w http.ResponseWriter, status int, msg string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	telemetry.Event("api_error", map[string]string{"status": strconv.Itoa(status)})
	_ = json.NewEncoder(w).Encode(envelope{Success: false, ErrorMessage: msg, Details: details})
}

// WriteJSON writes payload as a 200 JSON body. It adds no fields of its own,
// so handlers put success:true into payload themselves.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
