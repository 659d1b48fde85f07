package client

import (
	"fmt"
	"net/http"

	interrors "github.com/turfbook/turf-client/internal/errors"
)

// APIError is a non-2xx response from the backend. Message is the server
// supplied message, or the HTTP status text when the body carried none.
type APIError struct {
	StatusCode int
	Message    string
	Method     string
	Path       string
	RequestID  string

	kind          error
	serverMessage bool
}

func newAPIError(statusCode int, message, method, path, requestID string, kind error) *APIError {
	serverMessage := message != ""
	if !serverMessage {
		message = http.StatusText(statusCode)
	}
	return &APIError{
		StatusCode:    statusCode,
		Message:       message,
		Method:        method,
		Path:          path,
		RequestID:     requestID,
		kind:          kind,
		serverMessage: serverMessage,
	}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Unwrap exposes the error class: ErrInvalidCredentials for a 401 from the
// login endpoint, ErrSessionExpired for any other 401, ErrServer otherwise.
func (e *APIError) Unwrap() error {
	return e.kind
}

// ServerMessage returns the backend's message for err, or fallback when err
// carries none.
func ServerMessage(err error, fallback string) string {
	var apiErr *APIError
	if interrors.As(err, &apiErr) && apiErr.serverMessage {
		return apiErr.Message
	}
	return fallback
}
