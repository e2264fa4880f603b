package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoBaseURL is returned when the client has no base URL configured.
	ErrNoBaseURL = errors.New("api: base URL required")

	// ErrSessionNotFound is returned for 404 responses on session routes.
	ErrSessionNotFound = errors.New("api: session not found")
)

// APIError represents an error response from the backend.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error detail from the backend, if any.
	Message string

	// Route identifies which endpoint returned the error.
	Route string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api [%s]: HTTP %d: %s", e.Route, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api [%s]: HTTP %d", e.Route, e.StatusCode)
}

// IsNotFound returns true if the resource was not found (HTTP 404).
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request may be retried by the caller.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.IsServerError()
}
