// Package prism provides a Go client for the PRISM evaluation API.
package prism

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error represents an error from the PRISM API with the HTTP status code
// and the server's error envelope.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any

	// RetryAfter is set on 429 responses.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("prism: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsInvalidInput returns true if the server rejected the request as malformed.
func IsInvalidInput(err error) bool {
	return hasStatus(err, http.StatusBadRequest)
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	return hasStatus(err, http.StatusTooManyRequests)
}

func hasStatus(err error, status int) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == status
	}
	return false
}
