// ABOUTME: Classified transport errors for remote REST calls
// ABOUTME: Carries status code, URL and server message for caller branching

package client

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is a classified remote failure. StatusCode is 0 when the
// request never reached the server (network error, cancelled context).
type TransportError struct {
	StatusCode int
	URL        string
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("server returned %d for %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status from an error chain, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// IsForbidden reports whether the error is an HTTP 403.
func IsForbidden(err error) bool {
	return StatusCode(err) == http.StatusForbidden
}

// IsUnauthorized reports whether the error is an HTTP 401.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}
