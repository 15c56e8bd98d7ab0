package vwo

import (
	"errors"
	"fmt"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	// ErrSettingsMarker means the settings.js body did not contain the
	// allSettings assignment.
	ErrSettingsMarker = errors.New("settings marker not found in response")
	// ErrNoObject means the marker was not followed by an object literal.
	ErrNoObject = errors.New("settings marker is not followed by an object")
	// ErrUnbalanced means the object literal never closed.
	ErrUnbalanced = errors.New("unbalanced braces in settings object")
	// ErrEmptyPayload means the API returned 2xx without a _data field.
	ErrEmptyPayload = errors.New("empty _data payload")
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("VWO API error: %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("VWO API error: %s", e.Status)
}

// IsRateLimited reports whether err wraps an HTTP 429 response.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// IsCircuitOpen reports whether err was produced by an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// StatusCode extracts the HTTP status from an APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
