package errors

import (
	"errors"
	"fmt"
)

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	Code       int
	Message    string
	StatusCode int
}

func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		Code:       statusCode,
		Message:    message,
		StatusCode: statusCode,
	}
}

func (e HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, statusCode int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == statusCode
}

// IsRetryable reports whether a failed request may succeed when repeated.
func IsRetryable(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return true
	}
	return he.StatusCode == 408 || he.StatusCode == 429 || he.StatusCode >= 500
}
