// Package errors provides structured errors that carry a category, a client-safe
// message and an HTTP status mapping.
package errors

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// ErrorType is the category of an error. It selects the HTTP status and log level.
type ErrorType string

const (
	TypeRateLimited ErrorType = "rate_limited" // 429
	TypeInternal    ErrorType = "internal"     // 500
	TypeUnavailable ErrorType = "unavailable"  // 503
)

// Error is a structured error. Message is safe to show to clients; Cause is not.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error

	// RetryAfter is set on rate_limited and unavailable errors when the caller
	// can usefully try again later.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, as the Retry-After
// header requires. It returns 0 when no delay is set.
func (e *Error) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// RateLimitedError reports that the caller must wait retryAfter before trying again.
func RateLimitedError(message string, retryAfter time.Duration) *Error {
	e := newError(TypeRateLimited, message, nil)
	e.RetryAfter = retryAfter
	return e
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

func UnavailableError(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

// ErrorResponse is the JSON body sent to clients.
type ErrorResponse struct {
	Error      string    `json:"error"`
	Type       ErrorType `json:"type"`
	RetryAfter int       `json:"retryAfter,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:      e.Message,
		Type:       e.Type,
		RetryAfter: e.RetryAfterSeconds(),
	}
}

// AsStructuredError returns err's *Error if it has one and wraps anything else
// as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}
