// Package errors defines AppError, the error type handlers render into the JSON
// envelope, and the sentinels shared across packages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a client facing failure. Code and Message are stable for a given
// sentinel; Details carries per-occurrence diagnostics such as a provider's error
// text. Internal is logged but never rendered.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// New declares a sentinel.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	default:
		return e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches any AppError with the same code, so derived copies still satisfy
// errors.Is against their sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e != nil && t != nil && e.Code == t.Code
}

// WithInternal returns a copy carrying err as the logged cause.
func (e *AppError) WithInternal(err error) *AppError {
	return e.derive(func(c *AppError) { c.Internal = err })
}

// WithDetails returns a copy carrying client visible diagnostics.
func (e *AppError) WithDetails(details string) *AppError {
	return e.derive(func(c *AppError) { c.Details = details })
}

// WithMessage returns a copy with a different human readable message.
func (e *AppError) WithMessage(message string) *AppError {
	return e.derive(func(c *AppError) { c.Message = message })
}

func (e *AppError) derive(edit func(*AppError)) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	edit(&cpy)
	return &cpy
}

var (
	ErrBadRequest     = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrNotFound       = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrRateLimit      = New("RATE_LIMIT_EXCEEDED", "Too many requests, please slow down", http.StatusTooManyRequests)
	ErrInternalServer = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrBadGateway     = New("BAD_GATEWAY", "Upstream service failed", http.StatusBadGateway)
)

// FromError returns the AppError in err's chain, or ErrInternalServer wrapping err.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest is ErrBadRequest with a specific message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}
