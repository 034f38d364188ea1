// Package apperr defines the error taxonomy shared by the API and the
// background jobs.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error.
type Code string

const (
	NotFound    Code = "NOT_FOUND"
	Upstream    Code = "UPSTREAM"
	RateLimited Code = "RATE_LIMITED"
	AuthExpired Code = "AUTH_EXPIRED"
	Storage     Code = "STORAGE"
	Validation  Code = "VALIDATION"
	Conflict    Code = "CONFLICT"
	NotLive     Code = "NOT_LIVE"
	Cancelled   Code = "CANCELLED"
	Internal    Code = "INTERNAL"
)

// Error is a classified error. Cause is kept for errors.Is/As chains.
type Error struct {
	Code    Code
	Message string
	Details any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by code, so errors.Is(err, apperr.New(apperr.NotFound, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New creates a classified error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under code.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithDetails attaches structured details.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or Internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Retryable reports whether a failed call may succeed if repeated.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case Upstream, RateLimited, Storage, Internal:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a code to an HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case Validation:
		return http.StatusBadRequest
	case AuthExpired:
		return http.StatusUnauthorized
	case NotFound, NotLive:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case Upstream, Storage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
