// Package apperrors implements the application's typed error taxonomy:
// every error that can reach an HTTP response carries a stable code, an
// HTTP status, a retry hint, and user-facing suggestions.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error classification.
type Code string

const (
	CodeValidation       Code = "validation_error"
	CodeUnauthorized     Code = "unauthorized"
	CodeForbidden        Code = "forbidden"
	CodeNotFound         Code = "not_found"
	CodeConflict         Code = "conflict"
	CodeRateLimited      Code = "rate_limited"
	CodeConnectionFailed Code = "connection_failed"
	CodeTimeout          Code = "timeout"
	CodeUpstreamError    Code = "upstream_error"
	CodeInternal         Code = "internal_error"
)

// Error is the taxonomy's concrete type. It wraps an optional underlying
// cause without leaking its message to the client; callers render Message
// to users and log the wrapped Err at the call site if needed.
type Error struct {
	Code        Code     `json:"code"`
	Message     string   `json:"message"`
	Status      int      `json:"-"`
	Retryable   bool     `json:"retryable"`
	Suggestions []string `json:"suggestions,omitempty"`
	Err         error    `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a taxonomy error with no wrapped cause.
func New(code Code, status int, message string, retryable bool, suggestions ...string) *Error {
	return &Error{Code: code, Status: status, Message: message, Retryable: retryable, Suggestions: suggestions}
}

// Wrap attaches the taxonomy to an existing error without discarding it.
func Wrap(err error, code Code, status int, message string, retryable bool, suggestions ...string) *Error {
	return &Error{Code: code, Status: status, Message: message, Retryable: retryable, Suggestions: suggestions, Err: err}
}

// As reports whether err (or something it wraps) is an *Error, returning it.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsRetryable reports whether err is a taxonomy error marked retryable.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

// Constructors for the conditions named in the error taxonomy (§7).

func Validation(message string, suggestions ...string) *Error {
	return New(CodeValidation, http.StatusBadRequest, message, false, suggestions...)
}

func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, http.StatusUnauthorized, message, false,
		"verify the Authorization header or API key is present and well-formed")
}

func Forbidden(message string) *Error {
	return New(CodeForbidden, http.StatusForbidden, message, false,
		"check the account's role and tier permit this operation")
}

func NotFound(resource string) *Error {
	return New(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", resource), false)
}

func Conflict(message string) *Error {
	return New(CodeConflict, http.StatusConflict, message, false)
}

func RateLimited(tier string, retryAfterSeconds int) *Error {
	return New(CodeRateLimited, http.StatusTooManyRequests,
		fmt.Sprintf("rate limit exceeded for %s tier", tier), true,
		fmt.Sprintf("retry after %d seconds, or upgrade your tier", retryAfterSeconds))
}

func ConnectionFailed(err error, connectionName string) *Error {
	return Wrap(err, CodeConnectionFailed, http.StatusBadGateway,
		fmt.Sprintf("could not connect to %q", connectionName), true,
		"verify host, port, and credentials for the registered database connection")
}

func Timeout(err error, operation string) *Error {
	return Wrap(err, CodeTimeout, http.StatusRequestTimeout,
		fmt.Sprintf("%s timed out", operation), true)
}

func UpstreamError(err error, what string) *Error {
	return Wrap(err, CodeUpstreamError, http.StatusBadGateway, what, true)
}

func Internal(err error) *Error {
	return Wrap(err, CodeInternal, http.StatusInternalServerError,
		"an internal error occurred", false)
}
