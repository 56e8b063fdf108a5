package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed error with HTTP awareness. Status carries the
// upstream status code when the error originates from the remote API.
type Error struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Details []string `json:"details,omitempty"`
	Err     error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so that clones and wraps of a sentinel compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrUnauthorized      = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrSessionRequired   = New("SESSION_REQUIRED", http.StatusUnauthorized, "no active session")
	ErrForbidden         = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound          = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation        = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal          = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrTokenDecode       = New("TOKEN_DECODE_ERROR", http.StatusUnauthorized, "access token could not be decoded")
	ErrLoginFailed       = New("LOGIN_FAILED", http.StatusUnauthorized, "Login failed. Please check your credentials.")
	ErrRefreshFailed     = New("REFRESH_FAILED", http.StatusUnauthorized, "session refresh failed")
	ErrUpstream          = New("UPSTREAM_ERROR", http.StatusBadGateway, "remote API request failed")
	ErrCredentialStore   = New("CREDENTIAL_STORE_ERROR", http.StatusInternalServerError, "credential store failure")
	ErrSessionSuperseded = New("SESSION_SUPERSEDED", http.StatusConflict, "session changed while refreshing")
	ErrCacheMiss         = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Upstream builds an error for a non-2xx response from the remote API.
func Upstream(status int, details []string) *Error {
	e := Clone(ErrUpstream, fmt.Sprintf("remote API responded with status %d", status))
	e.Status = status
	e.Details = details
	return e
}
