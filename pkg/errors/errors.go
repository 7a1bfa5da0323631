// Package errors defines the typed failures the directory API reports to its
// clients. Every failure carries a stable code, an HTTP status and a message
// safe to show in the UI.
//
// Directory failures map onto the sentinels as follows:
//
//   - a form that breaks the field rules is ErrValidation (400) and the store is
//     never called;
//   - a rejected create, update or delete is ErrStoreWrite (502); writes are not
//     retried and the caller decides what to show;
//   - a broken live subscription is ErrStoreSubscription (503); the last good
//     snapshot stays on screen;
//   - an unknown student or export file is ErrNotFound;
//   - a directory that has not received its first snapshot, or a full export
//     queue, is ErrServiceUnavailable.
//
// ErrCacheMiss never reaches a client. The Redis read-through layer uses it to
// fall back to the store.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a failure with a client-facing code, status and message. Err keeps
// the underlying cause for logs and is never serialised.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, ErrStoreWrite)
// holds for every wrapped store write failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// With wraps cause in a copy of e carrying message. An empty message keeps the
// sentinel's default text.
func (e *Error) With(cause error, message string) *Error {
	if message == "" {
		message = e.Message
	}
	return Wrap(cause, e.Code, e.Status, message)
}

// New creates an Error without a cause.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap creates an Error around cause.
func Wrap(cause error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: cause}
}

var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	// ErrConflict rejects a dialog action that the current deletion state does
	// not accept.
	ErrConflict   = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal   = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	ErrStoreWrite         = New("STORE_WRITE_ERROR", http.StatusBadGateway, "record store rejected the write")
	ErrStoreSubscription  = New("STORE_SUBSCRIPTION_ERROR", http.StatusServiceUnavailable, "record store subscription unavailable")
	ErrServiceUnavailable = New("SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "service unavailable")

	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError returns the *Error inside err, or ErrInternal wrapping err when the
// chain has none.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.With(err, "")
}

// Clone copies err, replacing its message when one is given.
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
