// Package apperr defines the error taxonomy shared by the store, service and
// HTTP layers. Every failure the caller can act on is one of a small set of
// kinds; anything else is reported as an internal error.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable, machine-readable category of an error.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindInvalidInput    Kind = "invalid_input"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindTooManyRequests Kind = "too_many_requests"
	KindInternal        Kind = "internal"
)

// ConflictKind identifies which uniqueness rule a write violated.
type ConflictKind string

const (
	DuplicatePhone    ConflictKind = "duplicate_phone"
	DuplicateSlot     ConflictKind = "duplicate_slot"
	DuplicateUsername ConflictKind = "duplicate_username"
)

// Error is the concrete error type carried across layers.
type Error struct {
	Kind     Kind
	Conflict ConflictKind
	Message  string
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on Kind (and ConflictKind when the target sets one), so callers can
// write errors.Is(err, apperr.ErrConflict) or errors.Is(err, apperr.Conflict(apperr.DuplicatePhone, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Conflict == "" || t.Conflict == e.Conflict
}

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrTooManyRequests = &Error{Kind: KindTooManyRequests}
)

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func InvalidInput(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func TooManyRequests(msg string) *Error {
	return &Error{Kind: KindTooManyRequests, Message: msg}
}

// Conflict builds a uniqueness-violation error of the given sub-kind.
func Conflict(kind ConflictKind, msg string) *Error {
	return &Error{Kind: KindConflict, Conflict: kind, Message: msg}
}

// Internal wraps an unexpected failure. The cause is logged, never rendered.
func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}

// As extracts an *Error from err, if there is one in the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
