// Package apperr defines the domain error taxonomy shared by the services
// and the transports that surface them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error.
type Kind int

const (
	// KindInternal is anything that is not a domain error.
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindValidation
	KindBlocked
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindBlocked:
		return "blocked"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Error is a domain error. Message is written for end users and is surfaced
// verbatim by the transports.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is an *Error of the same kind, so callers can
// write errors.Is(err, apperr.ErrConflict).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrBlocked      = &Error{Kind: KindBlocked}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error { return newf(KindConflict, format, args...) }
func Forbidden(format string, args ...any) *Error { return newf(KindForbidden, format, args...) }
func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }
func Blocked(format string, args ...any) *Error { return newf(KindBlocked, format, args...) }
func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of a domain error. Internal
// errors yield an empty string; callers substitute a generic message.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e != nil && e.Kind != KindInternal {
		return e.Message
	}
	return ""
}
