package services

import (
	"errors"
	"fmt"

	"github.com/kartikrastogi18/FitConnect/internal/repository"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindInvalidState Kind = "invalid_state"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// Error is returned by every lifecycle operation. Message is safe to show to
// end users; Err holds the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	sentinel bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any Error of the same kind against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.sentinel {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrInvalidInput = &Error{Kind: KindValidation, Message: "invalid input", sentinel: true}
	ErrNotFound     = &Error{Kind: KindNotFound, Message: "not found", sentinel: true}
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "unauthorized", sentinel: true}
	ErrForbidden    = &Error{Kind: KindForbidden, Message: "forbidden", sentinel: true}
	ErrConflict     = &Error{Kind: KindConflict, Message: "conflict", sentinel: true}
	ErrInvalidState = &Error{Kind: KindInvalidState, Message: "invalid state transition", sentinel: true}
	ErrUpstream     = &Error{Kind: KindUpstream, Message: "upstream service failed", sentinel: true}
)

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func invalidInput(message string) *Error { return newError(KindValidation, message) }
func notFound(message string) *Error     { return newError(KindNotFound, message) }
func forbidden(message string) *Error    { return newError(KindForbidden, message) }
func conflict(message string) *Error     { return newError(KindConflict, message) }
func invalidState(message string) *Error { return newError(KindInvalidState, message) }

// KindOf reports the kind of err. Errors that did not originate in this
// package are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// notFoundOr maps repository.ErrNotFound to a not-found error carrying message
// and passes every other error through.
func notFoundOr(err error, message string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(message)
	}
	return err
}

// PublicMessage is the text that may be shown to a client for err. Internal
// errors never expose their detail.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}
