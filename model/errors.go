package model

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
// Callers should branch on Kind rather than matching error strings.
type Kind string

const (
	KindNotFound            Kind = "NotFound"
	KindInvalidState        Kind = "InvalidState"
	KindIncompleteAggregate Kind = "IncompleteAggregate"
	KindStoreUnavailable    Kind = "StoreUnavailable"
	KindInvalid             Kind = "Invalid"
	KindInternal            Kind = "Internal"
)

// Error is the engine's structured error type.
//
// ID names the attempt key or result id the error concerns, when there is one.
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	ID      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.ID != "" {
		msg = fmt.Sprintf("%s: %s", e.ID, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, id, format string, args ...any) error {
	return &Error{Kind: kind, ID: id, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around cause. A nil cause yields a plain *Error.
func Wrap(kind Kind, id, msg string, cause error) error {
	return &Error{Kind: kind, ID: id, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
