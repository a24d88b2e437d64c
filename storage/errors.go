package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
	ErrUnavailable = errors.New("storage: unavailable")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnavailable reports whether err is a retryable store failure.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

// Unavailable wraps a transport-level failure so callers can branch on
// ErrUnavailable while keeping the cause.
func Unavailable(op string, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrUnavailable) {
		return cause
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, cause)
}

// FromContext maps a context error to ErrUnavailable; other errors pass through.
func FromContext(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Unavailable(op, err)
	}
	return err
}
