package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the order (or driver) id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a racing accept already claimed the order.
	ErrConflict = errors.New("order already taken")
	// ErrInvalidTransition means the requested status is not a legal
	// forward step from the order's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError rejects malformed or unresolvable input before any
// state change.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamError wraps a collaborator failure (profile lookup). It is
// surfaced to the caller as a client-visible error and never retried.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }
