// Package errs defines the typed error taxonomy shared by all squadron
// components. Every public operation returns either a success value or one
// of these errors; expected conditions never surface as panics.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers deciding how to react.
type Kind string

const (
	// KindInvalidInput is a bad argument (empty id, out-of-range progress).
	// The caller's fault; retrying the same call will not help.
	KindInvalidInput Kind = "invalid_input"
	// KindNotFound is an unknown task, agent, or escalation id.
	KindNotFound Kind = "not_found"
	// KindCircularDependency is a rejected edge insertion. The graph is untouched.
	KindCircularDependency Kind = "circular_dependency"
	// KindConflictDetected means one or more requested resources are held.
	// The request has been queued and will be retried automatically.
	KindConflictDetected Kind = "conflict_detected"
	// KindDeadlockDetected means the requesting agent is part of a cyclic wait.
	KindDeadlockDetected Kind = "deadlock_detected"
	// KindResourceUnavailable means no eligible agent or resource exists.
	KindResourceUnavailable Kind = "resource_unavailable"
	// KindSystemError is an unexpected internal failure.
	KindSystemError Kind = "system_error"
	// KindEscalationFailed means the escalation workflow itself could not complete.
	KindEscalationFailed Kind = "escalation_failed"
)

// Error is a typed squadron error.
type Error struct {
	// Kind classifies the failure.
	Kind Kind
	// Op is the operation that failed, e.g. "graph.AddDependency".
	Op string
	// Msg is the human-readable detail.
	Msg string
	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s [%s]: %v", e.Op, e.Msg, e.Kind, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s [%s]", e.Op, e.Msg, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s [%s]", e.Op, e.Kind)
	}
}

// Unwrap returns the wrapped cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the same call later can succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindConflictDetected, KindResourceUnavailable, KindSystemError:
		return true
	default:
		return false
	}
}

// E constructs a typed error with a formatted message.
func E(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap wraps an underlying cause with a kind and operation.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WrapMsg wraps a cause and adds a formatted message.
func WrapMsg(kind Kind, op string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err, or KindSystemError for untyped errors.
// Returns the empty Kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSystemError
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
