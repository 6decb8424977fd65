// Package bterrors is the error taxonomy for the backtest engine and
// worker, following spec.md §7.
//
// Fatal kinds unwind to the worker loop, which marks the run FAILED and
// continues to the next run. Rejection is the one non-fatal kind: it is
// logged at WARN and dropped, never propagated out of a run, mirroring how
// the teacher's risk.RejectionReason is a local, swallowed value rather
// than a returned error.
package bterrors

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of spec.md §7's taxonomy an Error belongs to.
type Kind string

const (
	ConfigInvalid    Kind = "CONFIG_INVALID"
	NoBarsFound      Kind = "NO_BARS_FOUND"
	StrategyInvalid  Kind = "STRATEGY_INVALID"
	StrategyRuntime  Kind = "STRATEGY_RUNTIME"
	EngineUsage      Kind = "ENGINE_USAGE"
	PersistenceError Kind = "PERSISTENCE_ERROR"
	WorkerTransient  Kind = "WORKER_TRANSIENT"
)

// Error is a fatal-to-the-run error carrying its taxonomy Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a bare Error of the given Kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a bare Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var be *Error
	for errors.As(err, &be) {
		if be.Kind == kind {
			return true
		}
		err = be.Err
	}
	return false
}

// Rejection is a local, recoverable order-level rejection (spec.md §7's
// OrderRejected). It is never returned from a run's driving loop — callers
// log it at WARN and drop the order, exactly as the teacher's
// risk.RejectionReason is logged and swallowed rather than surfaced.
type Rejection struct {
	Rule    string
	Message string
}

func (r Rejection) Error() string {
	return fmt.Sprintf("order rejected [%s]: %s", r.Rule, r.Message)
}
