// Package trackererr implements the sum-type error design called for by
// the distributed tracker: a fixed set of error kinds, each optionally
// carrying a chained cause and a diagnostic string, with no inheritance.
package trackererr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind identifies which of the tracker's error categories an Error belongs
// to. These are kinds, not concrete types: callers switch on Kind rather
// than type-asserting.
type Kind int

const (
	Unknown Kind = iota
	// UnknownMachine means the id was not present in the cluster state.
	UnknownMachine
	// NoShards means the sharding scheme was asked to resolve a key with
	// zero available entries.
	NoShards
	// Transient means a network or quota fault; the caller may retry
	// with backoff.
	Transient
	// PermanentRejected means the request was well-formed but refused.
	PermanentRejected
	// Cancelled means cooperative cancellation ended the operation.
	Cancelled
	// Corrupted means a serialization mismatch; fatal to the affected
	// operation but never to the process.
	Corrupted
)

func (k Kind) String() string {
	switch k {
	case UnknownMachine:
		return "UnknownMachine"
	case NoShards:
		return "NoShards"
	case Transient:
		return "Transient"
	case PermanentRejected:
		return "PermanentRejected"
	case Cancelled:
		return "Cancelled"
	case Corrupted:
		return "Corrupted"
	default:
		return "Unknown"
	}
}

// Error is the tracker's sum-type error: a Kind, a human diagnostic, and
// an optional chained cause.
type Error struct {
	Kind       Kind
	Diagnostic string
	Cause      error
}

// New builds an Error of the given Kind with a formatted diagnostic.
func New(kind Kind, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Diagnostic: msg, Cause: errors.New(msg)}
}

// Wrap builds an Error of the given Kind chaining cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Diagnostic: msg, Cause: errors.Wrap(cause, msg)}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Diagnostic, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Diagnostic)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or Unknown if err is not a *Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return Unknown
}
