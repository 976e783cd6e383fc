// Package tdberr defines the error-kind taxonomy shared by every tdbkit
// component (spec §7: ERROR HANDLING DESIGN).
//
// Errors from the public operations are *tdberr.Error values with one of
// the Kind values below. The store adapters (hashstore/btreestore) wrap a
// failed tkrzw status as KindMiscIO (KindInvalidArgument for precondition
// and infeasible statuses), with an error holding the status message as
// its Cause. errors.Is/As work against both the Kind sentinels and the
// wrapped cause.
package tdberr

import (
	"errors"
	"fmt"
)

// Kind classifies the failure reported by a tdbkit operation.
type Kind int

const (
	// KindNone is the zero value; never attached to a real error.
	KindNone Kind = iota
	// KindInvalidArgument marks a caller error: empty primary key, the
	// reserved empty column name, a malformed tuning token, an unknown
	// operator name, and similar.
	KindInvalidArgument
	// KindNoRecord marks a lookup that found nothing (Get/Out on a
	// missing primary key, dropping an index that is not declared).
	KindNoRecord
	// KindKeepViolation marks a PutKeep against an existing primary key.
	KindKeepViolation
	// KindMiscIO marks an I/O failure from the hash store or an index
	// tree that isn't cleanly classified elsewhere.
	KindMiscIO
	// KindThreading marks a method-lock acquisition failure (e.g. the
	// handle was closed concurrently, or a lock was configured and its
	// primitive reported corruption).
	KindThreading
	// KindUnlink marks a failure deleting a backing file (index VOID via
	// btreestore.Remove, and hashstore.Remove).
	KindUnlink
	// KindRename marks a failure renaming a backing file into place. No
	// current operation returns it; Optimize rebuilds files in place.
	KindRename
	// KindExternal wraps the failure of an external program run by
	// Copy's "@command" destination.
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid-argument"
	case KindNoRecord:
		return "no-record"
	case KindKeepViolation:
		return "keep-violation"
	case KindMiscIO:
		return "misc-io"
	case KindThreading:
		return "threading"
	case KindUnlink:
		return "unlink"
	case KindRename:
		return "rename"
	case KindExternal:
		return "external"
	default:
		return "none"
	}
}

// Error is the concrete error type returned by tdbkit's public API. It
// records which Kind of failure occurred, a human-readable message, and
// (for KindExternal, and optionally others) the underlying cause.
type Error struct {
	Cause   error
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tdbkit: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("tdbkit: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, letting callers
// write errors.Is(err, tdberr.New(tdberr.KindNoRecord, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error that carries cause as its Unwrap target.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and
// KindNone otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}
