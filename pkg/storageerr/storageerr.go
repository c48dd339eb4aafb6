// Package storageerr defines the error taxonomy shared by every layer
// of the storage node, from the block store up through the FFI
// request pipeline.
package storageerr

import (
	"errors"
	"fmt"
)

// Kind classifies a storage error so callers can branch on cause
// without string-matching messages.
type Kind string

const (
	NotFound          Kind = "NotFound"
	NotAManifest      Kind = "NotAManifest"
	MalformedManifest Kind = "MalformedManifest"
	InvalidBlock      Kind = "InvalidBlock"
	InvalidCid        Kind = "InvalidCid"
	InvalidMimetype   Kind = "InvalidMimetype"
	QuotaExceeded     Kind = "QuotaExceeded"
	IoFailure         Kind = "IoFailure"
	NetworkFailure    Kind = "NetworkFailure"
	InvalidState      Kind = "InvalidState"
	InvalidArgument   Kind = "InvalidArgument"
	Cancelled         Kind = "Cancelled"
	DispatchFailed    Kind = "DispatchFailed"
	Timeout           Kind = "Timeout"
	Internal          Kind = "Internal"
)

// Sentinel aliases so callers can keep using the standard errors
// package vocabulary against *Error values.
var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
)

// Error is the concrete error type produced by every layer of the
// storage node. Op names the operation that failed (e.g.
// "blockstore.Put"); Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is compare two *Error values by Kind alone, ignoring
// Op and the wrapped cause. Kind itself is a bare string, not an
// error, so callers branch on cause with KindOf/Matches below rather
// than errors.Is(err, storageerr.NotFound).
func (e *Error) Is(target error) bool {
	var other *Error
	if As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Wrap builds a *Error tagging err with kind and the failing
// operation name. Returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// New-style constructors for the common cases that don't wrap an
// underlying error.
func Newf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, defaulting to Internal when err
// is not a *Error (or is nil, in which case it returns "").
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Matches reports whether err is a *Error carrying the given Kind.
func Matches(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the user-facing text of err: the wrapped cause alone,
// without the "Op: Kind: " prefix Error() adds for logs. Callers surfacing
// an error to an external client (a REST body, a CLI message) want this
// instead of Error(). Non-*Error values fall back to err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if As(err, &e) {
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	return err.Error()
}
