// Package serrors defines the error kinds surfaced by niftitools and a
// wrapper that carries a kind together with an optional cause.
//
// Kinds decide how far a failure propagates: configuration errors abort the
// whole run, geometry and codec errors abort only the image being processed.
package serrors

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind is a semantic error category created with NewKind.
type Kind interface {
	error
	isKind()
}

type kind struct{ s string }

func (k kind) Error() string { return k.s }
func (k kind) isKind()       {}

// NewKind creates a new error kind sentinel.
func NewKind(name string) Kind { return kind{s: name} }

var (
	// ErrConfiguration marks an unknown operator or an invalid/missing parameter.
	ErrConfiguration = NewKind("configuration error")
	// ErrGeometry marks a numeric failure inside a geometry operator.
	ErrGeometry = NewKind("geometry error")
	// ErrCodec marks a failure to decode or encode an image file.
	ErrCodec = NewKind("codec error")
)

// Error carries a kind, an optional cause and an optional message.
//
// errors.Is matches either the kind or anything in the cause chain.
type Error struct {
	kind Kind
	err  error
	msg  string
}

// With constructs an error of kind k with a formatted message.
func With(k Kind, msgFmt string, args ...any) *Error {
	return &Error{kind: k, msg: fmt.Sprintf(msgFmt, args...)}
}

// Wrap constructs an error of kind k wrapping err.
func Wrap(k Kind, err error, msgFmt string, args ...any) *Error {
	return &Error{kind: k, err: err, msg: fmt.Sprintf(msgFmt, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.msg != "" && e.err != nil:
		return e.kind.Error() + ": " + e.msg + ": " + e.err.Error()
	case e.msg != "":
		return e.kind.Error() + ": " + e.msg
	case e.err != nil:
		return e.kind.Error() + ": " + e.err.Error()
	default:
		return e.kind.Error()
	}
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// Is matches against the kind sentinel or the wrapped cause.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return e == nil && target == nil
	}
	if e.kind != nil && errors.Is(e.kind, target) {
		return true
	}
	if e.err != nil && errors.Is(e.err, target) {
		return true
	}

	return false
}

// Kind returns the kind sentinel.
func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the kind of the first *Error found in err's chain, or nil.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.kind
	}

	return nil
}
