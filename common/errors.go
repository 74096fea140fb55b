// Package common holds cross-cutting types shared by every component:
// the error-kind taxonomy, id generation, and a clock seam for tests.
package common

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies an error into one of a small set of outcomes, so
// callers can map it to an HTTP status or a retry decision without
// string matching.
type Kind string

const (
	// NotFound: row/entity missing.
	NotFound Kind = "NotFound"
	// Unauthorized: caller is not the resource owner.
	Unauthorized Kind = "Unauthorized"
	// InvalidInput: schema or range violation.
	InvalidInput Kind = "InvalidInput"
	// PreconditionFailed: a state-machine guard failed (a legitimate race).
	PreconditionFailed Kind = "PreconditionFailed"
	// InsufficientFunds: a wallet balance condition failed.
	InsufficientFunds Kind = "InsufficientFunds"
	// TransientExternal: an AI/email/bus call failed; non-fatal.
	TransientExternal Kind = "TransientExternal"
	// Fatal: a storage transaction failed non-deterministically; retry at
	// the platform level.
	Fatal Kind = "Fatal"
)

// Error is the typed error every component returns, carrying one of the
// Kind values above. It wraps an optional cause with github.com/pkg/errors
// so Fatal errors retain a stack trace for operators.
type Error struct {
	Kind Kind
	Message string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message to an existing error, wrapping the
// cause with a pkg/errors stack trace recorded at the call.
func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, cause: pkgerrors.WithStack(cause)}
}

// KindOf extracts the Kind of err, defaulting to Fatal for errors that
// didn't originate from this package (an unclassified error is always
// treated as one that must propagate for platform retry).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Fatal
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
