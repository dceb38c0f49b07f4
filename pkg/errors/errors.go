// Package errors provides coded domain errors so callers can branch on error
// class without string matching. Stores return sentinels (pkg/sentinel);
// services wrap them with a code and an operator-readable message.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies an error for status mapping and operator display.
type Code string

const (
	// CodeValidation marks data problems that block transmission (preflight).
	CodeValidation Code = "validation"
	// CodeTransport marks network or auth failures against the remote endpoint.
	CodeTransport Code = "transport"
	// CodeRejected marks a hard business rejection from the regulator.
	CodeRejected Code = "rejected"
	// CodeTimeout marks a missing response within the polling deadline.
	CodeTimeout Code = "timeout"

	CodeNotFound Code = "not_found"
	CodeConflict Code = "conflict"
	CodeInternal Code = "internal"
)

// Error carries a code, an operator-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}
