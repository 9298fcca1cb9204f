// Package domainerrors defines the error vocabulary shared by services and
// transports. Services return *Error values carrying a Code; transports map the
// Code to a status without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers and transports.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeDuplicateKey       Code = "duplicate_key"
	CodeInvalidTransition  Code = "invalid_transition"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error. Subject names the identifier that caused the
// failure (a propId, userId, query name) when one is known.
type Error struct {
	Code    Code
	Message string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Subject != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Subject)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithSubject returns a copy of e naming the offending identifier.
func (e *Error) WithSubject(subject string) *Error {
	cp := *e
	cp.Subject = subject
	return &cp
}

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// NotFound is shorthand for a not_found error about a specific identifier.
func NotFound(msg, subject string) *Error {
	return &Error{Code: CodeNotFound, Message: msg, Subject: subject}
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is reports whether the outermost *Error in err's chain carries code.
func Is(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// CodeOf returns the outermost code, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}
