// Package domainerrors carries coded errors across service and transport
// boundaries. Services return these; transports translate the code to a
// status and a stable machine-readable kind.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is the stable, machine-readable error kind exposed to clients.
type Code string

const (
	CodeNotFound         Code = "not_found"
	CodeAlreadySubmitted Code = "already_submitted"
	CodePersistence      Code = "persistence_failure"
	CodeMalformedInput   Code = "malformed_input"
	CodeUnauthorized     Code = "unauthorized"
	CodeForbidden        Code = "forbidden"
	CodeTimeout          Code = "timeout"
	CodeInternal         Code = "internal_error"
)

// Error is a domain error with a code, a human-readable message and an
// optional underlying cause.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost domain error, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the message of the outermost domain error, or a generic
// message that never leaks the underlying cause.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
