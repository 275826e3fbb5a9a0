// Package domainerrors carries coded domain errors from services to transports.
//
// Services return *Error values (optionally wrapping a cause) so that handlers can
// translate them into HTTP responses without inspecting messages. Stores do not
// use this package; they return sentinel facts from pkg/platform/sentinel which
// services translate.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure.
type Code string

const (
	CodeInvalidInput        Code = "invalid_input"
	CodeDuplicateKey        Code = "duplicate_key"
	CodeNotFound            Code = "not_found"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeConflict            Code = "conflict"
	CodeUnavailable         Code = "unavailable"
	CodeTimeout             Code = "timeout"
	CodeBadRequest          Code = "bad_request"
	CodeInternal            Code = "internal_error"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost *Error in the chain carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// MessageOf returns the client-safe message of a coded error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
