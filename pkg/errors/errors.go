package errors

import (
	"errors"
	"fmt"
)

// Code is a standardized error code, stable across the codebase and safe to
// branch on (unlike matching substrings of an error message).
type Code string

const (
	CodeInternal       Code = "INTERNAL"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConnection     Code = "CONNECTION"
	CodeConfiguration  Code = "CONFIGURATION"
	CodeUnavailable    Code = "UNAVAILABLE"
)

// AppError is the structured error type used across the engine. Callers that
// need to branch on failure kind (the supervisor's four-layer fault
// classification, the dispatcher's connection-vs-handler split) should use
// errors.As against *AppError and inspect Code, rather than matching on
// Error() text.
type AppError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code, message, and optional cause.
func New(code Code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Wrap wraps err in an AppError, preserving its code if err is itself
// (or wraps) an AppError; otherwise classifies it as CodeInternal.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var existing *AppError
	if errors.As(err, &existing) {
		return &AppError{Code: existing.Code, Message: message, Cause: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Cause: err}
}

// WrapCode wraps err in an AppError with an explicit code, overriding
// whatever code the wrapped error might already carry.
func WrapCode(code Code, err error, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Is reports whether err is an AppError carrying the given code.
func Is(err error, code Code) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// As is a re-export of the standard library's errors.As for callers that
// already import this package and don't want a second import of "errors".
func As(err error, target any) bool {
	return errors.As(err, target)
}
