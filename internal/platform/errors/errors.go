// Package errors provides the typed error taxonomy shared by repositories,
// services and transport handlers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies an error for callers and transports.
type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodePreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	ErrCodeDispatchFailure    ErrorCode = "DISPATCH_FAILURE"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeInternal           ErrorCode = "INTERNAL"
)

// Error is the structured error returned across package boundaries.
// Details carries enough context (resource, ids, vendors, condition) for the
// calling layer to render an accurate message.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches a key/value pair and returns the same error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps err with a code and message.
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", resource, id)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// InvalidInput reports a rejected input field.
func InvalidInput(field, message string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, message)).
		WithDetail("field", field)
}

// PreconditionFailed reports a violated business precondition.
func PreconditionFailed(condition, message string) *Error {
	return New(ErrCodePreconditionFailed, message).
		WithDetail("condition", condition)
}

// Conflict reports a lost race or a state changed underneath the caller.
func Conflict(message string) *Error {
	return New(ErrCodeConflict, message)
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// As is re-exported so callers importing this package do not need the
// standard library package under another name.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join is re-exported for the same reason as As.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
