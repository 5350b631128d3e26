// Package errors provides coded errors shared by the repository, service and
// transport layers. Codes map onto HTTP statuses and gRPC codes at the edges.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers.
type Code string

const (
	ErrCodeNotFound           Code = "NOT_FOUND"
	ErrCodeInvalidInput       Code = "INVALID_INPUT"
	ErrCodePreconditionFailed Code = "PRECONDITION_FAILED"
	ErrCodeConflict           Code = "CONFLICT"
	ErrCodeForbidden          Code = "FORBIDDEN"
	ErrCodeUnauthorized       Code = "UNAUTHORIZED"
	ErrCodeConfiguration      Code = "CONFIGURATION_ERROR"
	ErrCodeUnavailable        Code = "UNAVAILABLE"
	ErrCodeInternal           Code = "INTERNAL"
)

// Error is a coded error with an optional cause and field-level details.
type Error struct {
	Code    Code
	Message string
	Details map[string]string
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

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. Wrapping an
// already coded error keeps the inner code so store failures are not
// reclassified as they travel up.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	var coded *Error
	if stderrors.As(err, &coded) {
		return &Error{Code: coded.Code, Message: message, Err: err}
	}
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: map[string]string{"resource": resource, "id": id},
	}
}

// InvalidInput reports a validation failure on a single field.
func InvalidInput(field, message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("invalid %s: %s", field, message),
		Details: map[string]string{"field": field},
	}
}

// PreconditionFailed reports a state mismatch.
func PreconditionFailed(message string) *Error {
	return New(ErrCodePreconditionFailed, message)
}

// Forbidden reports a caller lacking the role or relationship for an action.
func Forbidden(message string) *Error {
	return New(ErrCodeForbidden, message)
}

// Configuration reports a route or template that cannot be executed.
func Configuration(message string) *Error {
	return New(ErrCodeConfiguration, message)
}

// Unavailable wraps a transient store or transport failure.
func Unavailable(err error, message string) *Error {
	return &Error{Code: ErrCodeUnavailable, Message: message, Err: err}
}

// CodeOf returns the code of err, or ErrCodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// Retryable reports whether the whole operation may be safely retried.
func Retryable(err error) bool {
	return HasCode(err, ErrCodeUnavailable)
}

// HTTPStatus maps err onto an HTTP status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodePreconditionFailed:
		return http.StatusPreconditionFailed
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeConfiguration:
		return http.StatusUnprocessableEntity
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
