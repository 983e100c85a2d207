// Package apperrors defines the error kinds surfaced by the hook services and
// their mapping onto HTTP responses.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoRecord is returned by repositories when a lookup or delete matches nothing.
// The app layer turns it into a NotFound error carrying the missing key.
var ErrNoRecord = errors.New("no record")

// Code identifies an error condition. Codes are strings so they serialize
// naturally into problem responses.
type Code string

const (
	// CodeNotFound means a referenced schema, domain, hook or event does not exist.
	CodeNotFound Code = "RECORD_NOT_FOUND"

	// CodeValidation means the request is well-formed but not acceptable.
	CodeValidation Code = "VALIDATION_FAILED"

	// CodeIntegrity means a uniqueness constraint was violated.
	CodeIntegrity Code = "INTEGRITY_VIOLATION"

	// CodeInternal is everything else.
	CodeInternal Code = "INTERNAL_ERROR"
)

// Error carries a code, a human message and optional structured details.
type Error struct {
	Code    Code
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the code onto a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeIntegrity:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func NotFound(message string, details any) *Error {
	return &Error{Code: CodeNotFound, Message: message, Details: details}
}

func Validation(message string, details any) *Error {
	return &Error{Code: CodeValidation, Message: message, Details: details}
}

func Integrity(message string, err error) *Error {
	return &Error{Code: CodeIntegrity, Message: message, Err: err}
}

func Internal(message string, err error) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
