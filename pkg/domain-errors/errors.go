// Package derrors provides code-carrying domain errors. Codes are stable,
// namespaced strings intended for programmatic handling by callers; messages
// are for humans and may change.
package derrors

import (
	"errors"
	"fmt"
)

// Code identifies a domain error class. Values follow the
// "error.<module>.<operation>" convention, e.g.
// "error.consumption.attributes.successionMustNotChangeValueType".
type Code string

// Cross-cutting codes. Module-specific codes live next to the module that
// raises them (constructor functions, no global catalog).
const (
	CodeInvalidInput Code = "error.platform.invalidInput"
	CodeNotFound     Code = "error.platform.recordNotFound"
	CodeWrongState   Code = "error.platform.wrongState"
	CodeInternal     Code = "error.platform.internal"
	CodeTimeout      Code = "error.platform.timeout"
)

// Error is an immutable domain error value.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match two domain errors by code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// New builds a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, keeping the cause
// reachable through errors.Unwrap.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code of err, or CodeInternal when err is not a domain
// error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// NotFound builds the uniform not-found error carrying entity name and id.
func NotFound(entity, id string) error {
	return Newf(CodeNotFound, "%s '%s' not found", entity, id)
}
