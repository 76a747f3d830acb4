package requests

import (
	"errors"

	derrors "peermesh/pkg/domain-errors"
)

const (
	// CodeInheritedFromItem marks a group or request level error caused by
	// one of its child items.
	CodeInheritedFromItem derrors.Code = "error.consumption.requests.validation.inheritedFromItem"

	MessageChildItemErrors = "Some child items have errors."
)

// ValidationResult is the outcome of a pre-flight check. For requests and
// groups, Items holds one result per child, index-aligned, so callers can
// render per-item errors.
type ValidationResult struct {
	Code    derrors.Code
	Message string
	Items   []ValidationResult
}

// ValidationSuccess is an empty, successful result.
func ValidationSuccess() ValidationResult { return ValidationResult{} }

// ValidationError builds a failed result.
func ValidationError(code derrors.Code, message string) ValidationResult {
	return ValidationResult{Code: code, Message: message}
}

// ValidationErrorFrom builds a failed result from an engine error, reusing
// its code and message so pre-flight results and thrown errors stay
// consistent.
func ValidationErrorFrom(err error) ValidationResult {
	var dErr *derrors.Error
	if errors.As(err, &dErr) {
		return ValidationResult{Code: dErr.Code, Message: dErr.Message}
	}
	return ValidationResult{Code: derrors.CodeInternal, Message: err.Error()}
}

// IsSuccess reports whether neither this result nor any child result
// carries an error.
func (r ValidationResult) IsSuccess() bool { return r.Code == "" }

// IsError is the complement of IsSuccess.
func (r ValidationResult) IsError() bool { return r.Code != "" }

// Inherit aggregates child results: if any child failed, the parent result
// carries the inherited error and keeps the children inspectable in order.
func Inherit(children []ValidationResult) ValidationResult {
	for _, child := range children {
		if child.IsError() {
			return ValidationResult{
				Code:    CodeInheritedFromItem,
				Message: MessageChildItemErrors,
				Items:   children,
			}
		}
	}
	return ValidationResult{Items: children}
}
