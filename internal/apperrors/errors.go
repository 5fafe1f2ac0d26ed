// Package apperrors defines the typed error taxonomy shared by every layer.
// Business failures (not found, invalid transition, validation, conflict) are
// always returned as values from this package; only ErrCodeInternal signals
// infrastructure trouble and may surface as an unexpected failure.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code classifies an error for callers and for HTTP status mapping.
type Code string

const (
	ErrCodeNotFound          Code = "not_found"
	ErrCodeConflict          Code = "conflict"
	ErrCodeInvalidTransition Code = "invalid_transition"
	ErrCodeValidation        Code = "validation"
	ErrCodeUnauthorized      Code = "unauthorized"
	ErrCodeInternal          Code = "internal"
)

// Error is the standard coded error.
type Error struct {
	Code    Code
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.err }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an underlying error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// NotFound reports a missing resource. Out-of-scope rows use the same error so
// existence never leaks across tenants.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// InvalidInput reports a single-field validation failure.
func InvalidInput(field, detail string) *Error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf("%s: %s", field, detail)}
}

// TransitionError reports an illegal status transition, naming both the
// current and the requested status.
type TransitionError struct {
	EntityType string
	From       string
	To         string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition %s from %q to %q", e.EntityType, e.From, e.To)
}

// InvalidTransition builds a TransitionError.
func InvalidTransition(entityType, from, to string) *TransitionError {
	return &TransitionError{EntityType: entityType, From: from, To: to}
}

// Violation is one failed rule within a multi-field validation.
type Violation struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// ValidationError carries every violated rule so the caller can fix all of
// them in one resubmission.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Detail))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a violation.
func (e *ValidationError) Add(field, detail string) {
	e.Violations = append(e.Violations, Violation{Field: field, Detail: detail})
}

// HasViolations reports whether any rule failed.
func (e *ValidationError) HasViolations() bool { return len(e.Violations) > 0 }

// CodeOf extracts the error code, defaulting to ErrCodeInternal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	var transition *TransitionError
	if errors.As(err, &transition) {
		return ErrCodeInvalidTransition
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return ErrCodeValidation
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool { return CodeOf(err) == code }

// HTTPStatus maps an error code to an HTTP response status.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeInvalidTransition:
		return http.StatusConflict
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
