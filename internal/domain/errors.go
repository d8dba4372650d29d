// Package domain defines the shared types, ports, and errors of the access-control core.
package domain

import (
	"errors"
	"fmt"
)

// NotFoundError indicates an entity or record was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AccessDeniedError indicates insufficient permissions.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate edge or contradicting grant).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// InvariantViolationError indicates a mutation that would break a structural
// invariant of the graph, such as a group containing itself.
type InvariantViolationError struct {
	Message string
}

func (e *InvariantViolationError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a formatted message.
func ErrAccessDenied(format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvariantViolation creates an InvariantViolationError with a formatted message.
func ErrInvariantViolation(format string, args ...interface{}) *InvariantViolationError {
	return &InvariantViolationError{Message: fmt.Sprintf(format, args...)}
}

// IsDomainError reports whether err wraps one of the typed domain errors above.
// Domain errors describe bad input or caller bugs and are never worth retrying.
func IsDomainError(err error) bool {
	var (
		notFound  *NotFoundError
		denied    *AccessDeniedError
		invalid   *ValidationError
		conflict  *ConflictError
		invariant *InvariantViolationError
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &denied) ||
		errors.As(err, &invalid) ||
		errors.As(err, &conflict) ||
		errors.As(err, &invariant)
}
