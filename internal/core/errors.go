package core

import "fmt"

// ErrorCategory classifies domain errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatConflict   ErrorCategory = "conflict"   // Conflicting state
	ErrCatAuth       ErrorCategory = "auth"       // Authentication failure
	ErrCatRateLimit  ErrorCategory = "rate_limit" // Caller over budget
	ErrCatTransport  ErrorCategory = "transport"  // Stream/network write failure
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{Category: ErrCatValidation, Code: code, Message: message}
}

// ErrNotFound creates a not-found error.
func ErrNotFound(code, message string) *DomainError {
	return &DomainError{Category: ErrCatNotFound, Code: code, Message: message}
}

// ErrConflict creates a conflict error.
func ErrConflict(code, message string) *DomainError {
	return &DomainError{Category: ErrCatConflict, Code: code, Message: message}
}

// ErrAuth creates an authentication error.
func ErrAuth(code, message string) *DomainError {
	return &DomainError{Category: ErrCatAuth, Code: code, Message: message}
}

// ErrRateLimit creates a rate-limit error.
func ErrRateLimit(code, message string) *DomainError {
	return &DomainError{Category: ErrCatRateLimit, Code: code, Message: message}
}

// ErrInternal creates an internal error. Internal errors are retryable.
func ErrInternal(code, message string) *DomainError {
	return &DomainError{Category: ErrCatInternal, Code: code, Message: message, Retryable: true}
}
