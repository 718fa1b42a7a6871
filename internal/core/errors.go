package core

import (
	"errors"
	"fmt"
	"strings"
)

// Core errors that can occur across the client
var (
	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
	ErrDateOutOfRange  = errors.New("date outside the range with data")

	// Cache errors
	ErrNoLoader   = errors.New("no loader configured")
	ErrUnknownKey = errors.New("unknown cache key")

	// Entity errors
	ErrEntityNotFound = errors.New("entity not found")

	// Credential errors
	ErrNoToken = errors.New("no auth token stored")
)

// ValidationError reports malformed user input. It is raised before any
// optimistic write, so the cache is never touched when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConsistencyWarning is a non-fatal condition raised when an aggregate hit a
// floor or clamp. It indicates an earlier desync and is logged, never returned
// to the user as a blocking error.
type ConsistencyWarning struct {
	Fields []string
}

func (w *ConsistencyWarning) Error() string {
	return fmt.Sprintf("consistency warning: floored at zero: %s", strings.Join(w.Fields, ", "))
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
