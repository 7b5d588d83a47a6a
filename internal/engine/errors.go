package engine

import (
	"errors"
	"fmt"
)

// ExecError represents an error detected before any rows are read.
//
// Failures while reading are *store.FetchError values instead; they end
// the row sequence and are never retried.
type ExecError struct {
	// Code identifies the error category.
	Code ExecErrorCode

	// Message is a human-readable description.
	Message string

	// Table identifies the affected table, when there is one.
	Table string

	// Details contains additional context.
	Details map[string]string
}

// ExecErrorCode categorizes execution errors.
type ExecErrorCode string

const (
	// ErrCodeInvalidDescriptor indicates a descriptor failed validation.
	ErrCodeInvalidDescriptor ExecErrorCode = "INVALID_DESCRIPTOR"

	// ErrCodeInvalidFilter indicates a driving filter names a field the
	// iteration table does not have, or one push-down does not project.
	ErrCodeInvalidFilter ExecErrorCode = "INVALID_FILTER"

	// ErrCodeIdentityUnavailable indicates the relation has no identity field.
	ErrCodeIdentityUnavailable ExecErrorCode = "IDENTITY_UNAVAILABLE"
)

// Error implements the error interface.
func (e *ExecError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.Table)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsExecError reports whether err is an *ExecError with the given code.
// Uses errors.As to handle wrapped errors.
func IsExecError(err error, code ExecErrorCode) bool {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// NewIdentityError creates an ExecError for a relation without identity.
func NewIdentityError(association string) *ExecError {
	return &ExecError{
		Code:    ErrCodeIdentityUnavailable,
		Message: fmt.Sprintf("join over %q has no identity field", association),
		Details: map[string]string{"association": association},
	}
}

func invalidDescriptor(err error) *ExecError {
	return &ExecError{Code: ErrCodeInvalidDescriptor, Message: err.Error()}
}

func invalidFilter(table, field, reason string) *ExecError {
	return &ExecError{
		Code:    ErrCodeInvalidFilter,
		Message: fmt.Sprintf("filter field %q %s", field, reason),
		Table:   table,
		Details: map[string]string{"field": field},
	}
}
