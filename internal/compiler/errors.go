package compiler

import (
	"errors"
	"fmt"
)

// CompileError is a configuration error detected while compiling a join.
//
// Compile errors are raised before any store round-trip and are never
// worth retrying: the same inputs always fail the same way.
type CompileError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Table names the offending table, when there is one.
	Table string

	// Field names the offending field, when there is one.
	Field string
}

// ErrorCode categorizes compile errors.
type ErrorCode string

const (
	// ErrCodeInvalidDrivingTable: the driving table is not an endpoint, or
	// both endpoints carry geometry and none was designated.
	ErrCodeInvalidDrivingTable ErrorCode = "INVALID_DRIVING_TABLE"

	// ErrCodeIncompatibleJoinDirection: a designated driving table would be
	// the nullable side.
	ErrCodeIncompatibleJoinDirection ErrorCode = "INCOMPATIBLE_JOIN_DIRECTION"

	// ErrCodeUnrelatedField: a requested field cannot come out of the join.
	ErrCodeUnrelatedField ErrorCode = "UNRELATED_FIELD"

	// ErrCodeEmptyProjection: the options leave no field to project, e.g.
	// identity fields only on a relation without an identity.
	ErrCodeEmptyProjection ErrorCode = "EMPTY_PROJECTION"

	// ErrCodeUnsupportedCardinality: unique identity was requested where the
	// cardinality cannot provide it.
	ErrCodeUnsupportedCardinality ErrorCode = "UNSUPPORTED_CARDINALITY"

	// ErrCodeInvalidAssociation: the association or join type is malformed.
	ErrCodeInvalidAssociation ErrorCode = "INVALID_ASSOCIATION"

	// ErrCodeInternal: the compiler produced a descriptor that breaks its own
	// invariants.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error implements the error interface.
func (e *CompileError) Error() string {
	switch {
	case e.Table != "" && e.Field != "":
		return fmt.Sprintf("%s: %s (table=%s, field=%s)", e.Code, e.Message, e.Table, e.Field)
	case e.Table != "":
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.Table)
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsCompileError reports whether err is a CompileError with the given code.
// Uses errors.As to handle wrapped errors.
func IsCompileError(err error, code ErrorCode) bool {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// CodeOf returns the code of a CompileError, or "" for other errors.
func CodeOf(err error) ErrorCode {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func newError(code ErrorCode, table, field, format string, args ...any) *CompileError {
	return &CompileError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Table:   table,
		Field:   field,
	}
}
