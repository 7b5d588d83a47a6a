package catalog

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error code constants - shared with the CLI's JSON envelope.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeEmpty       = "E007" // No tables or associations declared

	// Table declaration errors
	ErrCodeInvalidType  = "E101" // Unknown field type
	ErrCodeNoFields     = "E102" // Table declares no fields
	ErrCodeInvalidTable = "E103" // Table fails validation (identity, geometry)
	ErrCodeInvalidScan  = "E104" // Unknown scan capability

	// Association declaration errors
	ErrCodeUnknownTable     = "E110" // Association names an undeclared table
	ErrCodeAssociationKind  = "E111" // Neither or both of foreign_key/many_to_many
	ErrCodeInvalidAssoc     = "E112" // Association fails validation
	ErrCodeMissingAttribute = "E113" // Required attribute missing
)

// LoadError represents an error that occurred while loading a catalog.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the code of a *LoadError, or ErrCodeGeneric.
func CodeOf(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeGeneric
}

func newError(code string, pos token.Pos, format string, args ...any) *LoadError {
	return &LoadError{Code: code, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(code string, err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}

	// Return first error with position info
	firstErr := errs[0]
	var pos token.Pos
	if positions := cueerrors.Positions(firstErr); len(positions) > 0 {
		pos = positions[0]
	}
	return &LoadError{Code: code, Message: firstErr.Error(), Pos: pos}
}
