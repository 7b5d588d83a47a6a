package store

import (
	"strings"

	"github.com/google/uuid"
)

// NameGenerator names computed datasets.
// Implemented by UUIDv7Names (production) and testutil.SequenceNames (tests).
type NameGenerator interface {
	Generate() string
}

// UUIDv7Names generates time-sortable dataset names of the form
// reljoin_<32 hex digits>. Names are valid unquoted SQL identifiers.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Names struct{}

// Generate returns a new dataset name.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Names) Generate() string {
	return "reljoin_" + strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
}
