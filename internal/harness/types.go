package harness

import (
	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
)

// Execution path names.
const (
	PathSQLiteExecute = "sqlite/execute"
	PathSQLiteVirtual = "sqlite/virtual"
	PathMemoryExecute = "memory/execute"
	PathMemoryVirtual = "memory/virtual"
)

// PathResult is what one execution path produced.
type PathResult struct {
	Descriptor queryir.Descriptor
	Rows       []ir.Record
	Hash       string
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every path agreed and every
	// expectation held.
	Pass bool `json:"pass"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Descriptor is the descriptor compiled against the SQLite store.
	Descriptor queryir.Descriptor `json:"-"`

	// Rows are the SQLite push-down rows; every other path agreed with them
	// unless Errors says otherwise.
	Rows []ir.Record `json:"-"`

	// CompileError is the compile error code when compilation failed.
	CompileError string `json:"compile_error,omitempty"`

	// Paths holds every execution path by name.
	Paths map[string]PathResult `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		Paths:  make(map[string]PathResult),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
