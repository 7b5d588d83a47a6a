package harness

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/roach88/reljoin/internal/compiler"
	"github.com/roach88/reljoin/internal/engine"
	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
	"github.com/roach88/reljoin/internal/store"
	"github.com/roach88/reljoin/internal/testutil"
)

// backend is a store the harness can seed and join against.
type backend interface {
	store.Backend
	testutil.Loader
}

// Harness runs scenarios.
type Harness struct {
	logger *slog.Logger
}

// New creates a harness. A nil logger discards output.
func New(logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Harness{logger: logger}
}

// Run executes a scenario with a discarding logger.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return New(nil).Run(ctx, scenario)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory SQLite store and a fresh
// MemoryStore. On each store the descriptor is executed as compiled and
// also evaluated virtually, so four paths are compared:
//
//	sqlite/execute  sqlite/virtual  memory/execute  memory/virtual
//
// All four must produce the same row multiset (compared by ir.ResultHash),
// and that multiset must satisfy the scenario's expectations.
//
// The returned error reports harness failures (bad scenario, store errors
// while seeding); join disagreements and failed expectations are recorded
// in the Result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	tables, rows, assoc, err := scenario.Build()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	joinType, err := scenario.JoinType()
	if err != nil {
		return nil, err
	}
	filter, err := ir.RecordFromMap(scenario.Filter)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	sqlite, err := store.Open(ctx, "sqlite3", ":memory:", store.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer sqlite.Close()

	memory := store.NewMemoryStore(
		store.WithMemoryLogger(h.logger),
		store.WithJoinCapability(queryir.JoinCapability{
			SupportsPredicateOuterJoin: scenario.Options.PredicateOuterJoin,
		}),
	)

	result := NewResult()
	backends := []struct {
		name    string
		b       backend
		execute string
		virtual string
	}{
		{"sqlite", sqlite, PathSQLiteExecute, PathSQLiteVirtual},
		{"memory", memory, PathMemoryExecute, PathMemoryVirtual},
	}

	for _, be := range backends {
		if err := testutil.Seed(ctx, be.b, tables, rows); err != nil {
			return nil, fmt.Errorf("seed %s: %w", be.name, err)
		}

		desc, err := compiler.New(be.b).WithLogger(h.logger).Compile(assoc, joinType, scenario.CompileOptions())
		if err != nil {
			code := string(compiler.CodeOf(err))
			if code == "" {
				return nil, fmt.Errorf("compile on %s: %w", be.name, err)
			}
			if result.CompileError != "" && result.CompileError != code {
				result.AddError(fmt.Sprintf("compile error differs between stores: %s vs %s", result.CompileError, code))
			}
			result.CompileError = code
			h.logger.Info("compile failed", "scenario", scenario.Name, "store", be.name, "code", code)
			continue
		}

		executed, err := collect(engine.Execute(ctx, be.b, desc, filter), desc)
		if err != nil {
			result.AddError(fmt.Sprintf("%s: %v", be.execute, err))
			continue
		}
		result.Paths[be.execute] = executed

		vt, err := engine.OpenVirtual(be.b, desc)
		if err != nil {
			result.AddError(fmt.Sprintf("%s: %v", be.virtual, err))
			continue
		}
		virtual, err := collect(vt.Rows(ctx, filter), desc)
		if err != nil {
			result.AddError(fmt.Sprintf("%s: %v", be.virtual, err))
			continue
		}
		result.Paths[be.virtual] = virtual

		h.logger.Info("scenario path executed",
			"scenario", scenario.Name,
			"store", be.name,
			"mode", desc.Mode,
			"strategy", desc.Strategy,
			"rows", len(executed.Rows),
		)
	}

	if primary, ok := result.Paths[PathSQLiteExecute]; ok {
		result.Descriptor = primary.Descriptor
		result.Rows = primary.Rows
	}
	checkAgreement(result)

	for _, msg := range EvaluateExpectations(result, scenario.Expect) {
		result.AddError(msg)
	}
	return result, nil
}

func collect(seq iter.Seq2[ir.Record, error], desc queryir.Descriptor) (PathResult, error) {
	rows, err := engine.Collect(seq)
	if err != nil {
		return PathResult{}, err
	}
	hash, err := ir.ResultHash(rows)
	if err != nil {
		return PathResult{}, err
	}
	return PathResult{Descriptor: desc, Rows: rows, Hash: hash}, nil
}

// checkAgreement records an error for every path whose rows differ from
// the SQLite push-down path.
func checkAgreement(result *Result) {
	primary, ok := result.Paths[PathSQLiteExecute]
	if !ok {
		return
	}
	names := make([]string, 0, len(result.Paths))
	for name := range result.Paths {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		p := result.Paths[name]
		if p.Hash != primary.Hash {
			result.AddError(fmt.Sprintf("%s disagrees with %s: %d rows vs %d rows",
				name, PathSQLiteExecute, len(p.Rows), len(primary.Rows)))
		}
	}
}
