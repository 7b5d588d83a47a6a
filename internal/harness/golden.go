package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/reljoin/internal/ir"
)

// GoldenDir is where golden files live, relative to the scenario directory.
const GoldenDir = "golden"

// Snapshot captures what a scenario produced, in a form that serializes
// deterministically.
type Snapshot struct {
	Scenario     string
	CompileError string
	Mode         string
	Strategy     string
	Identity     string
	Fields       []string
	Rows         []ir.Record
}

// NewSnapshot builds a snapshot from a result. Rows are sorted by their
// canonical JSON so the snapshot does not depend on store order.
func NewSnapshot(name string, result *Result) (*Snapshot, error) {
	s := &Snapshot{Scenario: name, CompileError: result.CompileError}
	if result.CompileError != "" {
		return s, nil
	}

	d := result.Descriptor
	s.Mode = string(d.Mode)
	s.Strategy = string(d.Strategy)
	s.Identity = d.IdentityField
	s.Fields = d.FieldNames()

	type keyed struct {
		canonical string
		rec       ir.Record
	}
	rows := make([]keyed, len(result.Rows))
	for i, rec := range result.Rows {
		b, err := ir.MarshalCanonical(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows[i] = keyed{string(b), rec}
	}
	slices.SortFunc(rows, func(a, b keyed) int {
		switch {
		case a.canonical < b.canonical:
			return -1
		case a.canonical > b.canonical:
			return 1
		}
		return 0
	})
	s.Rows = make([]ir.Record, len(rows))
	for i, r := range rows {
		s.Rows[i] = r.rec
	}
	return s, nil
}

// toCanonicalMap converts the snapshot for ir.MarshalCanonical, which only
// handles IR types and primitives.
func (s *Snapshot) toCanonicalMap() map[string]any {
	m := map[string]any{"scenario": s.Scenario}
	if s.CompileError != "" {
		m["compile_error"] = s.CompileError
		return m
	}
	m["mode"] = s.Mode
	m["strategy"] = s.Strategy
	m["fields"] = s.Fields
	m["rows"] = s.Rows
	if s.Identity != "" {
		m["identity"] = s.Identity
	}
	return m
}

// MarshalCanonical serializes the snapshot as canonical JSON.
func (s *Snapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// golden/{scenario.Name}.golden next to the scenario file. Scenarios built
// in code use testdata/golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join("testdata", GoldenDir)
	if scenario.dir != "" {
		dir = filepath.Join(scenario.dir, GoldenDir)
	}
	if err := AssertGolden(t, dir, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against fixtureDir/name.golden.
func AssertGolden(t *testing.T, fixtureDir, name string, result *Result) error {
	t.Helper()

	snap, err := NewSnapshot(name, result)
	if err != nil {
		return err
	}
	data, err := snap.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(fixtureDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// ErrGoldenMismatch is returned by CompareGolden when the snapshot differs.
var ErrGoldenMismatch = errors.New("snapshot differs from golden file")

// GoldenPath returns the golden file for a scenario in scenario directory dir.
func GoldenPath(dir, name string) string {
	return filepath.Join(dir, GoldenDir, name+".golden")
}

// CompareGolden checks a result against its golden file outside of a test.
// dir is the scenario directory. A missing golden file is reported as os.ErrNotExist.
func CompareGolden(dir, name string, result *Result) error {
	snap, err := NewSnapshot(name, result)
	if err != nil {
		return err
	}
	data, err := snap.MarshalCanonical()
	if err != nil {
		return err
	}
	want, err := os.ReadFile(GoldenPath(dir, name))
	if err != nil {
		return err
	}
	if !bytes.Equal(bytes.TrimRight(want, "\n"), data) {
		return fmt.Errorf("%s: %w", name, ErrGoldenMismatch)
	}
	return nil
}

// UpdateGolden writes the golden file for a result; dir is the scenario
// directory.
func UpdateGolden(dir, name string, result *Result) error {
	snap, err := NewSnapshot(name, result)
	if err != nil {
		return err
	}
	data, err := snap.MarshalCanonical()
	if err != nil {
		return err
	}
	path := GoldenPath(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
