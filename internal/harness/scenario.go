package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reljoin/internal/catalog"
	"github.com/roach88/reljoin/internal/compiler"
	"github.com/roach88/reljoin/internal/ir"
)

// Scenario defines a conformance scenario: a small dataset, one
// association and the join to run over it.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is an optional CUE catalog directory, relative to the
	// scenario file. When set, tables may omit fields and the association
	// may be given by name only.
	Catalog string `yaml:"catalog,omitempty"`

	// Tables declares participant tables and their rows.
	Tables []TableSpec `yaml:"tables"`

	// Association is the association to join.
	Association AssociationSpec `yaml:"association"`

	// Join is inner, left or right. Defaults to inner.
	Join string `yaml:"join,omitempty"`

	// Driving designates the driving table.
	Driving string `yaml:"driving,omitempty"`

	Options OptionsSpec `yaml:"options,omitempty"`

	// Filter restricts the iteration table by equality on its own fields.
	Filter map[string]any `yaml:"filter,omitempty"`

	Expect Expectations `yaml:"expect"`

	// dir is the directory of the scenario file, for resolving Catalog.
	dir string
}

// TableSpec declares one table.
type TableSpec struct {
	Name     string           `yaml:"name"`
	Identity string           `yaml:"identity,omitempty"`
	Scan     string           `yaml:"scan,omitempty"`
	Fields   []FieldSpec      `yaml:"fields,omitempty"`
	Rows     []map[string]any `yaml:"rows,omitempty"`
}

// FieldSpec declares one field.
type FieldSpec struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Identity    bool   `yaml:"identity,omitempty"`
	Measurement bool   `yaml:"measurement,omitempty"`
}

// AssociationSpec declares the association. Exactly one of ForeignKey and
// ManyToMany is set, unless the association comes from the catalog.
type AssociationSpec struct {
	Name       string          `yaml:"name"`
	ForeignKey *ForeignKeySpec `yaml:"foreign_key,omitempty"`
	ManyToMany *ManyToManySpec `yaml:"many_to_many,omitempty"`
}

// ForeignKeySpec mirrors ir.ForeignKey with table names.
type ForeignKeySpec struct {
	Referenced  string `yaml:"referenced"`
	PrimaryKey  string `yaml:"primary_key"`
	Referencing string `yaml:"referencing"`
	ForeignKey  string `yaml:"foreign_key"`
	OneToOne    bool   `yaml:"one_to_one,omitempty"`
}

// ManyToManySpec mirrors ir.ManyToMany with table names.
type ManyToManySpec struct {
	Table1     string `yaml:"table1"`
	Key1       string `yaml:"key1"`
	Table2     string `yaml:"table2"`
	Key2       string `yaml:"key2"`
	Bridge     string `yaml:"bridge"`
	BridgeKey1 string `yaml:"bridge_key1"`
	BridgeKey2 string `yaml:"bridge_key2"`
}

// OptionsSpec mirrors compiler.Options.
type OptionsSpec struct {
	Fields            []string `yaml:"fields,omitempty"`
	IdentityOnly      bool     `yaml:"identity_only,omitempty"`
	NoGeometry        bool     `yaml:"no_geometry,omitempty"`
	UniqueIdentity    bool     `yaml:"unique_identity,omitempty"`
	ExclusiveIdentity bool     `yaml:"exclusive_identity,omitempty"`

	// PredicateOuterJoin makes the in-memory store report predicate outer
	// join support, so the two stores compile different strategies.
	PredicateOuterJoin bool `yaml:"predicate_outer_join,omitempty"`
}

// Expectations are checked against the agreed result.
type Expectations struct {
	// Error is an expected compile error code. No rows are produced.
	Error string `yaml:"error,omitempty"`

	// Rows is the exact expected multiset. Omitted fields mean null.
	Rows []map[string]any `yaml:"rows,omitempty"`

	Count *int `yaml:"count,omitempty"`

	// Fields is the expected projection, in order.
	Fields []string `yaml:"fields,omitempty"`

	// Identity is the expected identity field; "none" asserts there is none.
	Identity string `yaml:"identity,omitempty"`

	// UniqueIdentity asserts that identity values never repeat.
	UniqueIdentity bool `yaml:"unique_identity,omitempty"`

	// NullPadded lists tables that must be null-padded in at least one row.
	NullPadded []string `yaml:"null_padded,omitempty"`

	// Mode is push_down or virtual.
	Mode string `yaml:"mode,omitempty"`
}

// IdentityNone is the Expectations.Identity value asserting no identity.
const IdentityNone = "none"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// ParseScenario parses scenario YAML. Catalog paths resolve against the
// working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "expects:" vs "expect:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string)
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", p, s.Name, prev)
		}
		seen[s.Name] = p
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(s.Name, `/\ `) {
		return fmt.Errorf("name %q must not contain path separators or spaces", s.Name)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Tables) == 0 {
		return fmt.Errorf("tables list is required and must be non-empty")
	}
	if s.Association.Name == "" {
		return fmt.Errorf("association.name is required")
	}
	if s.Catalog == "" && s.Association.ForeignKey == nil && s.Association.ManyToMany == nil {
		return fmt.Errorf("association: foreign_key or many_to_many is required without a catalog")
	}
	if s.Association.ForeignKey != nil && s.Association.ManyToMany != nil {
		return fmt.Errorf("association: declare foreign_key or many_to_many, not both")
	}
	if _, err := s.JoinType(); err != nil {
		return err
	}

	for i, t := range s.Tables {
		if t.Name == "" {
			return fmt.Errorf("tables[%d]: name is required", i)
		}
		if s.Catalog == "" && len(t.Fields) == 0 {
			return fmt.Errorf("tables[%d]: fields are required without a catalog", i)
		}
	}

	switch s.Expect.Mode {
	case "", "push_down", "virtual":
	default:
		return fmt.Errorf("expect.mode: must be push_down or virtual, got %q", s.Expect.Mode)
	}
	if s.Expect.Error != "" && (len(s.Expect.Rows) > 0 || s.Expect.Count != nil) {
		return fmt.Errorf("expect: error excludes rows and count")
	}
	return nil
}

// JoinType parses Join, defaulting to inner.
func (s *Scenario) JoinType() (ir.JoinType, error) {
	if s.Join == "" {
		return ir.JoinInner, nil
	}
	jt, err := ir.ParseJoinType(s.Join)
	if err != nil {
		return "", fmt.Errorf("join: %w", err)
	}
	return jt, nil
}

// CompileOptions converts Options and Driving to compiler options.
func (s *Scenario) CompileOptions() compiler.Options {
	return compiler.Options{
		DrivingTable:              s.Driving,
		Fields:                    s.Options.Fields,
		IncludeOnlyIdentityFields: s.Options.IdentityOnly,
		ExcludeGeometryField:      s.Options.NoGeometry,
		GuaranteeUniqueIdentity:   s.Options.UniqueIdentity,
		ExclusiveIdentity:         s.Options.ExclusiveIdentity,
	}
}

// Build resolves tables, rows and the association.
func (s *Scenario) Build() ([]ir.Table, map[string][]ir.Record, ir.Association, error) {
	var cat *catalog.Catalog
	if s.Catalog != "" {
		dir := s.Catalog
		if !filepath.IsAbs(dir) && s.dir != "" {
			dir = filepath.Join(s.dir, dir)
		}
		c, errs := catalog.Load(dir, catalog.LoadModeFailFast)
		if len(errs) > 0 {
			return nil, nil, nil, fmt.Errorf("catalog: %w", errs[0])
		}
		cat = c
	}

	tables := make([]ir.Table, 0, len(s.Tables))
	byName := make(map[string]ir.Table, len(s.Tables))
	rows := make(map[string][]ir.Record, len(s.Tables))
	for i, spec := range s.Tables {
		t, err := spec.table(cat)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("tables[%d]: %w", i, err)
		}
		if _, dup := byName[t.Name]; dup {
			return nil, nil, nil, fmt.Errorf("tables[%d]: duplicate table %q", i, t.Name)
		}
		recs, err := spec.records(t)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("tables[%d]: %w", i, err)
		}
		tables = append(tables, t)
		byName[t.Name] = t
		rows[t.Name] = recs
	}

	assoc, err := s.Association.build(byName, cat)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("association: %w", err)
	}
	return tables, rows, assoc, nil
}

func (spec TableSpec) table(cat *catalog.Catalog) (ir.Table, error) {
	if len(spec.Fields) == 0 {
		if cat == nil {
			return ir.Table{}, fmt.Errorf("table %q: fields are required", spec.Name)
		}
		t, ok := cat.Table(spec.Name)
		if !ok {
			return ir.Table{}, fmt.Errorf("table %q is not in the catalog", spec.Name)
		}
		return t, nil
	}

	t := ir.Table{Name: spec.Name, IdentityField: spec.Identity}
	for _, fs := range spec.Fields {
		ft, err := ir.ParseFieldType(fs.Type)
		if err != nil {
			return ir.Table{}, fmt.Errorf("table %q field %q: %w", spec.Name, fs.Name, err)
		}
		t.Fields = append(t.Fields, ir.Field{
			Name:          fs.Name,
			Type:          ft,
			IsIdentity:    fs.Identity,
			IsMeasurement: fs.Measurement,
		})
	}
	switch spec.Scan {
	case "", "sequential":
	case "keyed":
		t.Scan = ir.ScanKeyed
	default:
		return ir.Table{}, fmt.Errorf("table %q: scan must be keyed or sequential, got %q", spec.Name, spec.Scan)
	}
	if err := t.Validate(); err != nil {
		return ir.Table{}, err
	}
	return t, nil
}

func (spec TableSpec) records(t ir.Table) ([]ir.Record, error) {
	recs := make([]ir.Record, 0, len(spec.Rows))
	for i, row := range spec.Rows {
		rec, err := ir.RecordFromMap(row)
		if err != nil {
			return nil, fmt.Errorf("rows[%d]: %w", i, err)
		}
		for k := range rec {
			if !t.HasField(k) {
				return nil, fmt.Errorf("rows[%d]: unknown field %q", i, k)
			}
		}
		recs = append(recs, t.CoerceRecord(rec))
	}
	return recs, nil
}

func (a AssociationSpec) build(tables map[string]ir.Table, cat *catalog.Catalog) (ir.Association, error) {
	lookup := func(name string) (ir.Table, error) {
		t, ok := tables[name]
		if !ok {
			return ir.Table{}, fmt.Errorf("table %q is not declared", name)
		}
		return t, nil
	}

	var assoc ir.Association
	switch {
	case a.ForeignKey != nil:
		fk := ir.ForeignKey{
			Name:       a.Name,
			PrimaryKey: a.ForeignKey.PrimaryKey,
			ForeignKey: a.ForeignKey.ForeignKey,
			IsOneToOne: a.ForeignKey.OneToOne,
		}
		var err error
		if fk.Referenced, err = lookup(a.ForeignKey.Referenced); err != nil {
			return nil, err
		}
		if fk.Referencing, err = lookup(a.ForeignKey.Referencing); err != nil {
			return nil, err
		}
		assoc = fk
	case a.ManyToMany != nil:
		m := ir.ManyToMany{
			Name:       a.Name,
			Key1:       a.ManyToMany.Key1,
			Key2:       a.ManyToMany.Key2,
			BridgeKey1: a.ManyToMany.BridgeKey1,
			BridgeKey2: a.ManyToMany.BridgeKey2,
		}
		var err error
		if m.Table1, err = lookup(a.ManyToMany.Table1); err != nil {
			return nil, err
		}
		if m.Table2, err = lookup(a.ManyToMany.Table2); err != nil {
			return nil, err
		}
		if m.Bridge, err = lookup(a.ManyToMany.Bridge); err != nil {
			return nil, err
		}
		assoc = m
	case cat != nil:
		return cat.Association(a.Name)
	default:
		return nil, fmt.Errorf("foreign_key or many_to_many is required")
	}

	if err := assoc.Validate(); err != nil {
		return nil, err
	}
	return assoc, nil
}
