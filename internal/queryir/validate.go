package queryir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/reljoin/internal/ir"
)

// ValidationResult lists the invariant violations found in a descriptor.
type ValidationResult struct {
	// Valid is true when Violations is empty.
	Valid bool

	// Violations describes each broken invariant.
	Violations []string
}

// Err returns nil for a valid result, otherwise an error joining every
// violation.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return errors.New(strings.Join(r.Violations, "; "))
}

// Validate checks the structural invariants of a compiled descriptor:
//  1. Participant names are unique and there are two or three of them
//  2. A geometry table precedes the bridge when joined to a non-geometry table
//  3. Qualified field names are unique and sourced from participants
//  4. The identity field, when present, is projected and owned by IdentityTable
//  5. The payload matches the strategy; the mode matches the identity
//
// Validate is a pure function with no side effects.
func Validate(d Descriptor) ValidationResult {
	v := &validator{
		violations: []string{},
		tables:     make(map[string]ir.Table, len(d.Tables)),
	}
	v.validateDescriptor(d)

	return ValidationResult{
		Valid:      len(v.violations) == 0,
		Violations: v.violations,
	}
}

// validator accumulates violations during traversal.
type validator struct {
	violations []string
	tables     map[string]ir.Table
}

func (v *validator) addViolation(format string, args ...any) {
	v.violations = append(v.violations, fmt.Sprintf(format, args...))
}

func (v *validator) validateDescriptor(d Descriptor) {
	v.validateTables(d)
	v.validateOrdering(d)
	v.validateFields(d)
	v.validateIdentity(d)
	v.validatePayload(d)
	v.validateMode(d)
}

func (v *validator) validateTables(d Descriptor) {
	if len(d.Tables) < 2 || len(d.Tables) > 3 {
		v.addViolation("expected 2 or 3 participant tables, got %d", len(d.Tables))
	}
	for _, t := range d.Tables {
		if _, dup := v.tables[t.Name]; dup {
			v.addViolation("duplicate participant table %q", t.Name)
		}
		v.tables[t.Name] = t
	}
	if _, ok := v.tables[d.DrivingTable]; !ok {
		v.addViolation("driving table %q is not a participant", d.DrivingTable)
	}
	if d.GeometryTable != "" {
		if _, ok := v.tables[d.GeometryTable]; !ok {
			v.addViolation("geometry table %q is not a participant", d.GeometryTable)
		}
	}
	if (d.RequestedJoinType == ir.JoinInner) != (d.JoinType == ir.JoinInner) {
		v.addViolation("requested join %s cannot compile to positional join %s", d.RequestedJoinType, d.JoinType)
	}
}

// validateOrdering enforces geometry-before-bridge for many-to-many joins.
func (v *validator) validateOrdering(d Descriptor) {
	m, ok := ir.Deref(d.Association).(ir.ManyToMany)
	if !ok {
		return
	}
	if m.Table1.HasGeometry() == m.Table2.HasGeometry() {
		return
	}

	geometryTable := m.Table1.Name
	if m.Table2.HasGeometry() {
		geometryTable = m.Table2.Name
	}
	geomIdx, bridgeIdx := -1, -1
	for i, t := range d.Tables {
		switch t.Name {
		case geometryTable:
			geomIdx = i
		case m.Bridge.Name:
			bridgeIdx = i
		}
	}
	if geomIdx < 0 || bridgeIdx < 0 {
		v.addViolation("many-to-many order %v must contain %q and bridge %q", d.TableNames(), geometryTable, m.Bridge.Name)
		return
	}
	if geomIdx > bridgeIdx {
		v.addViolation("geometry table %q must precede bridge %q in %v", geometryTable, m.Bridge.Name, d.TableNames())
	}
}

func (v *validator) validateFields(d Descriptor) {
	if len(d.Fields) == 0 {
		v.addViolation("projection is empty")
	}

	seen := make(map[string]bool, len(d.Fields))
	geometries := 0
	for i, f := range d.Fields {
		if seen[f.QualifiedName] {
			v.addViolation("duplicate qualified field %q", f.QualifiedName)
		}
		seen[f.QualifiedName] = true

		t, ok := v.tables[f.Table]
		if !ok {
			v.addViolation("field %q comes from non-participant table %q", f.QualifiedName, f.Table)
			continue
		}
		if !t.HasField(f.Field) {
			v.addViolation("field %q: table %q has no field %q", f.QualifiedName, f.Table, f.Field)
		}
		if f.Type == ir.FieldGeometry {
			geometries++
			if f.Table != d.GeometryTable {
				v.addViolation("geometry field %q is not from geometry table %q", f.QualifiedName, d.GeometryTable)
			}
			if i != len(d.Fields)-1 {
				v.addViolation("geometry field %q must be projected last", f.QualifiedName)
			}
		}
	}
	if geometries > 1 {
		v.addViolation("at most one geometry field may be projected, got %d", geometries)
	}
}

func (v *validator) validateIdentity(d Descriptor) {
	if !d.HasIdentity() {
		if d.IdentityTable != "" {
			v.addViolation("identity table %q set without identity field", d.IdentityTable)
		}
		return
	}
	f, ok := d.Field(d.IdentityField)
	if !ok {
		v.addViolation("identity field %q is not projected", d.IdentityField)
		return
	}
	if !f.IsIdentityField {
		v.addViolation("identity field %q is not flagged as identity", d.IdentityField)
	}
	if f.Table != d.IdentityTable {
		v.addViolation("identity field %q belongs to %q, not identity table %q", d.IdentityField, f.Table, d.IdentityTable)
	}
}

func (v *validator) validatePayload(d Descriptor) {
	switch d.Strategy {
	case StrategyPredicate:
		if d.Predicate == nil {
			v.addViolation("predicate strategy requires a predicate payload")
		}
		if d.Statement != nil {
			v.addViolation("predicate strategy must not carry a statement payload")
		}
		conditions := 0
		for _, p := range Conjuncts(d.Predicate) {
			if v.validateCondition(p, d) {
				conditions++
			}
		}
		if conditions != len(d.Tables)-1 {
			v.addViolation("expected %d join conditions, got %d", len(d.Tables)-1, conditions)
		}
	case StrategyStatement:
		if d.Statement == nil {
			v.addViolation("statement strategy requires a statement payload")
		}
		if d.Predicate != nil {
			v.addViolation("statement strategy must not carry a predicate payload")
		}
		if d.Statement != nil {
			scanned := v.validateQuery(d.Statement, d)
			if scanned != len(d.Tables) {
				v.addViolation("statement scans %d tables, expected %d", scanned, len(d.Tables))
			}
		}
	default:
		v.addViolation("unknown strategy %q", d.Strategy)
	}
}

// validateCondition reports whether p is a join condition between participants.
func (v *validator) validateCondition(p Predicate, d Descriptor) bool {
	eq, ok := p.(ColumnEquals)
	if !ok {
		if ptr, isPtr := p.(*ColumnEquals); isPtr {
			eq, ok = *ptr, true
		}
	}
	if !ok {
		v.addViolation("unexpected predicate %T in join payload", p)
		return false
	}
	for _, ref := range []ColumnRef{eq.Left, eq.Right} {
		if _, known := v.tables[ref.Table]; !known {
			v.addViolation("condition references non-participant table %q", ref.Table)
		}
	}
	if d.JoinType == ir.JoinInner && eq.Outer != OuterNone {
		v.addViolation("inner join condition %s = %s carries an outer marker", eq.Left, eq.Right)
	}
	if d.JoinType != ir.JoinInner && eq.Outer == OuterNone {
		v.addViolation("outer join condition %s = %s lacks an outer marker", eq.Left, eq.Right)
	}
	return true
}

// validateQuery walks a statement tree and returns the number of scans.
func (v *validator) validateQuery(q Query, d Descriptor) int {
	switch query := q.(type) {
	case Scan:
		if _, ok := v.tables[query.Table]; !ok {
			v.addViolation("statement scans non-participant table %q", query.Table)
		}
		return 1
	case *Scan:
		return v.validateQuery(*query, d)
	case Join:
		if query.Type != ir.JoinInner && query.Type != ir.JoinLeft {
			v.addViolation("statement join must be inner or left, got %s", query.Type)
		}
		if query.On == nil {
			v.addViolation("statement join requires an ON condition")
		}
		return v.validateQuery(query.Left, d) + v.validateQuery(query.Right, d)
	case *Join:
		return v.validateQuery(*query, d)
	default:
		v.addViolation("unknown query type: %T", q)
		return 0
	}
}

func (v *validator) validateMode(d Descriptor) {
	switch d.Mode {
	case ModePushDown:
		if !d.HasIdentity() {
			v.addViolation("push-down mode requires an identity field")
		}
		if d.IncludeAssociationRows {
			v.addViolation("association rows are only iterated in virtual mode")
		}
	case ModeVirtual:
		if d.HasIdentity() && !d.IncludeAssociationRows {
			v.addViolation("virtual mode with an identity field must iterate association rows")
		}
		if d.IncludeAssociationRows {
			if d.Cardinality != ir.CardinalityManyToMany {
				v.addViolation("association rows require a many-to-many association")
			}
			if d.JoinType != ir.JoinInner {
				v.addViolation("association rows require an inner join")
			}
		}
	default:
		v.addViolation("unknown mode %q", d.Mode)
	}
}
