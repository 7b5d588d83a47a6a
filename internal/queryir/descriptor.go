package queryir

import "github.com/roach88/reljoin/internal/ir"

// Descriptor is a compiled joined relation: everything a store needs to
// push the join down, or the engine needs to evaluate it in process.
//
// Descriptors are immutable once compiled.
type Descriptor struct {
	Association ir.Association `json:"-"`
	Cardinality ir.Cardinality `json:"cardinality"`

	// RequestedJoinType is relative to DrivingTable; JoinType is positional
	// over Tables (Left preserves Tables[0], Right preserves the last table).
	RequestedJoinType ir.JoinType `json:"requested_join_type"`
	JoinType          ir.JoinType `json:"join_type"`

	Strategy Strategy `json:"strategy"`
	Mode     Mode     `json:"mode"`

	// Tables is the participant order.
	Tables []ir.Table `json:"-"`

	// Exactly one payload is set, matching Strategy.
	Predicate Predicate `json:"-"`
	Statement Query     `json:"-"`

	Fields []JoinedSubfield `json:"fields"`

	// IdentityField is the qualified name of the row identity; empty when
	// no field is safe to use.
	IdentityField string `json:"identity_field,omitempty"`
	IdentityTable string `json:"identity_table,omitempty"`
	GeometryTable string `json:"geometry_table,omitempty"`
	DrivingTable  string `json:"driving_table"`

	// IncludeAssociationRows makes virtual evaluation iterate bridge rows.
	IncludeAssociationRows bool `json:"include_association_rows,omitempty"`
}

// HasIdentity reports whether the relation has a safe row identity.
func (d Descriptor) HasIdentity() bool {
	return d.IdentityField != ""
}

// TableNames returns participant names in order.
func (d Descriptor) TableNames() []string {
	names := make([]string, len(d.Tables))
	for i, t := range d.Tables {
		names[i] = t.Name
	}
	return names
}

// Table looks up a participant by name.
func (d Descriptor) Table(name string) (ir.Table, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return ir.Table{}, false
}

// PreservedTable returns the table an outer join keeps complete, or ""
// for an inner join.
func (d Descriptor) PreservedTable() string {
	if len(d.Tables) == 0 {
		return ""
	}
	switch d.JoinType {
	case ir.JoinLeft:
		return d.Tables[0].Name
	case ir.JoinRight:
		return d.Tables[len(d.Tables)-1].Name
	default:
		return ""
	}
}

// IterationTable returns the table virtual evaluation iterates: the bridge
// when association rows are included, the preserved table of an outer
// join, and the driving table otherwise.
func (d Descriptor) IterationTable() string {
	if d.IncludeAssociationRows {
		if m, ok := ir.Deref(d.Association).(ir.ManyToMany); ok {
			return m.Bridge.Name
		}
	}
	if preserved := d.PreservedTable(); preserved != "" {
		return preserved
	}
	return d.DrivingTable
}

// Field looks up a projected field by qualified name.
func (d Descriptor) Field(qualifiedName string) (JoinedSubfield, bool) {
	for _, f := range d.Fields {
		if f.QualifiedName == qualifiedName {
			return f, true
		}
	}
	return JoinedSubfield{}, false
}

// FieldNames returns qualified names in projection order.
func (d Descriptor) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.QualifiedName
	}
	return names
}

// FieldsOf returns the projected fields sourced from table, in order.
func (d Descriptor) FieldsOf(table string) []JoinedSubfield {
	var out []JoinedSubfield
	for _, f := range d.Fields {
		if f.Table == table {
			out = append(out, f)
		}
	}
	return out
}
