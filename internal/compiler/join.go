package compiler

import (
	"slices"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
)

// JoinDefinition is the participant order and join conditions computed
// for one association, join type and driving table.
type JoinDefinition struct {
	Association ir.Association
	Cardinality ir.Cardinality

	// RequestedJoinType is relative to Driving; JoinType is positional over
	// Tables.
	RequestedJoinType ir.JoinType
	JoinType          ir.JoinType

	// Tables is the participant order.
	Tables []ir.Table

	// Conditions holds one equality per adjacent pair of Tables, in order.
	// Outer joins mark the operand of the nullable table.
	Conditions []queryir.ColumnEquals

	Driving           ir.Table
	DrivingDesignated bool

	// GeometryTable is the single geometry source, or "" when no
	// participant carries geometry.
	GeometryTable string

	// Bridge is the bridge table name for many-to-many associations.
	Bridge string
}

// DefineJoin resolves the driving table, orders participants and builds the
// join conditions. driving may be empty.
//
// Ordering rules:
//   - one geometry table G and one plain table N: [G, bridge, N]; when N
//     drives, the positional join type is mirrored
//   - otherwise: [driving, bridge, other]
func DefineJoin(assoc ir.Association, joinType ir.JoinType, driving string) (*JoinDefinition, error) {
	assoc = ir.Deref(assoc)
	if assoc == nil {
		return nil, newError(ErrCodeInvalidAssociation, "", "", "association is required")
	}
	if err := assoc.Validate(); err != nil {
		return nil, newError(ErrCodeInvalidAssociation, "", "", "%s: %v", ir.AssociationName(assoc), err)
	}
	if _, err := ir.ParseJoinType(string(joinType)); err != nil {
		return nil, newError(ErrCodeInvalidAssociation, "", "", "%v", err)
	}

	cardinality, err := ir.CardinalityOf(assoc)
	if err != nil {
		return nil, newError(ErrCodeInvalidAssociation, "", "", "%v", err)
	}
	first, second, err := ir.Endpoints(assoc)
	if err != nil {
		return nil, newError(ErrCodeInvalidAssociation, "", "", "%v", err)
	}

	drivingTable, other, designated, err := resolveDriving(first, second, joinType, driving)
	if err != nil {
		return nil, err
	}

	def := &JoinDefinition{
		Association:       assoc,
		Cardinality:       cardinality,
		RequestedJoinType: joinType,
		JoinType:          joinType,
		Driving:           drivingTable,
		DrivingDesignated: designated,
	}

	var bridge *ir.Table
	if m, ok := assoc.(ir.ManyToMany); ok {
		bridge = &m.Bridge
		def.Bridge = m.Bridge.Name
	}

	// The designated driving table supplies geometry when both sides carry it.
	head, tail := drivingTable, other
	switch {
	case drivingTable.HasGeometry():
		def.GeometryTable = drivingTable.Name
	case other.HasGeometry():
		def.GeometryTable = other.Name
		head, tail = other, drivingTable
		def.JoinType = joinType.Mirror()
	}

	def.Tables = []ir.Table{head}
	if bridge != nil {
		def.Tables = append(def.Tables, *bridge)
	}
	def.Tables = append(def.Tables, tail)

	def.Conditions = buildConditions(assoc, def.Tables, def.JoinType)
	return def, nil
}

// resolveDriving picks the driving table and checks the join direction.
func resolveDriving(first, second ir.Table, joinType ir.JoinType, driving string) (ir.Table, ir.Table, bool, error) {
	if driving != "" {
		var d, o ir.Table
		switch driving {
		case first.Name:
			d, o = first, second
		case second.Name:
			d, o = second, first
		default:
			return ir.Table{}, ir.Table{}, false, newError(ErrCodeInvalidDrivingTable, driving, "",
				"driving table must be one of %q or %q", first.Name, second.Name)
		}
		if joinType == ir.JoinRight {
			return ir.Table{}, ir.Table{}, false, newError(ErrCodeIncompatibleJoinDirection, driving, "",
				"a designated driving table supplies the relation and cannot be the nullable side of a right join")
		}
		return d, o, true, nil
	}

	g1, g2 := first.HasGeometry(), second.HasGeometry()
	switch {
	case g1 && g2:
		return ir.Table{}, ir.Table{}, false, newError(ErrCodeInvalidDrivingTable, "", "",
			"both %q and %q carry geometry; a driving table must be designated", first.Name, second.Name)
	case g2:
		return second, first, false, nil
	default:
		// first is the referencing table for a foreign key, Table1 for a bridge.
		return first, second, false, nil
	}
}

// buildConditions emits one equality per adjacent pair of tables.
//
//	foreign key:  Referenced.PK = Referencing.FK
//	many-to-many: Table1.Key1 = Bridge.BridgeKey1, Bridge.BridgeKey2 = Table2.Key2
func buildConditions(assoc ir.Association, tables []ir.Table, positional ir.JoinType) []queryir.ColumnEquals {
	var conds []queryir.ColumnEquals
	switch a := assoc.(type) {
	case ir.ForeignKey:
		conds = []queryir.ColumnEquals{{
			Left:  queryir.ColumnRef{Table: a.Referenced.Name, Field: a.PrimaryKey},
			Right: queryir.ColumnRef{Table: a.Referencing.Name, Field: a.ForeignKey},
		}}
	case ir.ManyToMany:
		conds = []queryir.ColumnEquals{
			{
				Left:  queryir.ColumnRef{Table: a.Table1.Name, Field: a.Key1},
				Right: queryir.ColumnRef{Table: a.Bridge.Name, Field: a.BridgeKey1},
			},
			{
				Left:  queryir.ColumnRef{Table: a.Bridge.Name, Field: a.BridgeKey2},
				Right: queryir.ColumnRef{Table: a.Table2.Name, Field: a.Key2},
			},
		}
		// Table2 first means the pairs are visited in reverse.
		if tables[0].Name == a.Table2.Name {
			slices.Reverse(conds)
		}
	}

	if !positional.IsOuter() {
		return conds
	}

	position := make(map[string]int, len(tables))
	for i, t := range tables {
		position[t.Name] = i
	}
	for i := range conds {
		leftPos, rightPos := position[conds[i].Left.Table], position[conds[i].Right.Table]
		// Left preserves the earlier table of each pair, Right the later one.
		nullableIsLater := positional == ir.JoinLeft
		if (leftPos > rightPos) == nullableIsLater {
			conds[i].Outer = queryir.OuterLeft
		} else {
			conds[i].Outer = queryir.OuterRight
		}
	}
	return conds
}

// PreservedTable returns the table the positional outer join keeps
// complete, or "" for inner joins.
func (d *JoinDefinition) PreservedTable() string {
	switch d.JoinType {
	case ir.JoinLeft:
		return d.Tables[0].Name
	case ir.JoinRight:
		return d.Tables[len(d.Tables)-1].Name
	default:
		return ""
	}
}

// Predicate returns the conditions as a single conjunction.
func (d *JoinDefinition) Predicate() queryir.Predicate {
	if len(d.Conditions) == 1 {
		return d.Conditions[0]
	}
	preds := make([]queryir.Predicate, len(d.Conditions))
	for i, c := range d.Conditions {
		preds[i] = c
	}
	return queryir.And{Predicates: preds}
}

// Statement returns a left-deep join tree over the participant order.
// A positional Right join is normalized to Left by walking the order from
// the preserved end.
func (d *JoinDefinition) Statement() queryir.Query {
	tables := slices.Clone(d.Tables)
	conds := slices.Clone(d.Conditions)
	joinType := d.JoinType
	if joinType == ir.JoinRight {
		slices.Reverse(tables)
		slices.Reverse(conds)
		joinType = ir.JoinLeft
	}

	var q queryir.Query = queryir.Scan{Table: tables[0].Name}
	for i := 1; i < len(tables); i++ {
		q = queryir.Join{
			Left:  q,
			Right: queryir.Scan{Table: tables[i].Name},
			Type:  joinType,
			On:    conds[i-1],
		}
	}
	return q
}

// Table looks up a participant by name.
func (d *JoinDefinition) Table(name string) (ir.Table, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return ir.Table{}, false
}

// IsEndpoint reports whether name is one of the two joined tables.
func (d *JoinDefinition) IsEndpoint(name string) bool {
	return name != d.Bridge && slices.ContainsFunc(d.Tables, func(t ir.Table) bool { return t.Name == name })
}
