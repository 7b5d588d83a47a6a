package queryir

import "github.com/roach88/reljoin/internal/ir"

// Query represents an abstract query over participant tables.
//
// This is a sealed interface - only types in this package implement it.
// Query types:
//   - Scan: access to a single table with optional filter and projection
//   - Join: two queries combined with INNER or LEFT semantics
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter or join condition.
//
// This is a sealed interface - only types in this package implement it.
// Predicate types:
//   - ColumnEquals: table.field = table.field (join condition)
//   - Equals: field = literal value (filter)
//   - And: all predicates must be true
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Scan reads rows of one table.
//
//	SELECT <fields> FROM <table> WHERE <filter> ORDER BY <order_by>
//
// Empty Fields selects every column; empty OrderBy leaves order to the store.
type Scan struct {
	Table   string
	Filter  Predicate // nil = no filter
	Fields  []string
	OrderBy []string

	// Limit caps the rows returned; 0 means no limit. Offset skips rows
	// and only makes sense together with OrderBy.
	Limit  int
	Offset int
}

func (Scan) queryNode() {}

// Join combines two queries.
//
//	<left> [LEFT] JOIN <right> ON <on>
//
// Type is JoinInner or JoinLeft; a Right join is expressed by swapping
// Left and Right.
type Join struct {
	Left  Query
	Right Query
	Type  ir.JoinType
	On    Predicate
}

func (Join) queryNode() {}

// ColumnRef names a field of a participant table.
type ColumnRef struct {
	Table string
	Field string
}

// String renders the reference as table.field.
func (c ColumnRef) String() string {
	return c.Table + "." + c.Field
}

// OuterSide marks which operand of a ColumnEquals may be null-padded.
type OuterSide int

const (
	// OuterNone: inner equality, neither side padded.
	OuterNone OuterSide = iota
	// OuterLeft: the Left column belongs to the nullable table.
	OuterLeft
	// OuterRight: the Right column belongs to the nullable table.
	OuterRight
)

// ColumnEquals is an equi-join condition between two participant columns.
//
//	<left> = <right>          (OuterNone)
//	<left>(+) = <right>       (OuterLeft)
//	<left> = <right>(+)       (OuterRight)
type ColumnEquals struct {
	Left  ColumnRef
	Right ColumnRef
	Outer OuterSide
}

func (ColumnEquals) predicateNode() {}

// Equals compares a field against a literal.
//
// Field is a bare field name inside a Scan filter and a qualified name
// (table.field) when filtering joined rows. Null never equals anything.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// And represents a conjunction of predicates (empty = always true).
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Conjuncts flattens nested And predicates into a list.
func Conjuncts(p Predicate) []Predicate {
	switch pred := p.(type) {
	case nil:
		return nil
	case And:
		var out []Predicate
		for _, sub := range pred.Predicates {
			out = append(out, Conjuncts(sub)...)
		}
		return out
	case *And:
		return Conjuncts(*pred)
	default:
		return []Predicate{p}
	}
}

// EqualsFilter builds a conjunction of Equals predicates from a record,
// with keys in canonical order. An empty record yields nil.
func EqualsFilter(rec ir.Record) Predicate {
	if len(rec) == 0 {
		return nil
	}
	keys := rec.SortedKeys()
	preds := make([]Predicate, len(keys))
	for i, k := range keys {
		preds[i] = Equals{Field: k, Value: rec[k]}
	}
	if len(preds) == 1 {
		return preds[0]
	}
	return And{Predicates: preds}
}

// JoinedSubfield is one output field of a joined relation.
type JoinedSubfield struct {
	QualifiedName   string       `json:"qualified_name"`
	Table           string       `json:"table"`
	Field           string       `json:"field"`
	Type            ir.FieldType `json:"type"`
	IsIdentityField bool         `json:"is_identity_field,omitempty"`
}

// Ref returns the source column of the subfield.
func (s JoinedSubfield) Ref() ColumnRef {
	return ColumnRef{Table: s.Table, Field: s.Field}
}

// JoinCapability describes what a store can push down.
type JoinCapability struct {
	SupportsPredicateOuterJoin bool `json:"supports_predicate_outer_join"`
}

// Strategy selects how the join is expressed to the store.
type Strategy string

const (
	StrategyPredicate Strategy = "predicate"
	StrategyStatement Strategy = "statement"
)

// Mode selects where the join is computed.
type Mode string

const (
	ModePushDown Mode = "push_down"
	ModeVirtual  Mode = "virtual"
)
