package testutil

import "github.com/roach88/reljoin/internal/queryir"

// FixedTarget is a compile target with a fixed capability.
//
// Field names are qualified as table.field, matching the SQL and memory
// stores. It performs no I/O and is safe for concurrent use.
type FixedTarget struct {
	PredicateOuterJoin bool
}

// NewFixedTarget creates a target. outer reports whether predicate outer
// joins are supported.
func NewFixedTarget(outer bool) *FixedTarget {
	return &FixedTarget{PredicateOuterJoin: outer}
}

// QualifyFieldName returns table.field.
func (t *FixedTarget) QualifyFieldName(table, field string) string {
	return table + "." + field
}

// GetJoinCapability returns the fixed capability.
func (t *FixedTarget) GetJoinCapability() queryir.JoinCapability {
	return queryir.JoinCapability{SupportsPredicateOuterJoin: t.PredicateOuterJoin}
}
