// Package queryir provides the query intermediate representation produced
// by the reljoin join compiler.
//
// ARCHITECTURE:
//
// The compiler never talks SQL. It emits a Descriptor, and backends render
// or evaluate it:
//
//	[association] → [compiler] → [Descriptor] → [querysql]  (push-down)
//	                                          → [engine]    (virtual)
//
// A Descriptor carries one of two join payloads, chosen by Strategy:
//
//   - StrategyPredicate: a flat table list plus one conjunction of column
//     equalities (Predicate). Outer joins mark the nullable column of each
//     equality; dialects that support it render the marker as (+).
//   - StrategyStatement: a left-deep tree of Join nodes (Statement), always
//     LEFT or INNER. A positional Right join is normalized to Left by
//     reversing the tree; the participant order itself is never reversed.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, so backends can switch
// exhaustively:
//
//	switch q := query.(type) {
//	case Scan:
//	    // Handle scan
//	case Join:
//	    // Handle join
//	default:
//	    // Impossible - return an error
//	}
//
// INVARIANTS:
//
// Validate checks every Descriptor the compiler returns:
//   - qualified field names are unique
//   - a geometry table precedes the bridge table when it is joined to a
//     table without geometry
//   - the identity field, when present, is projected and belongs to
//     IdentityTable
//   - the payload matches the strategy and the mode matches the identity
package queryir
