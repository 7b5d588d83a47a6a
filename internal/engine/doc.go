// Package engine evaluates compiled join descriptors.
//
// Two evaluation paths exist:
//
// Push-down: the store materializes the descriptor as a computed dataset
// (a temporary view for SQL stores) and the engine scans it.
//
// Virtual: VirtualJoinedTable scans the iteration table and fetches related
// rows one lookup at a time. It is used when the relation has no identity
// field, or when a many-to-many join must yield one row per bridge row.
//
// Both paths are exposed as range-over-func sequences
// (iter.Seq2[ir.Record, error]). Sequences are lazy and pull-based: no
// goroutines, no prefetching. Stopping the range closes every cursor.
// Cancellation is cooperative through the context passed to the store.
//
// INVARIANTS:
//   - Inner joins never emit a row without a match on every hop
//   - Outer joins emit every iteration row at least once; unmatched
//     fields are Null
//   - Output rows carry exactly the descriptor's fields, keyed by
//     qualified name, in both modes
package engine
