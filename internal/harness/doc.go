// Package harness provides conformance testing for joined relations.
//
// A scenario declares a small dataset, one association and a join over it.
// The harness seeds a fresh in-memory SQLite store and a fresh MemoryStore,
// compiles the join against each and runs it two ways per store: as
// compiled (push-down when the relation has an identity) and through a
// VirtualJoinedTable. All four row multisets must agree, and the agreed
// result must meet the scenario's expectations.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: parcel_owners_left
//	description: "Every parcel appears, owners or not"
//	tables:
//	  - name: parcels
//	    identity: objectid
//	    fields:
//	      - {name: objectid, type: integer, identity: true}
//	      - {name: shape, type: geometry}
//	    rows:
//	      - {objectid: 1, shape: "p1"}
//	association:
//	  name: parcel_owners
//	  many_to_many: {table1: parcels, key1: objectid, ...}
//	join: left
//	options:
//	  fields: [parcels.objectid, owners.name]
//	filter: {objectid: 1}
//	expect:
//	  mode: virtual
//	  identity: none
//	  count: 3
//	  null_padded: [owners]
//	  rows:
//	    - {parcels.objectid: 1, owners.name: ana}
//
// With "catalog: dir" tables may omit fields and the association may be
// given by name; both come from the CUE catalog in dir.
//
// # Expectations
//
//   - error: compile error code; the join must fail to compile on both stores
//   - rows: exact multiset; omitted fields mean null
//   - count: number of rows
//   - fields: projected qualified names, in order
//   - identity: identity field, or "none"
//   - unique_identity: identity values never repeat and are never null
//   - null_padded: tables padded with nulls in at least one row
//   - mode: push_down or virtual
//
// # Golden Files
//
// RunWithGolden snapshots the result as canonical JSON (rows sorted) and
// compares it with golden/{name}.golden next to the scenario file.
package harness
