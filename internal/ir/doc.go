// Package ir provides the data model shared by every reljoin package:
// field values, records, table schemas and association descriptions.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - Value and Association are sealed; switches over them enumerate every variant
//   - Records are flat: field name -> Value, never nested
//   - Canonical JSON (RFC 8785) is the only serialization used for hashing
//   - All JSON tags use snake_case
package ir
