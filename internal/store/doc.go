// Package store provides the backends reljoin compiles for and reads from.
//
// Two implementations satisfy Backend:
//   - SQLStore: database/sql over SQLite (mattn/go-sqlite3), DuckDB
//     (marcboeker/go-duckdb) or PostgreSQL (jackc/pgx). Computed datasets
//     are temporary views.
//   - MemoryStore: tables held in memory. Computed datasets are evaluated
//     by nested loops, which makes it the reference for push-down results.
//
// # Database Configuration
//
// SQLStore pins its pool to one connection, because :memory: databases and
// temporary views belong to a single session. SQLite connections opened
// with Open also get:
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// # Deterministic Scans
//
// Every scan orders by the table's identity field, or by all fields when
// there is none, and reads in pages of DefaultPageSize rows.
//
// Failed round-trips return *FetchError; callers never retry.
package store
