package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
	"github.com/roach88/reljoin/internal/querysql"
)

// DefaultPageSize is the number of rows a cursor fetches per round-trip.
const DefaultPageSize = 256

// SQLStore is a Backend over database/sql.
//
// The pool is pinned to a single connection: SQLite :memory: databases and
// temporary views are per connection, so every statement must see the same
// session. Cursors therefore read in pages and never hold the connection
// between calls to Next, which lets the virtual engine issue lookups while
// a driving scan is open.
//
// Thread-safety: safe for concurrent use; statements serialize on the
// single connection.
type SQLStore struct {
	db       *sql.DB
	owned    bool
	dialect  querysql.Dialect
	compiler *querysql.SQLCompiler
	names    NameGenerator
	logger   *slog.Logger
	pageSize int

	mu       sync.RWMutex
	tables   map[string]ir.Table
	datasets []string
}

// Option configures an SQLStore.
type Option func(*SQLStore)

// WithNameGenerator sets how computed datasets are named.
// Default: UUIDv7Names.
func WithNameGenerator(g NameGenerator) Option {
	return func(s *SQLStore) {
		s.names = g
	}
}

// WithLogger sets the logger for executed statements.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLStore) {
		s.logger = logger
	}
}

// WithPageSize sets the cursor page size. Values below 1 are ignored.
func WithPageSize(n int) Option {
	return func(s *SQLStore) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// Open connects to a database with one of the registered drivers
// (sqlite3, duckdb, pgx) and returns a store that owns the connection.
//
// SQLite connections are configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	dialect, err := querysql.DialectForDriver(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := New(db, dialect, opts...)
	s.owned = true

	if dialect == querysql.DialectSQLite {
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	return s, nil
}

// New wraps an existing connection pool. The caller keeps ownership of db;
// Close drops computed datasets but leaves db open.
func New(db *sql.DB, dialect querysql.Dialect, opts ...Option) *SQLStore {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLStore{
		db:       db,
		dialect:  dialect,
		compiler: querysql.NewSQLCompiler(dialect),
		names:    UUIDv7Names{},
		logger:   slog.Default(),
		pageSize: DefaultPageSize,
		tables:   make(map[string]ir.Table),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close drops computed datasets and, for stores created by Open, closes
// the database.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}

	s.mu.Lock()
	datasets := s.datasets
	s.datasets = nil
	s.mu.Unlock()

	var firstErr error
	for _, name := range datasets {
		if _, err := s.db.Exec(s.compiler.CompileDropView(name)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("drop dataset %s: %w", name, err)
		}
	}
	if s.owned {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using SQLStore methods when available.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Dialect reports the SQL dialect statements are rendered in.
func (s *SQLStore) Dialect() querysql.Dialect {
	return s.dialect
}

// Register makes an existing table scannable by name. Tables created with
// CreateTable are registered automatically.
func (s *SQLStore) Register(tables ...ir.Table) error {
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tables {
		s.tables[t.Name] = t
	}
	return nil
}

func (s *SQLStore) table(name string) (ir.Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	return t, ok
}

// QualifyFieldName implements Backend.
func (s *SQLStore) QualifyFieldName(table, field string) string {
	return table + "." + field
}

// GetJoinCapability implements Backend.
func (s *SQLStore) GetJoinCapability() queryir.JoinCapability {
	return s.dialect.Capability()
}

// CreateTable creates and registers a table.
func (s *SQLStore) CreateTable(ctx context.Context, t ir.Table) error {
	stmt, err := s.compiler.CompileCreateTable(t)
	if err != nil {
		return fetchError("create table", t.Name, err)
	}
	if err := s.exec(ctx, stmt); err != nil {
		return fetchError("create table", t.Name, err)
	}
	return s.Register(t)
}

// Insert writes rows into a registered table in one transaction.
func (s *SQLStore) Insert(ctx context.Context, table string, rows ...ir.Record) error {
	t, ok := s.table(table)
	if !ok {
		return fetchError("insert", table, ErrUnknownTable)
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fetchError("insert", table, err)
	}
	defer tx.Rollback()

	for i, row := range rows {
		stmt, params, err := s.compiler.CompileInsert(t, row)
		if err != nil {
			return fetchError("insert", table, fmt.Errorf("row %d: %w", i, err))
		}
		s.logger.Debug("exec", "sql", stmt, "params", len(params))
		if _, err := tx.ExecContext(ctx, stmt, params...); err != nil {
			return fetchError("insert", table, fmt.Errorf("row %d: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fetchError("insert", table, err)
	}
	return nil
}

// OpenScan implements Backend. The table must be registered.
func (s *SQLStore) OpenScan(ctx context.Context, table string, predicate queryir.Predicate, projection []string) (Cursor, error) {
	t, ok := s.table(table)
	if !ok {
		return nil, fetchError("scan", table, ErrUnknownTable)
	}
	return s.scan(ctx, t, predicate, projection)
}

func (s *SQLStore) scan(ctx context.Context, t ir.Table, predicate queryir.Predicate, projection []string) (*pagedCursor, error) {
	for _, f := range projection {
		if !t.HasField(f) {
			return nil, fetchError("scan", t.Name, fmt.Errorf("field %q not found", f))
		}
	}

	orderBy := t.FieldNames()
	if id, ok := t.Identity(); ok {
		orderBy = []string{id.Name}
	}

	return &pagedCursor{
		ctx:   ctx,
		store: s,
		table: t,
		scan: queryir.Scan{
			Table:   t.Name,
			Filter:  predicate,
			Fields:  projection,
			OrderBy: orderBy,
		},
	}, nil
}

// GetRelated implements Backend. Lookups scan the association's tables
// directly, so they need not be registered.
func (s *SQLStore) GetRelated(ctx context.Context, assoc ir.Association, fromTable string, row ir.Record) ([]ir.Record, error) {
	plan, err := relatedPlan(assoc, fromTable)
	if err != nil {
		return nil, fetchError("related", fromTable, err)
	}
	return getRelated(ctx, plan, row, func(ctx context.Context, step relatedStep, key ir.Value) ([]ir.Record, error) {
		c, err := s.scan(ctx, step.Table, queryir.Equals{Field: step.Field, Value: key}, nil)
		if err != nil {
			return nil, err
		}
		rows, err := Collect(c)
		if err != nil {
			return nil, fetchError("related", step.Table.Name, err)
		}
		return rows, nil
	})
}

// CreateComputedDataset implements Backend by creating a temporary view.
// The view lives until it is dropped or the store is closed.
func (s *SQLStore) CreateComputedDataset(ctx context.Context, d queryir.Descriptor) (Dataset, error) {
	if err := queryir.Validate(d).Err(); err != nil {
		return Dataset{}, fetchError("dataset", "", err)
	}

	name := s.names.Generate()
	stmt, params, err := s.compiler.CompileCreateView(name, d)
	if err != nil {
		return Dataset{}, fetchError("dataset", name, err)
	}
	if len(params) > 0 {
		return Dataset{}, fetchError("dataset", name, fmt.Errorf("view definitions cannot bind parameters"))
	}
	if err := s.exec(ctx, stmt); err != nil {
		return Dataset{}, fetchError("dataset", name, err)
	}

	ds := Dataset{Name: name, Fields: d.Fields, Identity: d.IdentityField}
	if err := s.Register(ds.Table()); err != nil {
		return Dataset{}, fetchError("dataset", name, err)
	}

	s.mu.Lock()
	s.datasets = append(s.datasets, name)
	s.mu.Unlock()
	return ds, nil
}

// DropComputedDataset implements Backend by dropping the view and
// unregistering it. Names this store did not create are ignored.
func (s *SQLStore) DropComputedDataset(ctx context.Context, name string) error {
	s.mu.Lock()
	i := slices.Index(s.datasets, name)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	s.datasets = slices.Delete(s.datasets, i, i+1)
	delete(s.tables, name)
	s.mu.Unlock()

	if err := s.exec(ctx, s.compiler.CompileDropView(name)); err != nil {
		return fetchError("drop dataset", name, err)
	}
	return nil
}

func (s *SQLStore) exec(ctx context.Context, stmt string, args ...any) error {
	s.logger.Debug("exec", "sql", stmt, "params", len(args))
	_, err := s.db.ExecContext(ctx, stmt, args...)
	return err
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLStore) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
