package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
)

// MemoryStore is a Backend holding every table in memory.
//
// CreateComputedDataset evaluates descriptors by nested loops with SQL
// join semantics, which makes the store a reference to check push-down
// results against. Keyed tables get hash indexes for GetRelated; sequential
// tables are scanned.
//
// Thread-safety: safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	tables     map[string]*memTable
	computed   map[string]struct{}
	capability queryir.JoinCapability
	names      NameGenerator
	logger     *slog.Logger
}

type memTable struct {
	schema ir.Table
	rows   []ir.Record
	// index maps field -> value key -> row positions. Built lazily.
	index map[string]map[string][]int
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithJoinCapability sets the capability reported to the compiler.
// Default: no predicate outer joins.
func WithJoinCapability(c queryir.JoinCapability) MemoryOption {
	return func(m *MemoryStore) {
		m.capability = c
	}
}

// WithDatasetNames sets how computed datasets are named.
func WithDatasetNames(g NameGenerator) MemoryOption {
	return func(m *MemoryStore) {
		m.names = g
	}
}

// WithMemoryLogger sets the logger.
func WithMemoryLogger(logger *slog.Logger) MemoryOption {
	return func(m *MemoryStore) {
		m.logger = logger
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		tables:   make(map[string]*memTable),
		computed: make(map[string]struct{}),
		names:    UUIDv7Names{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// QualifyFieldName implements Backend.
func (m *MemoryStore) QualifyFieldName(table, field string) string {
	return table + "." + field
}

// GetJoinCapability implements Backend.
func (m *MemoryStore) GetJoinCapability() queryir.JoinCapability {
	return m.capability
}

// CreateTable registers an empty table. Creating an existing table fails.
func (m *MemoryStore) CreateTable(_ context.Context, t ir.Table) error {
	if err := t.Validate(); err != nil {
		return fetchError("create table", t.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tables[t.Name]; exists {
		return fetchError("create table", t.Name, fmt.Errorf("table already exists"))
	}
	m.tables[t.Name] = &memTable{schema: t}
	return nil
}

// Insert appends rows. Values are coerced to the declared field types and
// missing fields are stored as Null.
func (m *MemoryStore) Insert(_ context.Context, table string, rows ...ir.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, ok := m.tables[table]
	if !ok {
		return fetchError("insert", table, ErrUnknownTable)
	}

	prepared := make([]ir.Record, 0, len(rows))
	for i, row := range rows {
		for k := range row {
			if !mt.schema.HasField(k) {
				return fetchError("insert", table, fmt.Errorf("row %d: field %q not found", i, k))
			}
		}
		rec := make(ir.Record, len(mt.schema.Fields))
		for _, f := range mt.schema.Fields {
			rec[f.Name] = ir.Coerce(row.Get(f.Name), f.Type)
		}
		prepared = append(prepared, rec)
	}

	mt.rows = append(mt.rows, prepared...)
	mt.index = nil
	return nil
}

// OpenScan implements Backend. Predicates may use Equals and And;
// column comparisons are rejected.
func (m *MemoryStore) OpenScan(ctx context.Context, table string, predicate queryir.Predicate, projection []string) (Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mt, ok := m.tables[table]
	if !ok {
		return nil, fetchError("scan", table, ErrUnknownTable)
	}
	for _, f := range projection {
		if !mt.schema.HasField(f) {
			return nil, fetchError("scan", table, fmt.Errorf("field %q not found", f))
		}
	}

	var out []ir.Record
	for _, row := range mt.rows {
		match, err := matchRecord(row, predicate)
		if err != nil {
			return nil, fetchError("scan", table, err)
		}
		if match {
			out = append(out, projectRecord(row, projection))
		}
	}
	m.logger.Debug("memory scan", "table", table, "rows", len(out))
	return &sliceCursor{ctx: ctx, table: table, rows: out}, nil
}

// GetRelated implements Backend.
func (m *MemoryStore) GetRelated(ctx context.Context, assoc ir.Association, fromTable string, row ir.Record) ([]ir.Record, error) {
	plan, err := relatedPlan(assoc, fromTable)
	if err != nil {
		return nil, fetchError("related", fromTable, err)
	}
	return getRelated(ctx, plan, row, func(ctx context.Context, step relatedStep, key ir.Value) ([]ir.Record, error) {
		if err := ctx.Err(); err != nil {
			return nil, fetchError("related", step.Table.Name, err)
		}
		rows, err := m.lookup(step.Table.Name, step.Field, key)
		if err != nil {
			return nil, fetchError("related", step.Table.Name, err)
		}
		return rows, nil
	})
}

func (m *MemoryStore) lookup(table, field string, key ir.Value) ([]ir.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, ok := m.tables[table]
	if !ok {
		return nil, ErrUnknownTable
	}
	if !mt.schema.HasField(field) {
		return nil, fmt.Errorf("field %q not found", field)
	}

	var out []ir.Record
	if mt.schema.Scan == ir.ScanKeyed {
		k, ok := ir.Key(key)
		if !ok {
			return nil, nil
		}
		for _, pos := range mt.indexOn(field)[k] {
			out = append(out, mt.rows[pos].Clone())
		}
		return out, nil
	}

	for _, row := range mt.rows {
		if ir.Equal(row.Get(field), key) {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func (mt *memTable) indexOn(field string) map[string][]int {
	if mt.index == nil {
		mt.index = make(map[string]map[string][]int)
	}
	if idx, ok := mt.index[field]; ok {
		return idx
	}
	idx := make(map[string][]int)
	for pos, row := range mt.rows {
		if k, ok := ir.Key(row.Get(field)); ok {
			idx[k] = append(idx[k], pos)
		}
	}
	mt.index[field] = idx
	return idx
}

// CreateComputedDataset implements Backend by evaluating the descriptor
// eagerly and storing the result as a table.
func (m *MemoryStore) CreateComputedDataset(ctx context.Context, d queryir.Descriptor) (Dataset, error) {
	if err := queryir.Validate(d).Err(); err != nil {
		return Dataset{}, fetchError("dataset", "", err)
	}
	if err := ctx.Err(); err != nil {
		return Dataset{}, fetchError("dataset", "", err)
	}

	rows, err := m.Evaluate(d)
	if err != nil {
		return Dataset{}, fetchError("dataset", "", err)
	}

	ds := Dataset{Name: m.names.Generate(), Fields: d.Fields, Identity: d.IdentityField}
	t := ds.Table()
	if err := t.Validate(); err != nil {
		return Dataset{}, fetchError("dataset", ds.Name, err)
	}

	m.mu.Lock()
	m.tables[ds.Name] = &memTable{schema: t, rows: rows}
	m.computed[ds.Name] = struct{}{}
	m.mu.Unlock()

	m.logger.Debug("computed dataset", "name", ds.Name, "rows", len(rows))
	return ds, nil
}

// DropComputedDataset implements Backend. Only computed datasets are
// removed; base tables are left alone.
func (m *MemoryStore) DropComputedDataset(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.computed[name]; !ok {
		return nil
	}
	delete(m.computed, name)
	delete(m.tables, name)
	return nil
}

// Len returns the number of tables held, computed datasets included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables)
}

// Evaluate computes the joined relation a descriptor describes, keyed by
// qualified field names. Join conditions follow SQL semantics: Null never
// matches, and left joins pad the unmatched side with Null.
func (m *MemoryStore) Evaluate(d queryir.Descriptor) ([]ir.Record, error) {
	tree, err := joinTree(d)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	combined, err := m.evalQuery(tree)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := make([]ir.Record, len(combined))
	for i, row := range combined {
		rec := make(ir.Record, len(d.Fields))
		for _, f := range d.Fields {
			rec[f.QualifiedName] = row.Get(f.Ref().String())
		}
		out[i] = rec
	}
	return out, nil
}

// joinTree returns the statement tree for a descriptor, building a
// left-deep one from the predicate conjuncts when needed.
func joinTree(d queryir.Descriptor) (queryir.Query, error) {
	if d.Strategy == queryir.StrategyStatement {
		if d.Statement == nil {
			return nil, fmt.Errorf("statement strategy without a statement")
		}
		return d.Statement, nil
	}

	conds := queryir.Conjuncts(d.Predicate)
	names := d.TableNames()
	if len(conds) != len(names)-1 {
		return nil, fmt.Errorf("%d join conditions for %d tables", len(conds), len(names))
	}

	joinType := d.JoinType
	if joinType == ir.JoinRight {
		slices.Reverse(names)
		slices.Reverse(conds)
		joinType = ir.JoinLeft
	}

	var q queryir.Query = queryir.Scan{Table: names[0]}
	for i := 1; i < len(names); i++ {
		q = queryir.Join{Left: q, Right: queryir.Scan{Table: names[i]}, Type: joinType, On: conds[i-1]}
	}
	return q, nil
}

// evalQuery evaluates a statement tree. Rows are keyed by "table.field".
// Callers hold m.mu.
func (m *MemoryStore) evalQuery(q queryir.Query) ([]ir.Record, error) {
	switch query := q.(type) {
	case queryir.Scan:
		return m.evalScan(query)
	case *queryir.Scan:
		return m.evalScan(*query)
	case queryir.Join:
		return m.evalJoin(query)
	case *queryir.Join:
		return m.evalJoin(*query)
	default:
		return nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (m *MemoryStore) evalScan(s queryir.Scan) ([]ir.Record, error) {
	mt, ok := m.tables[s.Table]
	if !ok {
		return nil, fmt.Errorf("table %q: %w", s.Table, ErrUnknownTable)
	}
	out := make([]ir.Record, 0, len(mt.rows))
	for _, row := range mt.rows {
		rec := make(ir.Record, len(row))
		for k, v := range row {
			rec[s.Table+"."+k] = v
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryStore) evalJoin(j queryir.Join) ([]ir.Record, error) {
	if j.Type != ir.JoinInner && j.Type != ir.JoinLeft {
		return nil, fmt.Errorf("statement joins must be inner or left, got %q", j.Type)
	}
	left, err := m.evalQuery(j.Left)
	if err != nil {
		return nil, err
	}
	right, err := m.evalQuery(j.Right)
	if err != nil {
		return nil, err
	}

	var out []ir.Record
	for _, l := range left {
		matched := false
		for _, r := range right {
			merged := l.Clone()
			for k, v := range r {
				merged[k] = v
			}
			ok, err := matchRecord(merged, j.On)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = true
				out = append(out, merged)
			}
		}
		if !matched && j.Type == ir.JoinLeft {
			out = append(out, l.Clone())
		}
	}
	return out, nil
}

// matchRecord evaluates a predicate against a record. Column references
// are looked up by their "table.field" form.
func matchRecord(rec ir.Record, p queryir.Predicate) (bool, error) {
	switch pred := p.(type) {
	case nil:
		return true, nil
	case queryir.Equals:
		return ir.Equal(rec.Get(pred.Field), pred.Value), nil
	case *queryir.Equals:
		return ir.Equal(rec.Get(pred.Field), pred.Value), nil
	case queryir.ColumnEquals:
		return ir.Equal(rec.Get(pred.Left.String()), rec.Get(pred.Right.String())), nil
	case *queryir.ColumnEquals:
		return ir.Equal(rec.Get(pred.Left.String()), rec.Get(pred.Right.String())), nil
	case queryir.And:
		return matchAll(rec, pred.Predicates)
	case *queryir.And:
		return matchAll(rec, pred.Predicates)
	default:
		return false, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func matchAll(rec ir.Record, preds []queryir.Predicate) (bool, error) {
	for _, p := range preds {
		ok, err := matchRecord(rec, p)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func projectRecord(row ir.Record, projection []string) ir.Record {
	if len(projection) == 0 {
		return row.Clone()
	}
	out := make(ir.Record, len(projection))
	for _, f := range projection {
		out[f] = row.Get(f)
	}
	return out
}

// sliceCursor iterates a materialized result.
type sliceCursor struct {
	ctx    context.Context
	table  string
	rows   []ir.Record
	pos    int
	cur    ir.Record
	err    error
	closed bool
}

func (c *sliceCursor) Next() bool {
	if c.closed || c.err != nil || c.pos >= len(c.rows) {
		c.cur = nil
		return false
	}
	if err := c.ctx.Err(); err != nil {
		c.err = fetchError("scan", c.table, err)
		c.cur = nil
		return false
	}
	c.cur = c.rows[c.pos]
	c.pos++
	return true
}

func (c *sliceCursor) Record() ir.Record { return c.cur }
func (c *sliceCursor) Err() error        { return c.err }

func (c *sliceCursor) Close() error {
	c.closed = true
	c.rows = nil
	c.cur = nil
	return nil
}
