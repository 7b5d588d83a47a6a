package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
)

// Backend is the store surface the compiler and the virtual engine consume.
// All blocking calls take a context; cancellation stops the call, not the
// store.
type Backend interface {
	// OpenScan streams rows of table matching predicate. A nil predicate
	// matches every row; an empty projection returns every field.
	OpenScan(ctx context.Context, table string, predicate queryir.Predicate, projection []string) (Cursor, error)

	// GetRelated returns the rows on the far side of assoc for a row of
	// fromTable. Many-to-many lookups go through the bridge and yield one
	// row per matching bridge row.
	GetRelated(ctx context.Context, assoc ir.Association, fromTable string, row ir.Record) ([]ir.Record, error)

	QualifyFieldName(table, field string) string
	GetJoinCapability() queryir.JoinCapability

	// CreateComputedDataset materializes a push-down descriptor as a
	// scannable dataset. It lives until DropComputedDataset or, at the
	// latest, until the store is closed.
	CreateComputedDataset(ctx context.Context, d queryir.Descriptor) (Dataset, error)

	// DropComputedDataset releases a dataset. Unknown names are ignored.
	DropComputedDataset(ctx context.Context, name string) error
}

// Cursor iterates scanned rows. It follows the database/sql.Rows protocol:
// call Next until it returns false, then check Err. Close is idempotent.
type Cursor interface {
	Next() bool
	Record() ir.Record
	Err() error
	Close() error
}

// Dataset is a computed relation created from a descriptor.
type Dataset struct {
	Name     string
	Fields   []queryir.JoinedSubfield
	Identity string // qualified identity field; empty when none
}

// Table describes the dataset as a scannable table keyed by qualified
// field names.
func (d Dataset) Table() ir.Table {
	fields := make([]ir.Field, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = ir.Field{
			Name:       f.QualifiedName,
			Type:       f.Type,
			IsIdentity: f.IsIdentityField,
		}
	}
	return ir.Table{Name: d.Name, Fields: fields, IdentityField: d.Identity}
}

// ErrUnknownTable is returned for tables the store has not registered.
var ErrUnknownTable = errors.New("unknown table")

// FetchError wraps a failed store round-trip.
type FetchError struct {
	Op    string // scan, related, dataset, drop dataset, create table, insert
	Table string
	Err   error
}

func (e *FetchError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func fetchError(op, table string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Op: op, Table: table, Err: err}
}

// Collect drains a cursor into a slice and closes it.
func Collect(c Cursor) ([]ir.Record, error) {
	defer c.Close()

	rows := []ir.Record{}
	for c.Next() {
		rows = append(rows, c.Record())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// relatedStep is one hop of a GetRelated lookup: match rows of Table whose
// Field equals the source row's Key.
type relatedStep struct {
	Table ir.Table
	Field string
	Key   string
}

// relatedPlan resolves the hops from fromTable across assoc. Foreign keys
// take one hop; many-to-many endpoints take two, through the bridge.
func relatedPlan(assoc ir.Association, fromTable string) ([]relatedStep, error) {
	switch a := ir.Deref(assoc).(type) {
	case ir.ForeignKey:
		switch fromTable {
		case a.Referencing.Name:
			return []relatedStep{{Table: a.Referenced, Field: a.PrimaryKey, Key: a.ForeignKey}}, nil
		case a.Referenced.Name:
			return []relatedStep{{Table: a.Referencing, Field: a.ForeignKey, Key: a.PrimaryKey}}, nil
		}
	case ir.ManyToMany:
		switch fromTable {
		case a.Table1.Name:
			return []relatedStep{
				{Table: a.Bridge, Field: a.BridgeKey1, Key: a.Key1},
				{Table: a.Table2, Field: a.Key2, Key: a.BridgeKey2},
			}, nil
		case a.Table2.Name:
			return []relatedStep{
				{Table: a.Bridge, Field: a.BridgeKey2, Key: a.Key2},
				{Table: a.Table1, Field: a.Key1, Key: a.BridgeKey1},
			}, nil
		case a.Bridge.Name:
			return nil, fmt.Errorf("association %q: look up bridge rows through its legs", a.Name)
		}
	case nil:
		return nil, fmt.Errorf("nil association")
	default:
		return nil, fmt.Errorf("unsupported association type: %T", assoc)
	}
	return nil, fmt.Errorf("table %q does not take part in association %q", fromTable, ir.AssociationName(assoc))
}

// getRelated runs a plan with a single-hop lookup function.
func getRelated(ctx context.Context, plan []relatedStep, row ir.Record, lookup func(context.Context, relatedStep, ir.Value) ([]ir.Record, error)) ([]ir.Record, error) {
	current := []ir.Record{row}
	for _, step := range plan {
		var next []ir.Record
		for _, r := range current {
			key := r.Get(step.Key)
			if ir.IsNull(key) {
				continue
			}
			found, err := lookup(ctx, step, key)
			if err != nil {
				return nil, err
			}
			next = append(next, found...)
		}
		current = next
	}
	if current == nil {
		current = []ir.Record{}
	}
	return current, nil
}

// WrapFetchError wraps err as a *FetchError unless it already is one.
func WrapFetchError(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return fetchError(op, table, err)
}
