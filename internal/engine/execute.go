package engine

import (
	"context"
	"iter"
	"log/slog"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
	"github.com/roach88/reljoin/internal/store"
)

// Execute runs a descriptor the way its mode dictates: push-down
// descriptors become a computed dataset that is scanned; virtual ones go
// through a VirtualJoinedTable. The dataset is dropped when the sequence
// ends, whether it finished, was stopped early or failed.
//
// filter keys are fields of the iteration table (Descriptor.IterationTable),
// unqualified. In push-down mode a filtered field must be projected.
// Both modes yield rows keyed by qualified field names.
func Execute(ctx context.Context, b store.Backend, d queryir.Descriptor, filter ir.Record) iter.Seq2[ir.Record, error] {
	return func(yield func(ir.Record, error) bool) {
		if d.Mode == queryir.ModeVirtual {
			vt, err := OpenVirtual(b, d)
			if err != nil {
				yield(nil, err)
				return
			}
			for rec, err := range vt.Rows(ctx, filter) {
				if !yield(rec, err) || err != nil {
					return
				}
			}
			return
		}

		if err := queryir.Validate(d).Err(); err != nil {
			yield(nil, invalidDescriptor(err))
			return
		}

		root := d.IterationTable()
		qualified := make(ir.Record, len(filter))
		for _, field := range filter.SortedKeys() {
			name := b.QualifyFieldName(root, field)
			if _, ok := d.Field(name); !ok {
				yield(nil, invalidFilter(root, field, "is not projected"))
				return
			}
			qualified[name] = filter[field]
		}

		ds, err := b.CreateComputedDataset(ctx, d)
		if err != nil {
			yield(nil, store.WrapFetchError("dataset", "", err))
			return
		}
		defer func() {
			if err := b.DropComputedDataset(context.WithoutCancel(ctx), ds.Name); err != nil {
				slog.Warn("drop computed dataset", "dataset", ds.Name, "error", err)
			}
		}()
		slog.Debug("push-down join",
			"association", ir.AssociationName(d.Association),
			"dataset", ds.Name,
			"strategy", d.Strategy,
		)

		cursor, err := b.OpenScan(ctx, ds.Name, queryir.EqualsFilter(qualified), nil)
		if err != nil {
			yield(nil, store.WrapFetchError("scan", ds.Name, err))
			return
		}
		defer cursor.Close()

		for cursor.Next() {
			if !yield(cursor.Record(), nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(nil, store.WrapFetchError("scan", ds.Name, err))
		}
	}
}

// Collect drains a row sequence. It stops at the first error.
func Collect(seq iter.Seq2[ir.Record, error]) ([]ir.Record, error) {
	rows := []ir.Record{}
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// RequireIdentity returns an error when the relation has no identity field.
func RequireIdentity(d queryir.Descriptor) error {
	if d.HasIdentity() {
		return nil
	}
	return NewIdentityError(ir.AssociationName(d.Association))
}
