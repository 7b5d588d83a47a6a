package engine

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
	"github.com/roach88/reljoin/internal/store"
)

// hop attaches rows of to, fetched through assoc from the row of from.
type hop struct {
	assoc ir.Association
	from  string
	to    string
}

// VirtualJoinedTable evaluates a descriptor by nested lookups instead of
// pushing the join down to the store.
//
// The iteration table is scanned once per Rows call; every row fans out
// through GetRelated, one hop per association leg. Many-to-many joins walk
// endpoint -> bridge -> endpoint, or bridge -> both endpoints when the
// descriptor iterates association rows.
//
// A VirtualJoinedTable is immutable. Concurrent Rows sequences are
// independent; each opens its own cursor.
type VirtualJoinedTable struct {
	backend store.Backend
	desc    queryir.Descriptor
	root    ir.Table
	hops    []hop
}

// OpenVirtual prepares a descriptor for virtual evaluation. No I/O happens
// until the sequence returned by Rows is ranged over.
func OpenVirtual(b store.Backend, d queryir.Descriptor) (*VirtualJoinedTable, error) {
	if err := queryir.Validate(d).Err(); err != nil {
		return nil, invalidDescriptor(err)
	}

	rootName := d.IterationTable()
	root, ok := d.Table(rootName)
	if !ok {
		return nil, invalidDescriptor(fmt.Errorf("iteration table %q is not a participant", rootName))
	}

	hops, err := planHops(d.Association, rootName)
	if err != nil {
		return nil, invalidDescriptor(err)
	}

	return &VirtualJoinedTable{backend: b, desc: d, root: root, hops: hops}, nil
}

// planHops orders the association legs outward from the iteration table.
func planHops(assoc ir.Association, root string) ([]hop, error) {
	switch a := ir.Deref(assoc).(type) {
	case ir.ForeignKey:
		switch root {
		case a.Referencing.Name:
			return []hop{{assoc: a, from: root, to: a.Referenced.Name}}, nil
		case a.Referenced.Name:
			return []hop{{assoc: a, from: root, to: a.Referencing.Name}}, nil
		}
	case ir.ManyToMany:
		leg1, leg2 := a.Legs()
		switch root {
		case a.Bridge.Name:
			return []hop{
				{assoc: leg1, from: root, to: a.Table1.Name},
				{assoc: leg2, from: root, to: a.Table2.Name},
			}, nil
		case a.Table1.Name:
			return []hop{
				{assoc: leg1, from: root, to: a.Bridge.Name},
				{assoc: leg2, from: a.Bridge.Name, to: a.Table2.Name},
			}, nil
		case a.Table2.Name:
			return []hop{
				{assoc: leg2, from: root, to: a.Bridge.Name},
				{assoc: leg1, from: a.Bridge.Name, to: a.Table1.Name},
			}, nil
		}
	default:
		return nil, fmt.Errorf("unsupported association type: %T", assoc)
	}
	return nil, fmt.Errorf("table %q does not take part in association %q", root, ir.AssociationName(assoc))
}

// Descriptor returns the descriptor the table evaluates.
func (v *VirtualJoinedTable) Descriptor() queryir.Descriptor {
	return v.desc
}

// IterationTable names the table Rows scans.
func (v *VirtualJoinedTable) IterationTable() string {
	return v.root.Name
}

// Rows returns the joined rows lazily, keyed by qualified field names.
//
// drivingFilter restricts the iteration table by equality on its own
// (unqualified) field names; nil or empty means every row. Inner joins
// drop rows with no match. Outer joins emit the iteration row once with
// every unmatched field Null.
//
// The sequence is forward-only. Ranging over it again re-executes the
// scan. A failed fetch yields a *store.FetchError and ends the sequence.
func (v *VirtualJoinedTable) Rows(ctx context.Context, drivingFilter ir.Record) iter.Seq2[ir.Record, error] {
	return func(yield func(ir.Record, error) bool) {
		for _, field := range drivingFilter.SortedKeys() {
			if !v.root.HasField(field) {
				yield(nil, invalidFilter(v.root.Name, field, "is not a field of the iteration table"))
				return
			}
		}

		slog.Debug("virtual join",
			"association", ir.AssociationName(v.desc.Association),
			"table", v.root.Name,
			"hops", len(v.hops),
			"join", v.desc.JoinType,
		)

		cursor, err := v.backend.OpenScan(ctx, v.root.Name, queryir.EqualsFilter(drivingFilter), nil)
		if err != nil {
			yield(nil, store.WrapFetchError("scan", v.root.Name, err))
			return
		}
		defer cursor.Close()

		for cursor.Next() {
			tuple := map[string]ir.Record{v.root.Name: cursor.Record()}
			cont, err := v.expand(ctx, tuple, 0, yield)
			if err != nil {
				yield(nil, err)
				return
			}
			if !cont {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(nil, store.WrapFetchError("scan", v.root.Name, err))
		}
	}
}

// expand follows hops[i:] from a partial tuple and yields every completed
// row. It reports false once the consumer stops.
func (v *VirtualJoinedTable) expand(ctx context.Context, tuple map[string]ir.Record, i int, yield func(ir.Record, error) bool) (bool, error) {
	if i == len(v.hops) {
		return yield(v.merge(tuple), nil), nil
	}

	h := v.hops[i]
	var related []ir.Record
	if src := tuple[h.from]; src != nil {
		var err error
		related, err = v.backend.GetRelated(ctx, h.assoc, h.from, src)
		if err != nil {
			return false, store.WrapFetchError("related", h.from, err)
		}
	}

	if len(related) == 0 {
		if !v.desc.JoinType.IsOuter() {
			return true, nil
		}
		tuple[h.to] = nil
		return v.expand(ctx, tuple, i+1, yield)
	}

	for _, r := range related {
		tuple[h.to] = r
		cont, err := v.expand(ctx, tuple, i+1, yield)
		if err != nil || !cont {
			return cont, err
		}
	}
	return true, nil
}

// merge builds the output row. Tables missing from the tuple are padded.
func (v *VirtualJoinedTable) merge(tuple map[string]ir.Record) ir.Record {
	out := make(ir.Record, len(v.desc.Fields))
	for _, f := range v.desc.Fields {
		if row := tuple[f.Table]; row != nil {
			out[f.QualifiedName] = row.Get(f.Field)
			continue
		}
		out[f.QualifiedName] = ir.Null{}
	}
	return out
}
