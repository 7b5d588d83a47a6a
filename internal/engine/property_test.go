package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/roach88/reljoin/internal/compiler"
	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
	"github.com/roach88/reljoin/internal/store"
	"github.com/roach88/reljoin/internal/testutil"
)

// buildAB loads A(1..nA) and one B row per link. A link of 0 stores a
// Null foreign key; links above nA dangle.
func buildAB(nA int, links []int) (*store.MemoryStore, error) {
	ctx := context.Background()
	m := store.NewMemoryStore()

	rowsA := make([]ir.Record, nA)
	for i := range rowsA {
		rowsA[i] = ir.Record{"id": ir.Int(i + 1), "name": ir.Text(fmt.Sprintf("a%d", i+1))}
	}
	rowsB := make([]ir.Record, len(links))
	for i, link := range links {
		var fk ir.Value = ir.Int(link)
		if link == 0 {
			fk = ir.Null{}
		}
		rowsB[i] = ir.Record{"id": ir.Int(100 + i), "a_id": fk, "value": ir.Text(fmt.Sprintf("v%d", i))}
	}

	err := testutil.Seed(ctx, m, []ir.Table{testutil.TableA(), testutil.TableB()}, map[string][]ir.Record{
		"a": rowsA,
		"b": rowsB,
	})
	return m, err
}

// buildParcelOwners loads parcels 1..nP, owners 1..nO and one bridge row
// per pair. A pair p*5+o links parcel p to owner o; zeros and ids past the
// table size dangle.
func buildParcelOwners(nP, nO int, pairs []int) (*store.MemoryStore, error) {
	ctx := context.Background()
	m := store.NewMemoryStore()

	parcels := make([]ir.Record, nP)
	for i := range parcels {
		parcels[i] = ir.Record{"objectid": ir.Int(i + 1), "name": ir.Text(fmt.Sprintf("p%d", i+1)), "shape": ir.Blob{byte(i)}}
	}
	owners := make([]ir.Record, nO)
	for i := range owners {
		owners[i] = ir.Record{"objectid": ir.Int(i + 1), "name": ir.Text(fmt.Sprintf("o%d", i+1))}
	}
	bridge := make([]ir.Record, len(pairs))
	for i, pair := range pairs {
		bridge[i] = ir.Record{"objectid": ir.Int(1000 + i), "parcel_id": ir.Int(pair / 5), "owner_id": ir.Int(pair % 5)}
	}

	err := testutil.Seed(ctx, m, []ir.Table{testutil.Parcels(), testutil.Owners(), testutil.ParcelOwner()}, map[string][]ir.Record{
		"parcels":      parcels,
		"owners":       owners,
		"parcel_owner": bridge,
	})
	return m, err
}

func rowsOf(m *store.MemoryStore, assoc ir.Association, join ir.JoinType, opts compiler.Options, filter ir.Record) (queryir.Descriptor, []ir.Record, error) {
	desc, err := compiler.New(m).Compile(assoc, join, opts)
	if err != nil {
		return queryir.Descriptor{}, nil, err
	}
	rows, err := Collect(Execute(context.Background(), m, desc, filter))
	return desc, rows, err
}

func sameMultiset(a, b []ir.Record) bool {
	if len(a) != len(b) {
		return false
	}
	ha, err := ir.ResultHash(a)
	if err != nil {
		return false
	}
	hb, err := ir.ResultHash(b)
	return err == nil && ha == hb
}

func TestProperty_ForeignKeyJoins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	linksGen := gen.SliceOf(gen.IntRange(0, 7))

	properties.Property("inner join driven by referencing table has unique identity", prop.ForAll(
		func(nA int, links []int) bool {
			m, err := buildAB(nA, links)
			if err != nil {
				return false
			}
			desc, rows, err := rowsOf(m, testutil.AssocAB(), ir.JoinInner, compiler.Options{DrivingTable: "b"}, nil)
			if err != nil || desc.IdentityField != "b.id" {
				return false
			}
			seen := map[string]bool{}
			for _, r := range rows {
				key, ok := ir.Key(r[desc.IdentityField])
				if !ok || seen[key] {
					return false
				}
				seen[key] = true
			}
			return true
		},
		gen.IntRange(1, 6),
		linksGen,
	))

	properties.Property("projected values round-trip from source rows", prop.ForAll(
		func(nA int, links []int) bool {
			m, err := buildAB(nA, links)
			if err != nil {
				return false
			}
			_, rows, err := rowsOf(m, testutil.AssocAB(), ir.JoinInner, compiler.Options{DrivingTable: "a"}, nil)
			if err != nil {
				return false
			}

			matched := 0
			for _, link := range links {
				if link >= 1 && link <= nA {
					matched++
				}
			}
			if len(rows) != matched {
				return false
			}

			for _, r := range rows {
				i := int(r["b.id"].(ir.Int)) - 100
				link := links[i]
				if r["b.value"] != ir.Text(fmt.Sprintf("v%d", i)) {
					return false
				}
				if r["a.name"] != ir.Text(fmt.Sprintf("a%d", link)) || r["a.id"] != ir.Int(link) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 6),
		linksGen,
	))

	properties.Property("left join pads unmatched driving rows exactly once", prop.ForAll(
		func(nA int, links []int) bool {
			m, err := buildAB(nA, links)
			if err != nil {
				return false
			}
			referenced := map[int]bool{}
			for _, link := range links {
				referenced[link] = true
			}

			for id := 1; id <= nA; id++ {
				desc, rows, err := rowsOf(m, testutil.AssocAB(), ir.JoinLeft, compiler.Options{DrivingTable: "a"}, ir.Record{"id": ir.Int(id)})
				if err != nil {
					return false
				}
				if referenced[id] {
					if len(rows) == 0 {
						return false
					}
					continue
				}
				if len(rows) != 1 {
					return false
				}
				for _, f := range desc.Fields {
					if f.Table != "a" && !ir.IsNull(rows[0][f.QualifiedName]) {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 6),
		linksGen,
	))

	// Push-down and virtual evaluation agree on every join type.
	properties.Property("virtual evaluation matches the nested-loop reference", prop.ForAll(
		func(nA int, links []int, joinIdx int) bool {
			m, err := buildAB(nA, links)
			if err != nil {
				return false
			}
			join := ir.ValidJoinTypes[joinIdx]
			desc, err := compiler.New(m).Compile(testutil.AssocAB(), join, compiler.Options{})
			if err != nil {
				return false
			}
			vt, err := OpenVirtual(m, desc)
			if err != nil {
				return false
			}
			virtual, err := Collect(vt.Rows(context.Background(), nil))
			if err != nil {
				return false
			}
			want, err := m.Evaluate(desc)
			if err != nil {
				return false
			}
			return sameMultiset(virtual, want)
		},
		gen.IntRange(1, 6),
		linksGen,
		gen.IntRange(0, len(ir.ValidJoinTypes)-1),
	))

	properties.TestingRun(t)
}

func TestProperty_ManyToManyJoins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	pairsGen := gen.SliceOf(gen.IntRange(0, 24))

	properties.Property("association rows are unique and counted per bridge row", prop.ForAll(
		func(nP, nO int, pairs []int) bool {
			m, err := buildParcelOwners(nP, nO, pairs)
			if err != nil {
				return false
			}
			desc, rows, err := rowsOf(m, testutil.AssocParcelOwners(), ir.JoinInner, compiler.Options{GuaranteeUniqueIdentity: true}, nil)
			if err != nil || desc.Mode != queryir.ModeVirtual {
				return false
			}

			seen := map[string]bool{}
			for _, r := range rows {
				key, ok := ir.Key(r["parcel_owner.objectid"])
				if !ok || seen[key] {
					return false
				}
				seen[key] = true
			}

			matching := 0
			for _, pair := range pairs {
				p, o := pair/5, pair%5
				if p >= 1 && p <= nP && o >= 1 && o <= nO {
					matching++
				}
			}
			if len(rows) != matching {
				return false
			}

			reference, err := compiler.New(m).Compile(testutil.AssocParcelOwners(), ir.JoinInner, compiler.Options{})
			if err != nil {
				return false
			}
			want, err := m.Evaluate(reference)
			return err == nil && len(want) == len(rows)
		},
		gen.IntRange(1, 4),
		gen.IntRange(1, 4),
		pairsGen,
	))

	properties.Property("outer many-to-many virtual rows match the reference", prop.ForAll(
		func(nP, nO int, pairs []int, joinIdx int) bool {
			m, err := buildParcelOwners(nP, nO, pairs)
			if err != nil {
				return false
			}
			join := ir.ValidJoinTypes[joinIdx]
			desc, rows, err := rowsOf(m, testutil.AssocParcelOwners(), join, compiler.Options{}, nil)
			if err != nil {
				return false
			}
			want, err := m.Evaluate(desc)
			return err == nil && sameMultiset(rows, want)
		},
		gen.IntRange(1, 4),
		gen.IntRange(1, 4),
		pairsGen,
		gen.IntRange(0, len(ir.ValidJoinTypes)-1),
	))

	properties.TestingRun(t)
}
