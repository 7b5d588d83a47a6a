package testutil

import (
	"context"

	"github.com/roach88/reljoin/internal/ir"
)

// TableA is A(id, name).
func TableA() ir.Table {
	return ir.Table{
		Name: "a",
		Fields: []ir.Field{
			{Name: "id", Type: ir.FieldInteger, IsIdentity: true},
			{Name: "name", Type: ir.FieldText},
		},
		IdentityField: "id",
		Scan:          ir.ScanKeyed,
	}
}

// TableB is B(id, a_id, value).
func TableB() ir.Table {
	return ir.Table{
		Name: "b",
		Fields: []ir.Field{
			{Name: "id", Type: ir.FieldInteger, IsIdentity: true},
			{Name: "a_id", Type: ir.FieldInteger},
			{Name: "value", Type: ir.FieldText},
		},
		IdentityField: "id",
		Scan:          ir.ScanKeyed,
	}
}

// AssocAB is the one-to-many foreign key B.a_id -> A.id.
func AssocAB() ir.ForeignKey {
	return ir.ForeignKey{
		Name:        "a_b",
		Referenced:  TableA(),
		PrimaryKey:  "id",
		Referencing: TableB(),
		ForeignKey:  "a_id",
	}
}

// RowsA holds (1,"x") and (2,"y").
func RowsA() []ir.Record {
	return []ir.Record{
		{"id": ir.Int(1), "name": ir.Text("x")},
		{"id": ir.Int(2), "name": ir.Text("y")},
	}
}

// RowsB holds (10,1,"v1") and (11,1,"v2"); nothing references A(2).
func RowsB() []ir.Record {
	return []ir.Record{
		{"id": ir.Int(10), "a_id": ir.Int(1), "value": ir.Text("v1")},
		{"id": ir.Int(11), "a_id": ir.Int(1), "value": ir.Text("v2")},
	}
}

// Parcels carries geometry and a measurement field.
func Parcels() ir.Table {
	return ir.Table{
		Name: "parcels",
		Fields: []ir.Field{
			{Name: "objectid", Type: ir.FieldInteger, IsIdentity: true},
			{Name: "name", Type: ir.FieldText},
			{Name: "zone_id", Type: ir.FieldInteger},
			{Name: "shape", Type: ir.FieldGeometry},
			{Name: "shape_area", Type: ir.FieldReal, IsMeasurement: true},
		},
		IdentityField: "objectid",
	}
}

// Owners has no geometry.
func Owners() ir.Table {
	return ir.Table{
		Name: "owners",
		Fields: []ir.Field{
			{Name: "objectid", Type: ir.FieldInteger, IsIdentity: true},
			{Name: "name", Type: ir.FieldText},
		},
		IdentityField: "objectid",
	}
}

// ParcelOwner bridges Parcels and Owners.
func ParcelOwner() ir.Table {
	return ir.Table{
		Name: "parcel_owner",
		Fields: []ir.Field{
			{Name: "objectid", Type: ir.FieldInteger, IsIdentity: true},
			{Name: "parcel_id", Type: ir.FieldInteger},
			{Name: "owner_id", Type: ir.FieldInteger},
			{Name: "share", Type: ir.FieldReal},
		},
		IdentityField: "objectid",
	}
}

// AssocParcelOwners relates Parcels and Owners through ParcelOwner.
func AssocParcelOwners() ir.ManyToMany {
	return ir.ManyToMany{
		Name:       "parcel_owners",
		Table1:     Parcels(),
		Key1:       "objectid",
		Table2:     Owners(),
		Key2:       "objectid",
		Bridge:     ParcelOwner(),
		BridgeKey1: "parcel_id",
		BridgeKey2: "owner_id",
	}
}

// AssocOwnersParcels is AssocParcelOwners with the endpoints swapped, so
// the geometry table is Table2.
func AssocOwnersParcels() ir.ManyToMany {
	return ir.ManyToMany{
		Name:       "owners_parcels",
		Table1:     Owners(),
		Key1:       "objectid",
		Table2:     Parcels(),
		Key2:       "objectid",
		Bridge:     ParcelOwner(),
		BridgeKey1: "owner_id",
		BridgeKey2: "parcel_id",
	}
}

// Zones carries geometry too.
func Zones() ir.Table {
	return ir.Table{
		Name: "zones",
		Fields: []ir.Field{
			{Name: "objectid", Type: ir.FieldInteger, IsIdentity: true},
			{Name: "code", Type: ir.FieldText},
			{Name: "boundary", Type: ir.FieldGeometry},
			{Name: "boundary_length", Type: ir.FieldReal, IsMeasurement: true},
		},
		IdentityField: "objectid",
	}
}

// AssocZoneParcels is the foreign key parcels.zone_id -> zones.objectid,
// joining two geometry tables.
func AssocZoneParcels() ir.ForeignKey {
	return ir.ForeignKey{
		Name:        "zone_parcels",
		Referenced:  Zones(),
		PrimaryKey:  "objectid",
		Referencing: Parcels(),
		ForeignKey:  "zone_id",
	}
}

// RowsParcels holds three parcels; parcel 3 has no owner.
func RowsParcels() []ir.Record {
	return []ir.Record{
		{"objectid": ir.Int(1), "name": ir.Text("north"), "zone_id": ir.Int(100), "shape": ir.Blob("p1"), "shape_area": ir.Real(10.5)},
		{"objectid": ir.Int(2), "name": ir.Text("south"), "zone_id": ir.Int(100), "shape": ir.Blob("p2"), "shape_area": ir.Real(20)},
		{"objectid": ir.Int(3), "name": ir.Text("east"), "zone_id": ir.Int(200), "shape": ir.Blob("p3"), "shape_area": ir.Real(5.25)},
	}
}

// RowsOwners holds three owners; owner 7 owns nothing.
func RowsOwners() []ir.Record {
	return []ir.Record{
		{"objectid": ir.Int(5), "name": ir.Text("ana")},
		{"objectid": ir.Int(6), "name": ir.Text("ben")},
		{"objectid": ir.Int(7), "name": ir.Text("cy")},
	}
}

// RowsParcelOwner links parcel 1 to owners 5 and 6, parcel 2 to owner 5.
func RowsParcelOwner() []ir.Record {
	return []ir.Record{
		{"objectid": ir.Int(900), "parcel_id": ir.Int(1), "owner_id": ir.Int(5), "share": ir.Real(0.5)},
		{"objectid": ir.Int(901), "parcel_id": ir.Int(1), "owner_id": ir.Int(6), "share": ir.Real(0.5)},
		{"objectid": ir.Int(902), "parcel_id": ir.Int(2), "owner_id": ir.Int(5), "share": ir.Real(1)},
	}
}

// RowsZones holds zone 100 only; parcel 3 points at a missing zone.
func RowsZones() []ir.Record {
	return []ir.Record{
		{"objectid": ir.Int(100), "code": ir.Text("R1"), "boundary": ir.Blob("z100"), "boundary_length": ir.Real(40)},
	}
}

// Loader is any store that can create tables and insert rows.
type Loader interface {
	CreateTable(ctx context.Context, t ir.Table) error
	Insert(ctx context.Context, table string, rows ...ir.Record) error
}

// Seed creates each table in tables and inserts its rows.
func Seed(ctx context.Context, l Loader, tables []ir.Table, rows map[string][]ir.Record) error {
	for _, t := range tables {
		if err := l.CreateTable(ctx, t); err != nil {
			return err
		}
		if err := l.Insert(ctx, t.Name, rows[t.Name]...); err != nil {
			return err
		}
	}
	return nil
}

// SeedAB loads A and B.
func SeedAB(ctx context.Context, l Loader) error {
	return Seed(ctx, l, []ir.Table{TableA(), TableB()}, map[string][]ir.Record{
		"a": RowsA(),
		"b": RowsB(),
	})
}

// SeedParcels loads parcels, owners, parcel_owner and zones.
func SeedParcels(ctx context.Context, l Loader) error {
	return Seed(ctx, l, []ir.Table{Parcels(), Owners(), ParcelOwner(), Zones()}, map[string][]ir.Record{
		"parcels":      RowsParcels(),
		"owners":       RowsOwners(),
		"parcel_owner": RowsParcelOwner(),
		"zones":        RowsZones(),
	})
}
