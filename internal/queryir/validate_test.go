package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reljoin/internal/ir"
)

func tableA() ir.Table {
	return ir.Table{
		Name:          "a",
		Fields:        []ir.Field{{Name: "id", Type: ir.FieldInteger, IsIdentity: true}, {Name: "name", Type: ir.FieldText}},
		IdentityField: "id",
	}
}

func tableB() ir.Table {
	return ir.Table{
		Name: "b",
		Fields: []ir.Field{
			{Name: "id", Type: ir.FieldInteger, IsIdentity: true},
			{Name: "a_id", Type: ir.FieldInteger},
			{Name: "value", Type: ir.FieldText},
		},
		IdentityField: "id",
	}
}

// fkDescriptor is an inner FK join b.a_id -> a.id driven by b.
func fkDescriptor() Descriptor {
	a, b := tableA(), tableB()
	return Descriptor{
		Association:       ir.ForeignKey{Name: "a_b", Referenced: a, PrimaryKey: "id", Referencing: b, ForeignKey: "a_id"},
		Cardinality:       ir.CardinalityOneToMany,
		RequestedJoinType: ir.JoinInner,
		JoinType:          ir.JoinInner,
		Strategy:          StrategyPredicate,
		Mode:              ModePushDown,
		Tables:            []ir.Table{b, a},
		Predicate: ColumnEquals{
			Left:  ColumnRef{Table: "a", Field: "id"},
			Right: ColumnRef{Table: "b", Field: "a_id"},
		},
		Fields: []JoinedSubfield{
			{QualifiedName: "b.value", Table: "b", Field: "value", Type: ir.FieldText},
			{QualifiedName: "a.name", Table: "a", Field: "name", Type: ir.FieldText},
			{QualifiedName: "b.id", Table: "b", Field: "id", Type: ir.FieldInteger, IsIdentityField: true},
		},
		IdentityField: "b.id",
		IdentityTable: "b",
		DrivingTable:  "b",
	}
}

func geomTable(name string) ir.Table {
	return ir.Table{
		Name: name,
		Fields: []ir.Field{
			{Name: "objectid", Type: ir.FieldInteger, IsIdentity: true},
			{Name: "label", Type: ir.FieldText},
			{Name: "shape", Type: ir.FieldGeometry},
		},
		IdentityField: "objectid",
	}
}

// bridgeDescriptor is an inner M:N join iterating bridge rows.
func bridgeDescriptor() Descriptor {
	parcels := geomTable("parcels")
	owners := ir.Table{
		Name:          "owners",
		Fields:        []ir.Field{{Name: "objectid", Type: ir.FieldInteger, IsIdentity: true}, {Name: "owner", Type: ir.FieldText}},
		IdentityField: "objectid",
	}
	bridge := ir.Table{
		Name: "parcel_owner",
		Fields: []ir.Field{
			{Name: "objectid", Type: ir.FieldInteger, IsIdentity: true},
			{Name: "parcel_id", Type: ir.FieldInteger},
			{Name: "owner_id", Type: ir.FieldInteger},
		},
		IdentityField: "objectid",
	}
	return Descriptor{
		Association: ir.ManyToMany{
			Name: "parcel_owners", Table1: parcels, Key1: "objectid", Table2: owners, Key2: "objectid",
			Bridge: bridge, BridgeKey1: "parcel_id", BridgeKey2: "owner_id",
		},
		Cardinality:       ir.CardinalityManyToMany,
		RequestedJoinType: ir.JoinInner,
		JoinType:          ir.JoinInner,
		Strategy:          StrategyPredicate,
		Mode:              ModeVirtual,
		Tables:            []ir.Table{parcels, bridge, owners},
		Predicate: And{Predicates: []Predicate{
			ColumnEquals{Left: ColumnRef{"parcels", "objectid"}, Right: ColumnRef{"parcel_owner", "parcel_id"}},
			ColumnEquals{Left: ColumnRef{"parcel_owner", "owner_id"}, Right: ColumnRef{"owners", "objectid"}},
		}},
		Fields: []JoinedSubfield{
			{QualifiedName: "parcels.label", Table: "parcels", Field: "label", Type: ir.FieldText},
			{QualifiedName: "owners.owner", Table: "owners", Field: "owner", Type: ir.FieldText},
			{QualifiedName: "parcel_owner.objectid", Table: "parcel_owner", Field: "objectid", Type: ir.FieldInteger, IsIdentityField: true},
			{QualifiedName: "parcels.shape", Table: "parcels", Field: "shape", Type: ir.FieldGeometry},
		},
		IdentityField:          "parcel_owner.objectid",
		IdentityTable:          "parcel_owner",
		GeometryTable:          "parcels",
		DrivingTable:           "parcels",
		IncludeAssociationRows: true,
	}
}

func TestValidate_ValidDescriptors(t *testing.T) {
	testCases := []struct {
		name string
		desc Descriptor
	}{
		{"foreign key inner", fkDescriptor()},
		{"bridge inner virtual", bridgeDescriptor()},
		{"statement left", func() Descriptor {
			d := fkDescriptor()
			d.RequestedJoinType, d.JoinType = ir.JoinLeft, ir.JoinLeft
			d.Strategy = StrategyStatement
			d.Predicate = nil
			d.Statement = Join{
				Left:  Scan{Table: "b"},
				Right: Scan{Table: "a"},
				Type:  ir.JoinLeft,
				On:    ColumnEquals{Left: ColumnRef{"a", "id"}, Right: ColumnRef{"b", "a_id"}, Outer: OuterLeft},
			}
			return d
		}()},
		{"no identity virtual", func() Descriptor {
			d := fkDescriptor()
			d.Fields = d.Fields[:2]
			d.IdentityField, d.IdentityTable = "", ""
			d.Mode = ModeVirtual
			return d
		}()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := Validate(tc.desc)
			assert.True(t, result.Valid, "violations: %v", result.Violations)
			assert.NoError(t, result.Err())
		})
	}
}

func TestValidate_Violations(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Descriptor)
		want   string
	}{
		{
			name:   "bridge before geometry table",
			mutate: func(d *Descriptor) { d.Tables[0], d.Tables[1] = d.Tables[1], d.Tables[0] },
			want:   `geometry table "parcels" must precede bridge "parcel_owner"`,
		},
		{
			name: "duplicate qualified names",
			mutate: func(d *Descriptor) {
				d.Fields = append([]JoinedSubfield{d.Fields[0]}, d.Fields...)
			},
			want: `duplicate qualified field "parcels.label"`,
		},
		{
			name:   "identity not projected",
			mutate: func(d *Descriptor) { d.IdentityField = "owners.objectid" },
			want:   `identity field "owners.objectid" is not projected`,
		},
		{
			name: "geometry not last",
			mutate: func(d *Descriptor) {
				d.Fields[2], d.Fields[3] = d.Fields[3], d.Fields[2]
			},
			want: "must be projected last",
		},
		{
			name:   "missing payload",
			mutate: func(d *Descriptor) { d.Predicate = nil },
			want:   "predicate strategy requires a predicate payload",
		},
		{
			name: "association rows on outer join",
			mutate: func(d *Descriptor) {
				d.RequestedJoinType, d.JoinType = ir.JoinLeft, ir.JoinLeft
			},
			want: "association rows require an inner join",
		},
		{
			name: "push-down without identity",
			mutate: func(d *Descriptor) {
				d.Mode = ModePushDown
				d.IncludeAssociationRows = false
				d.IdentityField, d.IdentityTable = "", ""
			},
			want: "push-down mode requires an identity field",
		},
		{
			name:   "unknown driving table",
			mutate: func(d *Descriptor) { d.DrivingTable = "zones" },
			want:   `driving table "zones" is not a participant`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := bridgeDescriptor()
			tc.mutate(&d)

			result := Validate(d)
			require.False(t, result.Valid)
			assert.Contains(t, result.Err().Error(), tc.want)
		})
	}
}

func TestValidate_OuterMarkers(t *testing.T) {
	d := fkDescriptor()
	d.RequestedJoinType, d.JoinType = ir.JoinLeft, ir.JoinLeft

	result := Validate(d)
	require.False(t, result.Valid)
	assert.Contains(t, result.Err().Error(), "lacks an outer marker")

	d.Predicate = ColumnEquals{Left: ColumnRef{"a", "id"}, Right: ColumnRef{"b", "a_id"}, Outer: OuterLeft}
	assert.True(t, Validate(d).Valid)
}
