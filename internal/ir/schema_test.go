package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parcelsTable() Table {
	return Table{
		Name: "parcels",
		Fields: []Field{
			{Name: "objectid", Type: FieldInteger, IsIdentity: true},
			{Name: "name", Type: FieldText},
			{Name: "shape", Type: FieldGeometry},
			{Name: "shape_area", Type: FieldReal, IsMeasurement: true},
		},
		IdentityField: "objectid",
	}
}

func TestParseFieldType(t *testing.T) {
	ft, err := ParseFieldType(" Geometry ")
	require.NoError(t, err)
	assert.Equal(t, FieldGeometry, ft)

	_, err = ParseFieldType("polygon")
	assert.Error(t, err)
}

func TestTableLookups(t *testing.T) {
	tbl := parcelsTable()

	id, ok := tbl.Identity()
	require.True(t, ok)
	assert.Equal(t, "objectid", id.Name)

	geom, ok := tbl.GeometryField()
	require.True(t, ok)
	assert.Equal(t, "shape", geom.Name)
	assert.True(t, tbl.HasGeometry())

	assert.True(t, tbl.HasField("name"))
	assert.False(t, tbl.HasField("missing"))
	assert.Equal(t, []string{"objectid", "name", "shape", "shape_area"}, tbl.FieldNames())
}

func TestTableIdentityFromFlag(t *testing.T) {
	tbl := Table{Name: "t", Fields: []Field{{Name: "a", Type: FieldText}, {Name: "oid", Type: FieldInteger, IsIdentity: true}}}

	id, ok := tbl.Identity()
	require.True(t, ok)
	assert.Equal(t, "oid", id.Name)
}

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Table)
		wantErr string
	}{
		{"valid", func(*Table) {}, ""},
		{"missing name", func(t *Table) { t.Name = "" }, "table name is required"},
		{"duplicate field", func(t *Table) {
			t.Fields = append(t.Fields, Field{Name: "name", Type: FieldText})
		}, `duplicate field "name"`},
		{"two geometries", func(t *Table) {
			t.Fields = append(t.Fields, Field{Name: "shape2", Type: FieldGeometry})
		}, "at most one geometry field"},
		{"unknown identity", func(t *Table) { t.IdentityField = "nope" }, `identity field "nope" is not declared`},
		{"bad type", func(t *Table) { t.Fields[1].Type = "varchar" }, "unknown field type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := parcelsTable()
			tt.mutate(&tbl)
			err := tbl.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFieldTypeSQLType(t *testing.T) {
	assert.Equal(t, "INTEGER", FieldInteger.SQLType())
	assert.Equal(t, "BLOB", FieldGeometry.SQLType())
	assert.Equal(t, "TEXT", FieldDate.SQLType())
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name  string
		input Value
		typ   FieldType
		want  Value
	}{
		{"integral real to int", Real(3), FieldInteger, Int(3)},
		{"fractional real stays", Real(3.5), FieldInteger, Real(3.5)},
		{"real past int64 stays", Real(1e19), FieldInteger, Real(1e19)},
		{"real at int64 minimum", Real(math.MinInt64), FieldInteger, Int(math.MinInt64)},
		{"infinity stays", Real(math.Inf(1)), FieldInteger, Real(math.Inf(1))},
		{"int to real", Int(2), FieldReal, Real(2)},
		{"int to bool", Int(1), FieldBool, Bool(true)},
		{"zero to bool", Int(0), FieldBool, Bool(false)},
		{"text to bool", Text("true"), FieldBool, Bool(true)},
		{"bytes to text", Blob("abc"), FieldText, Text("abc")},
		{"text to geometry", Text("wkb"), FieldGeometry, Blob("wkb")},
		{"nil to null", nil, FieldText, Null{}},
		{"untouched", Text("x"), FieldText, Text("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.input, tt.typ))
		})
	}
}

func TestCoerceRecord(t *testing.T) {
	tbl := Table{Name: "t", Fields: []Field{{Name: "flag", Type: FieldBool}, {Name: "n", Type: FieldReal}}}
	got := tbl.CoerceRecord(Record{"flag": Int(1), "n": Int(4), "extra": Int(7)})
	assert.Equal(t, Record{"flag": Bool(true), "n": Real(4), "extra": Int(7)}, got)
}
