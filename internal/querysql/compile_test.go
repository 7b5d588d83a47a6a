package querysql

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
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

func fkDescriptor() queryir.Descriptor {
	return queryir.Descriptor{
		RequestedJoinType: ir.JoinInner,
		JoinType:          ir.JoinInner,
		Strategy:          queryir.StrategyPredicate,
		Mode:              queryir.ModePushDown,
		Tables:            []ir.Table{tableB(), tableA()},
		Predicate: queryir.ColumnEquals{
			Left:  queryir.ColumnRef{Table: "a", Field: "id"},
			Right: queryir.ColumnRef{Table: "b", Field: "a_id"},
		},
		Fields: []queryir.JoinedSubfield{
			{QualifiedName: "a.name", Table: "a", Field: "name", Type: ir.FieldText},
			{QualifiedName: "b.value", Table: "b", Field: "value", Type: ir.FieldText},
			{QualifiedName: "b.id", Table: "b", Field: "id", Type: ir.FieldInteger, IsIdentityField: true},
		},
		IdentityField: "b.id",
		IdentityTable: "b",
		DrivingTable:  "b",
	}
}

func TestCompile_Scan(t *testing.T) {
	compiler := NewSQLCompiler(DialectSQLite)

	query := queryir.Scan{
		Table:   "inventory",
		Fields:  []string{"id", "name"},
		Filter:  queryir.Equals{Field: "category", Value: ir.Text("widgets")},
		OrderBy: []string{"id"},
	}

	sql, params, err := compiler.Compile(query)
	require.NoError(t, err)

	assert.Equal(t, `SELECT "id", "name" FROM "inventory" WHERE "category" = ? ORDER BY "id" ASC COLLATE BINARY`, sql)
	assert.NotContains(t, sql, "widgets", "values are never interpolated")
	assert.Equal(t, []any{"widgets"}, params)
}

func TestCompile_ScanPointerAndStar(t *testing.T) {
	compiler := NewSQLCompiler(DialectDuckDB)

	sql, params, err := compiler.Compile(&queryir.Scan{Table: "a"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "a"`, sql)
	assert.Empty(t, params)
}

func TestCompile_ScanPaging(t *testing.T) {
	testCases := []struct {
		dialect Dialect
		limit   int
		offset  int
		want    string
	}{
		{DialectSQLite, 256, 0, ` LIMIT 256`},
		{DialectSQLite, 256, 512, ` LIMIT 256 OFFSET 512`},
		{DialectSQLite, 0, 3, ` LIMIT -1 OFFSET 3`},
		{DialectPostgres, 0, 3, ` OFFSET 3`},
		{DialectOracle, 10, 20, ` OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY`},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s/%d/%d", tc.dialect, tc.limit, tc.offset), func(t *testing.T) {
			sql, _, err := NewSQLCompiler(tc.dialect).Compile(queryir.Scan{
				Table: "a", OrderBy: []string{"id"}, Limit: tc.limit, Offset: tc.offset,
			})
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(sql, tc.want), sql)
		})
	}

	_, _, err := NewSQLCompiler(DialectSQLite).Compile(queryir.Scan{Table: "a", Limit: -1})
	assert.Error(t, err)
}

func TestCompile_PostgresPlaceholders(t *testing.T) {
	compiler := NewSQLCompiler(DialectPostgres)

	query := queryir.Scan{
		Table: "b",
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "a_id", Value: ir.Int(1)},
			&queryir.Equals{Field: "value", Value: ir.Text("v1")},
		}},
	}

	sql, params, err := compiler.Compile(query)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "b" WHERE "a_id" = $1 AND "value" = $2`, sql)
	assert.Equal(t, []any{int64(1), "v1"}, params)
}

func TestCompile_Errors(t *testing.T) {
	compiler := NewSQLCompiler(DialectSQLite)

	_, _, err := compiler.Compile(nil)
	assert.Error(t, err)

	_, _, err = compiler.Compile(queryir.Scan{})
	assert.Error(t, err)
}

func TestCompileDescriptor_PredicateInner(t *testing.T) {
	compiler := NewSQLCompiler(DialectSQLite)

	sql, params, err := compiler.CompileDescriptor(fkDescriptor())
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT "a"."name" AS "a.name", "b"."value" AS "b.value", "b"."id" AS "b.id" `+
			`FROM "b", "a" WHERE "a"."id" = "b"."a_id" `+
			`ORDER BY "b"."id" ASC COLLATE BINARY, "a"."id" ASC COLLATE BINARY`,
		sql)
	assert.Empty(t, params)
}

func TestCompileDescriptor_OracleOuterMarker(t *testing.T) {
	d := fkDescriptor()
	d.RequestedJoinType, d.JoinType = ir.JoinLeft, ir.JoinLeft
	d.Predicate = queryir.ColumnEquals{
		Left:  queryir.ColumnRef{Table: "a", Field: "id"},
		Right: queryir.ColumnRef{Table: "b", Field: "a_id"},
		Outer: queryir.OuterLeft,
	}

	sql, _, err := NewSQLCompiler(DialectOracle).CompileDescriptor(d)
	require.NoError(t, err)
	assert.Contains(t, sql, `WHERE "a"."id"(+) = "b"."a_id" ORDER BY "b"."id" ASC, "a"."id" ASC`)

	_, _, err = NewSQLCompiler(DialectSQLite).CompileDescriptor(d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot express outer joins as predicates")
}

func TestCompileDescriptor_Statement(t *testing.T) {
	d := fkDescriptor()
	d.RequestedJoinType, d.JoinType = ir.JoinRight, ir.JoinRight
	d.Strategy = queryir.StrategyStatement
	d.Predicate = nil
	d.Statement = queryir.Join{
		Left:  queryir.Scan{Table: "a"},
		Right: queryir.Scan{Table: "b"},
		Type:  ir.JoinLeft,
		On: queryir.ColumnEquals{
			Left:  queryir.ColumnRef{Table: "a", Field: "id"},
			Right: queryir.ColumnRef{Table: "b", Field: "a_id"},
			Outer: queryir.OuterRight,
		},
	}

	sql, _, err := NewSQLCompiler(DialectSQLite).CompileDescriptor(d)
	require.NoError(t, err)
	assert.Contains(t, sql, `FROM "a" LEFT JOIN "b" ON "a"."id" = "b"."a_id" ORDER BY`)
	assert.NotContains(t, sql, "(+)", "ON clauses never carry markers")
}

func TestCompileDescriptor_NestedStatement(t *testing.T) {
	on := func(l, lf, r, rf string) queryir.Predicate {
		return queryir.ColumnEquals{
			Left:  queryir.ColumnRef{Table: l, Field: lf},
			Right: queryir.ColumnRef{Table: r, Field: rf},
			Outer: queryir.OuterRight,
		}
	}
	stmt := queryir.Join{
		Left: queryir.Join{
			Left:  queryir.Scan{Table: "owners"},
			Right: queryir.Scan{Table: "parcel_owner"},
			Type:  ir.JoinLeft,
			On:    on("owners", "objectid", "parcel_owner", "owner_id"),
		},
		Right: queryir.Scan{Table: "parcels"},
		Type:  ir.JoinLeft,
		On:    on("parcel_owner", "parcel_id", "parcels", "objectid"),
	}

	sql, _, err := NewSQLCompiler(DialectSQLite).Compile(stmt)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT * FROM "owners" LEFT JOIN "parcel_owner" ON "owners"."objectid" = "parcel_owner"."owner_id" `+
			`LEFT JOIN "parcels" ON "parcel_owner"."parcel_id" = "parcels"."objectid"`,
		sql)
}

func TestCompileCreateView(t *testing.T) {
	compiler := NewSQLCompiler(DialectPostgres)

	sql, _, err := compiler.CompileCreateView("reljoin_abc", fkDescriptor())
	require.NoError(t, err)
	assert.Regexp(t, `^CREATE TEMPORARY VIEW "reljoin_abc" AS SELECT `, sql)

	assert.Equal(t, `DROP VIEW IF EXISTS "reljoin_abc"`, compiler.CompileDropView("reljoin_abc"))
}

func TestCompileCreateTable(t *testing.T) {
	testCases := []struct {
		dialect Dialect
		want    string
	}{
		{DialectSQLite, `CREATE TABLE "b" ("id" INTEGER PRIMARY KEY, "a_id" INTEGER, "value" TEXT)`},
		{DialectPostgres, `CREATE TABLE "b" ("id" BIGINT PRIMARY KEY, "a_id" BIGINT, "value" TEXT)`},
		{DialectDuckDB, `CREATE TABLE "b" ("id" BIGINT PRIMARY KEY, "a_id" BIGINT, "value" VARCHAR)`},
	}

	for _, tc := range testCases {
		t.Run(string(tc.dialect), func(t *testing.T) {
			sql, err := NewSQLCompiler(tc.dialect).CompileCreateTable(tableB())
			require.NoError(t, err)
			assert.Equal(t, tc.want, sql)
		})
	}
}

func TestCompileInsert(t *testing.T) {
	compiler := NewSQLCompiler(DialectSQLite)

	sql, params, err := compiler.CompileInsert(tableB(), ir.Record{"id": ir.Int(10), "a_id": ir.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "b" ("id", "a_id", "value") VALUES (?, ?, ?)`, sql)
	assert.Equal(t, []any{int64(10), int64(1), nil}, params)

	_, _, err = compiler.CompileInsert(tableB(), ir.Record{"nope": ir.Int(1)})
	assert.Error(t, err)
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("DuckDB")
	require.NoError(t, err)
	assert.Equal(t, DialectDuckDB, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)

	d, err = DialectForDriver("pgx")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	assert.True(t, DialectOracle.Capability().SupportsPredicateOuterJoin)
	assert.False(t, DialectSQLite.Capability().SupportsPredicateOuterJoin)
	assert.Equal(t, "$3", DialectPostgres.Placeholder(3))
	assert.Equal(t, `"a""b"`, DialectSQLite.QuoteIdent(`a"b`))
}
