package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/querysql"
)

func TestCompile_Text(t *testing.T) {
	out, err := execute(t, "compile", testCatalog, "a_b")
	require.NoError(t, err)

	assert.Contains(t, out, "association: a_b (one_to_many)")
	assert.Contains(t, out, "tables:      b, a")
	assert.Contains(t, out, "strategy:    predicate")
	assert.Contains(t, out, "mode:        push_down")
	assert.Contains(t, out, "identity:    b.id")
	assert.Contains(t, out, "sql (sqlite):")
	assert.Contains(t, out, `"b"."id" AS "b.id"`)
}

func TestCompile_JSON(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		wantTables   []any
		wantIdentity any
		wantMode     string
		wantStrategy string
		wantFields   []string
	}{
		{
			name:         "inner from referencing side",
			args:         []string{"a_b"},
			wantTables:   []any{"b", "a"},
			wantIdentity: "b.id",
			wantMode:     "push_down",
			wantStrategy: "predicate",
		},
		{
			name:         "left keeping referenced side",
			args:         []string{"a_b", "--join", "left", "--driving", "a"},
			wantTables:   []any{"a", "b"},
			wantIdentity: nil,
			wantMode:     "virtual",
			wantStrategy: "statement",
		},
		{
			name:         "restricted fields",
			args:         []string{"a_b", "--driving", "a", "-f", "a.name", "-f", "b.value"},
			wantTables:   []any{"a", "b"},
			wantIdentity: "b.id",
			wantMode:     "push_down",
			wantStrategy: "predicate",
			wantFields:   []string{"a.name", "b.value", "b.id"},
		},
		{
			name:         "geometry table first",
			args:         []string{"parcel_owners", "--join", "left"},
			wantTables:   []any{"parcels", "parcel_owner", "owners"},
			wantIdentity: nil,
			wantMode:     "virtual",
			wantStrategy: "statement",
		},
		{
			name:         "designated driving between geometry tables",
			args:         []string{"zone_parcels", "--join", "left", "--driving", "parcels"},
			wantTables:   []any{"parcels", "zones"},
			wantIdentity: "parcels.objectid",
			wantMode:     "push_down",
			wantStrategy: "statement",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"compile", testCatalog}, tt.args...)
			out, err := execute(t, append(args, "--format", "json")...)
			require.NoError(t, err)

			resp := decode(t, out)
			require.Equal(t, "ok", resp.Status)
			data := resp.Data.(map[string]any)
			desc := data["descriptor"].(map[string]any)

			assert.Equal(t, tt.wantTables, data["tables"])
			assert.Equal(t, tt.wantIdentity, desc["identity_field"])
			assert.Equal(t, tt.wantMode, desc["mode"])
			assert.Equal(t, tt.wantStrategy, desc["strategy"])
			assert.NotEmpty(t, data["sql"])

			if tt.wantFields != nil {
				var names []string
				for _, f := range desc["fields"].([]any) {
					names = append(names, f.(map[string]any)["qualified_name"].(string))
				}
				assert.Equal(t, tt.wantFields, names)
			}
		})
	}
}

func TestCompile_OuterPredicate(t *testing.T) {
	t.Run("oracle renders markers", func(t *testing.T) {
		out, err := execute(t, "compile", testCatalog, "a_b", "--join", "left", "--driving", "b", "--dialect", "oracle", "--format", "json")
		require.NoError(t, err)

		data := decode(t, out).Data.(map[string]any)
		assert.Equal(t, "predicate", data["descriptor"].(map[string]any)["strategy"])
		assert.Contains(t, data["sql"], "(+)")
	})

	t.Run("forced on sqlite is not expressible", func(t *testing.T) {
		out, err := execute(t, "compile", testCatalog, "a_b", "--join", "left", "--driving", "b", "--outer-predicate", "--format", "json")
		require.NoError(t, err)

		data := decode(t, out).Data.(map[string]any)
		assert.Equal(t, "predicate", data["descriptor"].(map[string]any)["strategy"])
		assert.Nil(t, data["sql"])
		assert.Contains(t, data["sql_error"], "cannot express outer joins as predicates")
	})
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
		wantExit int
	}{
		{
			name:     "two geometry tables without driving",
			args:     []string{testCatalog, "zone_parcels"},
			wantCode: "INVALID_DRIVING_TABLE",
			wantExit: ExitFailure,
		},
		{
			name:     "designated driving on right join",
			args:     []string{testCatalog, "a_b", "--join", "right", "--driving", "a"},
			wantCode: "INCOMPATIBLE_JOIN_DIRECTION",
			wantExit: ExitFailure,
		},
		{
			name:     "unrelated field",
			args:     []string{testCatalog, "a_b", "-f", "zones.code"},
			wantCode: "UNRELATED_FIELD",
			wantExit: ExitFailure,
		},
		{
			name:     "unknown association",
			args:     []string{testCatalog, "nope"},
			wantCode: "E005",
			wantExit: ExitCommandError,
		},
		{
			name:     "missing catalog",
			args:     []string{"does-not-exist", "a_b"},
			wantCode: "E005",
			wantExit: ExitCommandError,
		},
		{
			name:     "bad join type",
			args:     []string{testCatalog, "a_b", "--join", "outer"},
			wantCode: "INVALID_ASSOCIATION",
			wantExit: ExitCommandError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"compile"}, tt.args...)
			out, err := execute(t, append(args, "--format", "json")...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))

			resp := decode(t, out)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestDialectTarget(t *testing.T) {
	target := dialectTarget{dialect: querysql.DialectSQLite}
	assert.Equal(t, "parcels.shape", target.QualifyFieldName("parcels", "shape"))
	assert.False(t, target.GetJoinCapability().SupportsPredicateOuterJoin)

	target.outerPredicate = true
	assert.True(t, target.GetJoinCapability().SupportsPredicateOuterJoin)

	assert.True(t, dialectTarget{dialect: querysql.DialectOracle}.GetJoinCapability().SupportsPredicateOuterJoin)
}

func TestJoinFlagsRequest(t *testing.T) {
	j := JoinFlags{Join: "LEFT", Driving: "a", Fields: []string{"a.name"}, NoGeometry: true}
	jt, opts, err := j.request()
	require.NoError(t, err)

	assert.Equal(t, ir.JoinLeft, jt)
	assert.Equal(t, "a", opts.DrivingTable)
	assert.Equal(t, []string{"a.name"}, opts.Fields)
	assert.True(t, opts.ExcludeGeometryField)

	_, _, err = (&JoinFlags{Join: "cross"}).request()
	assert.Error(t, err)
}

func TestSplitCatalogArgs(t *testing.T) {
	dir, assoc := splitCatalogArgs([]string{"cat", "a_b"})
	assert.Equal(t, "cat", dir)
	assert.Equal(t, "a_b", assoc)

	dir, assoc = splitCatalogArgs([]string{"a_b"})
	assert.Empty(t, dir)
	assert.Equal(t, "a_b", assoc)
}
