package harness

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reljoin/internal/queryir"
)

func TestScenarios(t *testing.T) {
	scenarios, err := LoadScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)

			if s.Expect.Error != "" {
				assert.Empty(t, result.Paths)
				return
			}
			assert.Len(t, result.Paths, 4)
		})
	}
}

func TestRun_StrategiesDifferAcrossStores(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "zone_parcels_left.yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, queryir.StrategyStatement, result.Paths[PathSQLiteExecute].Descriptor.Strategy)
	assert.Equal(t, queryir.StrategyPredicate, result.Paths[PathMemoryExecute].Descriptor.Strategy)
	assert.Equal(t, result.Paths[PathSQLiteExecute].Hash, result.Paths[PathMemoryVirtual].Hash)
}

func TestRun_FailedExpectation(t *testing.T) {
	s, err := ParseScenario([]byte(abScenario))
	require.NoError(t, err)
	five := 5
	s.Expect.Count = &five

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expectation count failed")
	assert.Len(t, result.Rows, 3)
}

func TestRun_UnexpectedCompileError(t *testing.T) {
	s, err := ParseScenario([]byte(abScenario))
	require.NoError(t, err)
	s.Join = "right"

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, "INCOMPATIBLE_JOIN_DIRECTION", result.CompileError)
	assert.Empty(t, result.Paths)
}

func TestRun_BuildError(t *testing.T) {
	s, err := ParseScenario([]byte(abScenario))
	require.NoError(t, err)
	s.Tables[1].Name = "c"

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario ab")
}

func TestHarness_Logs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	s, err := ParseScenario([]byte(abScenario))
	require.NoError(t, err)

	result, err := New(logger).Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	out := buf.String()
	assert.Contains(t, out, "scenario path executed")
	assert.Contains(t, out, "store=sqlite")
	assert.Contains(t, out, "store=memory")
}

func TestCheckAgreement(t *testing.T) {
	r := NewResult()
	r.Paths[PathSQLiteExecute] = PathResult{Hash: "h1"}
	r.Paths[PathSQLiteVirtual] = PathResult{Hash: "h1"}
	r.Paths[PathMemoryExecute] = PathResult{Hash: "h2"}

	checkAgreement(r)

	assert.False(t, r.Pass)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], PathMemoryExecute+" disagrees with "+PathSQLiteExecute)
}
