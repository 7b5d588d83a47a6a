package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reljoin/internal/querysql"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("driver", "", "")
	fs.String("dsn", "", "")
	fs.String("catalog", "", "")
	fs.String("dialect", "", "")
	fs.String("log-level", "", "")
	fs.String("log-format", "", "")
	fs.Bool("verbose", false, "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultDriver, cfg.Database.Driver)
	assert.Equal(t, DefaultDSN, cfg.Database.DSN)
	assert.Equal(t, DefaultCatalogDir, cfg.Catalog.Dir)
	assert.Equal(t, DefaultDialect, cfg.Compile.Dialect)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	assert.Empty(t, cfg.File)
	assert.Equal(t, querysql.DialectSQLite, cfg.Dialect())
}

func TestLoad_DefaultFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "database:\n  driver: duckdb\n  dsn: data.duckdb\ncompile:\n  dialect: duckdb\n")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigFile, cfg.File)
	assert.Equal(t, "duckdb", cfg.Database.Driver)
	assert.Equal(t, "data.duckdb", cfg.Database.DSN)
	assert.Equal(t, querysql.DialectDuckDB, cfg.Dialect())
	// Unset keys keep defaults
	assert.Equal(t, DefaultCatalogDir, cfg.Catalog.Dir)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(t.TempDir())
	path := writeConfig(t, dir, "database:\n  dsn: from-file.db\ncatalog:\n  dir: file-catalog\nlog:\n  level: warn\n")

	t.Setenv("RELJOIN_DATABASE_DSN", "from-env.db")
	t.Setenv("RELJOIN_LOG_LEVEL", "error")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--log-level", "debug", "--verbose"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "from-env.db", cfg.Database.DSN, "env beats file")
	assert.Equal(t, "file-catalog", cfg.Catalog.Dir, "file beats default")
	assert.Equal(t, "debug", cfg.Log.Level, "flag beats env")
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(t.TempDir())
	path := writeConfig(t, dir, "compile:\n  dialect: postgres\n")

	flags := testFlags()
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Compile.Dialect)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		errSubstr string
	}{
		{"unknown driver", "database:\n  driver: mysql\n", "database.driver"},
		{"unknown dialect", "compile:\n  dialect: mssql\n", "compile.dialect"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
		{"invalid yaml", "database: [\n", "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			path := writeConfig(t, t.TempDir(), tt.body)

			_, err := Load(path, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}

	t.Run("explicit file missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestLogConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := LogConfig{Level: tt.level}.SlogLevel()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogConfig_NewLogger(t *testing.T) {
	t.Run("text respects level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := LogConfig{Level: "info", Format: "text"}.NewLogger(&buf, false)
		logger.Debug("hidden")
		logger.Info("shown", "k", "v")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "msg=shown")
		assert.Contains(t, buf.String(), "k=v")
	})

	t.Run("verbose forces debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := LogConfig{Level: "error", Format: "text"}.NewLogger(&buf, true)
		logger.Debug("visible")
		assert.Contains(t, buf.String(), "visible")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := LogConfig{Level: "info", Format: "json"}.NewLogger(&buf, false)
		logger.Info("hello")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
	})
}
