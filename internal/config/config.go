// Package config loads reljoin settings from reljoin.yaml, RELJOIN_
// environment variables and command-line flags.
//
// Precedence (highest to lowest): flags > env vars > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/roach88/reljoin/internal/querysql"
)

// Defaults.
const (
	DefaultConfigFile = "reljoin.yaml"
	DefaultDriver     = "sqlite3"
	DefaultDSN        = ":memory:"
	DefaultCatalogDir = "catalog"
	DefaultDialect    = "sqlite"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"

	envPrefix = "RELJOIN_"
)

// Config is the resolved configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Catalog  CatalogConfig  `koanf:"catalog"`
	Compile  CompileConfig  `koanf:"compile"`
	Log      LogConfig      `koanf:"log"`

	// File is the config file that was read, or "" when none was found.
	File string `koanf:"-"`
}

// DatabaseConfig selects the database/sql driver and DSN.
type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// CatalogConfig locates the CUE catalog.
type CatalogConfig struct {
	Dir string `koanf:"dir"`
}

// CompileConfig holds compile-time settings.
type CompileConfig struct {
	Dialect string `koanf:"dialect"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// flagKeys maps CLI flag names onto config keys. Other flags are ignored.
var flagKeys = map[string]string{
	"driver":     "database.driver",
	"dsn":        "database.dsn",
	"catalog":    "catalog.dir",
	"dialect":    "compile.dialect",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// Load reads configuration. cfgFile may be empty, in which case
// reljoin.yaml in the working directory is used if present. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"database.driver": DefaultDriver,
		"database.dsn":    DefaultDSN,
		"catalog.dir":     DefaultCatalogDir,
		"compile.dialect": DefaultDialect,
		"log.level":       DefaultLogLevel,
		"log.format":      DefaultLogFormat,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used, err := findConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment: RELJOIN_DATABASE_DSN -> database.dsn
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only when explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile returns the explicit path (which must exist), or the
// default file when present, or "".
func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile, nil
	}
	return "", nil
}

// Validate checks driver, dialect and logging settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Driver == "" {
		errs = append(errs, errors.New("database.driver is required"))
	} else if _, err := querysql.DialectForDriver(c.Database.Driver); err != nil {
		errs = append(errs, fmt.Errorf("database.driver: %w", err))
	}
	if _, err := querysql.ParseDialect(c.Compile.Dialect); err != nil {
		errs = append(errs, fmt.Errorf("compile.dialect: %w", err))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Dialect returns the parsed compile dialect.
func (c *Config) Dialect() querysql.Dialect {
	d, err := querysql.ParseDialect(c.Compile.Dialect)
	if err != nil {
		return querysql.DialectSQLite
	}
	return d
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds a slog logger writing to w. verbose forces Debug.
func (l LogConfig) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
