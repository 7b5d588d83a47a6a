package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
)

// Dialect selects SQL syntax details: placeholders, column types and
// whether predicate outer joins can be expressed.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"

	// DialectOracle renders (+) outer-join markers. There is no bundled
	// driver; it is used for compile output only.
	DialectOracle Dialect = "oracle"
)

// ValidDialects lists the supported dialects.
var ValidDialects = []Dialect{DialectSQLite, DialectDuckDB, DialectPostgres, DialectOracle}

// ParseDialect parses a dialect name (case-insensitive).
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range ValidDialects {
		if d == valid {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dialect %q (valid: sqlite, duckdb, postgres, oracle)", s)
}

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	case "duckdb":
		return DialectDuckDB, nil
	case "pgx", "postgres":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("no dialect for driver %q", driver)
	}
}

// Placeholder returns the n-th (1-based) parameter placeholder.
func (d Dialect) Placeholder(n int) string {
	switch d {
	case DialectPostgres:
		return "$" + strconv.Itoa(n)
	case DialectOracle:
		return ":" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// QuoteIdent quotes an identifier with double quotes.
// Qualified output names such as "parcels.name" are a single identifier.
func (d Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Capability reports what the dialect can push down.
func (d Dialect) Capability() queryir.JoinCapability {
	return queryir.JoinCapability{SupportsPredicateOuterJoin: d == DialectOracle}
}

// ColumnType maps a field type to a column type.
func (d Dialect) ColumnType(t ir.FieldType) string {
	switch d {
	case DialectPostgres:
		switch t {
		case ir.FieldInteger:
			return "BIGINT"
		case ir.FieldReal:
			return "DOUBLE PRECISION"
		case ir.FieldBool:
			return "BOOLEAN"
		case ir.FieldBlob, ir.FieldGeometry:
			return "BYTEA"
		default:
			return "TEXT"
		}
	case DialectDuckDB:
		switch t {
		case ir.FieldInteger:
			return "BIGINT"
		case ir.FieldReal:
			return "DOUBLE"
		case ir.FieldBool:
			return "BOOLEAN"
		case ir.FieldBlob, ir.FieldGeometry:
			return "BLOB"
		default:
			return "VARCHAR"
		}
	default:
		return t.SQLType()
	}
}

// orderSuffix is appended to every ORDER BY term.
// COLLATE BINARY keeps SQLite text ordering stable across versions.
func (d Dialect) orderSuffix() string {
	if d == DialectSQLite {
		return " ASC COLLATE BINARY"
	}
	return " ASC"
}

// tempViewKeyword is the CREATE ... VIEW modifier for session-scoped views.
func (d Dialect) tempViewKeyword() string {
	switch d {
	case DialectPostgres:
		return "TEMPORARY "
	case DialectOracle:
		return ""
	default:
		return "TEMP "
	}
}

// limitClause renders row limiting. Oracle uses the SQL:2008 form.
func (d Dialect) limitClause(limit, offset int) string {
	if limit == 0 && offset == 0 {
		return ""
	}
	if d == DialectOracle {
		s := fmt.Sprintf(" OFFSET %d ROWS", offset)
		if limit > 0 {
			s += fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", limit)
		}
		return s
	}
	if limit == 0 {
		// SQLite requires a LIMIT before OFFSET; -1 means unbounded there.
		if d == DialectSQLite {
			return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
		}
		return fmt.Sprintf(" OFFSET %d", offset)
	}
	if offset == 0 {
		return fmt.Sprintf(" LIMIT %d", limit)
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}
