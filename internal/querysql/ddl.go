package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/reljoin/internal/ir"
)

// CompileCreateTable renders CREATE TABLE for a table schema.
// The identity field becomes the primary key.
func (c *SQLCompiler) CompileCreateTable(t ir.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	identity, hasIdentity := t.Identity()
	cols := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		col := c.Dialect.QuoteIdent(f.Name) + " " + c.Dialect.ColumnType(f.Type)
		if hasIdentity && f.Name == identity.Name {
			col += " PRIMARY KEY"
		}
		cols[i] = col
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", c.Dialect.QuoteIdent(t.Name), strings.Join(cols, ", ")), nil
}

// CompileInsert renders a parameterized INSERT for one row.
// Columns follow the table's declaration order; missing fields insert NULL.
func (c *SQLCompiler) CompileInsert(t ir.Table, row ir.Record) (string, []any, error) {
	for k := range row {
		if !t.HasField(k) {
			return "", nil, fmt.Errorf("table %q has no field %q", t.Name, k)
		}
	}

	b := &builder{dialect: c.Dialect}
	cols := make([]string, len(t.Fields))
	placeholders := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		cols[i] = c.Dialect.QuoteIdent(f.Name)
		ph, err := b.bind(ir.Coerce(row.Get(f.Name), f.Type))
		if err != nil {
			return "", nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		placeholders[i] = ph
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.Dialect.QuoteIdent(t.Name),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", ")), b.params, nil
}
