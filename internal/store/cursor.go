package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
)

// pagedCursor reads a scan one page at a time. Each page is a complete
// query whose rows are closed before Next returns, so the connection is
// free between calls.
type pagedCursor struct {
	ctx   context.Context
	store *SQLStore
	table ir.Table
	scan  queryir.Scan

	page   []ir.Record
	pos    int
	offset int
	done   bool
	closed bool
	err    error
	cur    ir.Record
}

func (c *pagedCursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if c.pos >= len(c.page) {
		if c.done {
			c.cur = nil
			return false
		}
		if err := c.fetch(); err != nil {
			c.err = fetchError("scan", c.table.Name, err)
			return false
		}
		if len(c.page) == 0 {
			c.cur = nil
			return false
		}
	}
	c.cur = c.page[c.pos]
	c.pos++
	return true
}

func (c *pagedCursor) fetch() error {
	if err := c.ctx.Err(); err != nil {
		return err
	}

	q := c.scan
	q.Limit = c.store.pageSize
	q.Offset = c.offset
	stmt, params, err := c.store.compiler.Compile(q)
	if err != nil {
		return err
	}

	c.store.logger.Debug("query", "sql", stmt, "params", len(params))
	rows, err := c.store.db.QueryContext(c.ctx, stmt, params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	page, err := scanRecords(rows, c.table)
	if err != nil {
		return err
	}

	c.page, c.pos = page, 0
	c.offset += len(page)
	if len(page) < c.store.pageSize {
		c.done = true
	}
	return nil
}

func (c *pagedCursor) Record() ir.Record {
	return c.cur
}

func (c *pagedCursor) Err() error {
	return c.err
}

func (c *pagedCursor) Close() error {
	c.closed = true
	c.page = nil
	c.cur = nil
	return nil
}

// scanRecords reads every row into records keyed by column name. Values
// are coerced to the declared field types, since drivers report booleans
// and dates in their own representations.
func scanRecords(rows *sql.Rows, t ir.Table) ([]ir.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var records []ir.Record
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rec := make(ir.Record, len(cols))
		for i, col := range cols {
			v, err := ir.FromSQL(raw[i])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			if f, ok := t.Field(col); ok {
				v = ir.Coerce(v, f.Type)
			}
			rec[col] = v
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}
