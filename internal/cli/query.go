package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reljoin/internal/catalog"
	"github.com/roach88/reljoin/internal/compiler"
	"github.com/roach88/reljoin/internal/config"
	"github.com/roach88/reljoin/internal/engine"
	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
	"github.com/roach88/reljoin/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	JoinFlags
	Where []string // field=value on the iteration table
	Limit int
}

// QueryResult is the query command's payload.
type QueryResult struct {
	Association string      `json:"association"`
	Mode        string      `json:"mode"`
	Strategy    string      `json:"strategy"`
	Identity    string      `json:"identity,omitempty"`
	Fields      []string    `json:"fields"`
	Rows        []ir.Record `json:"rows"`
	Count       int         `json:"count"`
	Truncated   bool        `json:"truncated,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query [catalog-dir] <association>",
		Short: "Compile an association and read the joined rows",
		Long: `Compile one association and execute it against the configured
database (database.driver, database.dsn). Push-down relations are created
as a temporary view and scanned; virtual relations are evaluated by
nested lookups from the driving table.

--where filters the iteration table: the driving table, or the preserved
table of an outer join.`,
		Example: `  reljoin query ./catalog parcel_owners --dsn parcels.db
  reljoin query zone_parcels --driving parcels --where objectid=3
  reljoin query ./catalog a_b --driver duckdb --dsn data.duckdb --format json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, assoc := splitCatalogArgs(args)
			return runQuery(cmd.Context(), opts, opts.catalogDir(dir), assoc, cmd)
		},
	}

	opts.JoinFlags.register(cmd)
	cmd.Flags().String("driver", config.DefaultDriver, "database/sql driver (sqlite3|duckdb|pgx)")
	cmd.Flags().String("dsn", config.DefaultDSN, "data source name")
	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "filter the iteration table by field=value (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "stop after this many rows (0 = no limit)")

	return cmd
}

func runQuery(ctx context.Context, opts *QueryOptions, catalogDir, name string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	cat, errs := catalog.Load(catalogDir, catalog.LoadModeFailFast)
	if len(errs) > 0 {
		return outputCatalogError(formatter, errs[0])
	}
	assoc, err := cat.Association(name)
	if err != nil {
		return outputCatalogError(formatter, err)
	}
	joinType, compileOpts, err := opts.request()
	if err != nil {
		_ = formatter.Error(string(compiler.ErrCodeInvalidAssociation), err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid join", err)
	}

	db := opts.Config.Database
	st, err := store.Open(ctx, db.Driver, db.DSN, store.WithLogger(opts.Logger))
	if err != nil {
		_ = formatter.Error(ErrCodeQuery, err.Error(), map[string]string{"driver": db.Driver})
		return WrapExitError(ExitCommandError, "database unavailable", err)
	}
	defer st.Close()

	if err := st.Register(cat.Tables...); err != nil {
		_ = formatter.Error(ErrCodeQuery, err.Error(), nil)
		return WrapExitError(ExitCommandError, "register tables", err)
	}

	desc, err := compiler.New(st).WithLogger(opts.Logger).Compile(assoc, joinType, compileOpts)
	if err != nil {
		return outputCompileError(formatter, err)
	}

	filter, err := parseWhere(desc, opts.Where)
	if err != nil {
		_ = formatter.Error(ErrCodeQuery, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --where", err)
	}

	result := QueryResult{
		Association: name,
		Mode:        string(desc.Mode),
		Strategy:    string(desc.Strategy),
		Identity:    desc.IdentityField,
		Fields:      desc.FieldNames(),
		Rows:        []ir.Record{},
	}
	for rec, err := range engine.Execute(ctx, st, desc, filter) {
		if err != nil {
			_ = formatter.Error(ErrCodeQuery, err.Error(), nil)
			return WrapExitError(ExitFailure, "query failed", err)
		}
		if opts.Limit > 0 && len(result.Rows) == opts.Limit {
			result.Truncated = true
			break
		}
		result.Rows = append(result.Rows, rec)
	}
	result.Count = len(result.Rows)

	opts.Logger.Debug("query finished", "association", name, "rows", result.Count, "mode", result.Mode)

	if formatter.JSON() {
		return formatter.Success(result)
	}
	printQueryText(formatter, result)
	return nil
}

// parseWhere turns field=value pairs into a filter on the iteration table,
// typed by the table's declared fields.
func parseWhere(d queryir.Descriptor, pairs []string) (ir.Record, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	tableName := d.IterationTable()
	var table ir.Table
	for _, t := range d.Tables {
		if t.Name == tableName {
			table = t
		}
	}

	filter := make(ir.Record, len(pairs))
	for _, pair := range pairs {
		field, raw, ok := strings.Cut(pair, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("expected field=value, got %q", pair)
		}
		f, ok := table.Field(field)
		if !ok {
			return nil, fmt.Errorf("field %q is not in iteration table %q", field, tableName)
		}
		v, err := parseValue(raw, f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		filter[field] = v
	}
	return filter, nil
}

func parseValue(raw string, t ir.FieldType) (ir.Value, error) {
	switch t {
	case ir.FieldInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		return ir.Int(n), nil
	case ir.FieldReal:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		return ir.Real(f), nil
	case ir.FieldBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, err
		}
		return ir.Bool(b), nil
	default:
		return ir.Coerce(ir.Text(raw), t), nil
	}
}

func printQueryText(formatter *OutputFormatter, r QueryResult) {
	w := formatter.Writer
	if r.Count == 0 {
		fmt.Fprintln(w, "(0 rows)")
		return
	}

	rows := make([][]string, len(r.Rows))
	for i, rec := range r.Rows {
		row := make([]string, len(r.Fields))
		for j, f := range r.Fields {
			row[j] = ir.String(rec.Get(f))
		}
		rows[i] = row
	}
	formatter.Table(r.Fields, rows)

	suffix := ""
	if r.Truncated {
		suffix = ", truncated"
	}
	fmt.Fprintf(w, "(%d rows, %s%s)\n", r.Count, r.Mode, suffix)
}
