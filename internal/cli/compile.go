package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reljoin/internal/catalog"
	"github.com/roach88/reljoin/internal/compiler"
	"github.com/roach88/reljoin/internal/config"
	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
	"github.com/roach88/reljoin/internal/querysql"
)

// JoinFlags are the join request flags shared by compile and query.
type JoinFlags struct {
	Join              string
	Driving           string
	Fields            []string
	IdentityOnly      bool
	NoGeometry        bool
	UniqueIdentity    bool
	ExclusiveIdentity bool
}

func (j *JoinFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&j.Join, "join", "j", "inner", "join type (inner|left|right)")
	cmd.Flags().StringVar(&j.Driving, "driving", "", "designate the driving table")
	cmd.Flags().StringArrayVarP(&j.Fields, "field", "f", nil, "project only this table.field (repeatable)")
	cmd.Flags().BoolVar(&j.IdentityOnly, "identity-only", false, "project identity fields only")
	cmd.Flags().BoolVar(&j.NoGeometry, "no-geometry", false, "omit the geometry field")
	cmd.Flags().BoolVar(&j.UniqueIdentity, "unique-identity", false, "guarantee a unique identity (many-to-many)")
	cmd.Flags().BoolVar(&j.ExclusiveIdentity, "exclusive-identity", false, "drop identity fields other than the relation's")
}

// request parses the join type and builds compiler options.
func (j *JoinFlags) request() (ir.JoinType, compiler.Options, error) {
	jt, err := ir.ParseJoinType(j.Join)
	if err != nil {
		return "", compiler.Options{}, err
	}
	return jt, compiler.Options{
		DrivingTable:              j.Driving,
		Fields:                    j.Fields,
		IncludeOnlyIdentityFields: j.IdentityOnly,
		ExcludeGeometryField:      j.NoGeometry,
		GuaranteeUniqueIdentity:   j.UniqueIdentity,
		ExclusiveIdentity:         j.ExclusiveIdentity,
	}, nil
}

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	JoinFlags
	OuterPredicate bool
}

// CompileResult is the compile command's payload.
type CompileResult struct {
	Association string             `json:"association"`
	Dialect     string             `json:"dialect"`
	Descriptor  queryir.Descriptor `json:"descriptor"`
	Tables      []string           `json:"tables"`
	SQL         string             `json:"sql,omitempty"`
	Params      []any              `json:"params,omitempty"`

	// SQLError is set when the descriptor cannot be rendered in the dialect,
	// e.g. a predicate outer join forced with --outer-predicate.
	SQLError string `json:"sql_error,omitempty"`
}

// dialectTarget is a compile-only target: qualified names plus the join
// capability of a dialect.
type dialectTarget struct {
	dialect        querysql.Dialect
	outerPredicate bool
}

func (t dialectTarget) QualifyFieldName(table, field string) string {
	return table + "." + field
}

func (t dialectTarget) GetJoinCapability() queryir.JoinCapability {
	c := t.dialect.Capability()
	if t.outerPredicate {
		c.SupportsPredicateOuterJoin = true
	}
	return c
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [catalog-dir] <association>",
		Short: "Compile an association into a joined relation",
		Long: `Compile one association from a CUE catalog and print the joined
relation descriptor: participant order, strategy, mode, identity field,
projected fields and the SQL the target dialect would run.

The catalog directory defaults to catalog.dir from the configuration.
No database is contacted.`,
		Example: `  reljoin compile ./catalog parcel_owners
  reljoin compile ./catalog zone_parcels --join left --driving parcels
  reljoin compile parcel_owners -f parcels.name --dialect oracle --format json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, assoc := splitCatalogArgs(args)
			return runCompile(opts, opts.catalogDir(dir), assoc, cmd)
		},
	}

	opts.JoinFlags.register(cmd)
	cmd.Flags().String("dialect", config.DefaultDialect, "SQL dialect (sqlite|duckdb|postgres|oracle)")
	cmd.Flags().BoolVar(&opts.OuterPredicate, "outer-predicate", false, "treat the target as supporting predicate outer joins")

	return cmd
}

// splitCatalogArgs separates an optional leading catalog directory from the
// association name.
func splitCatalogArgs(args []string) (dir, association string) {
	if len(args) == 2 {
		return args[0], args[1]
	}
	return "", args[0]
}

func runCompile(opts *CompileOptions, catalogDir, name string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	assoc, err := loadAssociation(formatter, catalogDir, name)
	if err != nil {
		return err
	}
	joinType, compileOpts, err := opts.request()
	if err != nil {
		_ = formatter.Error(string(compiler.ErrCodeInvalidAssociation), err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid join", err)
	}

	dialect := opts.Config.Dialect()
	target := dialectTarget{dialect: dialect, outerPredicate: opts.OuterPredicate}
	desc, err := compiler.New(target).WithLogger(opts.Logger).Compile(assoc, joinType, compileOpts)
	if err != nil {
		return outputCompileError(formatter, err)
	}

	result := CompileResult{
		Association: name,
		Dialect:     string(dialect),
		Descriptor:  desc,
		Tables:      desc.TableNames(),
	}
	sql, params, err := querysql.NewSQLCompiler(dialect).CompileDescriptor(desc)
	if err != nil {
		result.SQLError = err.Error()
	} else {
		result.SQL, result.Params = sql, params
	}

	opts.Logger.Debug("association compiled",
		slog.String("association", name),
		slog.String("mode", string(desc.Mode)),
		slog.String("strategy", string(desc.Strategy)),
	)

	if formatter.JSON() {
		return formatter.Success(result)
	}
	printCompileText(formatter, result)
	return nil
}

// loadAssociation loads the catalog fail-fast and looks up one association.
// Failures are reported through formatter.
func loadAssociation(formatter *OutputFormatter, dir, name string) (ir.Association, error) {
	cat, errs := catalog.Load(dir, catalog.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, outputCatalogError(formatter, errs[0])
	}
	formatter.VerboseLog("Loaded %d table(s) from %d CUE file(s) in %s", len(cat.Tables), cat.FileCount, dir)

	assoc, err := cat.Association(name)
	if err != nil {
		return nil, outputCatalogError(formatter, err)
	}
	return assoc, nil
}

func outputCatalogError(formatter *OutputFormatter, err error) error {
	var details any
	var le *catalog.LoadError
	if errors.As(err, &le) && le.Pos.IsValid() {
		details = map[string]any{
			"file":   le.Pos.Filename(),
			"line":   le.Pos.Line(),
			"column": le.Pos.Column(),
		}
	}
	_ = formatter.Error(catalog.CodeOf(err), err.Error(), details)
	return WrapExitError(ExitCommandError, "catalog error", err)
}

// outputCompileError reports a compile error. Configuration errors exit 1.
func outputCompileError(formatter *OutputFormatter, err error) error {
	var ce *compiler.CompileError
	if !errors.As(err, &ce) {
		_ = formatter.Error(string(compiler.ErrCodeInternal), err.Error(), nil)
		return WrapExitError(ExitFailure, "compile failed", err)
	}

	details := map[string]string{}
	if ce.Table != "" {
		details["table"] = ce.Table
	}
	if ce.Field != "" {
		details["field"] = ce.Field
	}
	var d any
	if len(details) > 0 {
		d = details
	}
	_ = formatter.Error(string(ce.Code), ce.Message, d)
	return WrapExitError(ExitFailure, "compile failed", err)
}

func printCompileText(formatter *OutputFormatter, r CompileResult) {
	w := formatter.Writer
	d := r.Descriptor

	identity := d.IdentityField
	if identity == "" {
		identity = "(none)"
	}
	joinType := string(d.JoinType)
	if d.RequestedJoinType != d.JoinType {
		joinType = fmt.Sprintf("%s (requested %s from %s)", d.JoinType, d.RequestedJoinType, d.DrivingTable)
	}

	fmt.Fprintf(w, "association: %s (%s)\n", r.Association, d.Cardinality)
	fmt.Fprintf(w, "tables:      %s\n", strings.Join(r.Tables, ", "))
	fmt.Fprintf(w, "join:        %s\n", joinType)
	fmt.Fprintf(w, "driving:     %s\n", d.DrivingTable)
	fmt.Fprintf(w, "strategy:    %s\n", d.Strategy)
	fmt.Fprintf(w, "mode:        %s\n", d.Mode)
	fmt.Fprintf(w, "identity:    %s\n", identity)
	if d.GeometryTable != "" {
		fmt.Fprintf(w, "geometry:    %s\n", d.GeometryTable)
	}
	fmt.Fprintln(w)

	rows := make([][]string, len(d.Fields))
	for i, f := range d.Fields {
		mark := ""
		if f.IsIdentityField {
			mark = "*"
		}
		rows[i] = []string{f.QualifiedName, string(f.Type), mark}
	}
	formatter.Table([]string{"Field", "Type", "Identity"}, rows)

	fmt.Fprintln(w)
	if r.SQLError != "" {
		fmt.Fprintf(w, "sql (%s): not expressible: %s\n", r.Dialect, r.SQLError)
		return
	}
	fmt.Fprintf(w, "sql (%s):\n  %s\n", r.Dialect, r.SQL)
}
