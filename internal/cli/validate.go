package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/reljoin/internal/catalog"
	"github.com/roach88/reljoin/internal/compiler"
	"github.com/roach88/reljoin/internal/ir"
)

// ValidationIssue is one catalog or compile problem.
type ValidationIssue struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Association string `json:"association,omitempty"`
	Join        string `json:"join,omitempty"`
	Driving     string `json:"driving,omitempty"`
	File        string `json:"file,omitempty"`
	Line        int    `json:"line,omitempty"`
}

// JoinCheck is the outcome of compiling one association for one join type
// and driving table.
type JoinCheck struct {
	Association string `json:"association"`
	Join        string `json:"join"`
	Driving     string `json:"driving,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Identity    string `json:"identity,omitempty"`
	Code        string `json:"code,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Tables int               `json:"tables"`
	Checks []JoinCheck       `json:"checks,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [catalog-dir]",
		Short: "Validate a catalog and every association in it",
		Long: `Load a CUE catalog, collecting every declaration error, then compile
each association for inner, left and right joins.

Associations between two geometry tables need a designated driving table;
they are compiled once per endpoint for inner and left joins, and right
joins are skipped since a designated driving table cannot be nullable.

The catalog directory defaults to catalog.dir from the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(rootOpts, rootOpts.catalogDir(dir), cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, catalogDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cat, loadErrors := catalog.Load(catalogDir, catalog.LoadModeCollectAll)
	if cat == nil && len(loadErrors) > 0 {
		return outputCatalogError(formatter, loadErrors[0])
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", cat.FileCount, catalogDir)

	result := ValidationResult{Tables: len(cat.Tables)}
	for _, err := range loadErrors {
		result.Errors = append(result.Errors, loadIssue(err))
	}

	target := dialectTarget{dialect: opts.Config.Dialect()}
	qc := compiler.New(target).WithLogger(opts.Logger)
	for _, assoc := range cat.Associations {
		formatter.VerboseLog("Validating association: %s", ir.AssociationName(assoc))
		checks, issues := checkAssociation(qc, assoc)
		result.Checks = append(result.Checks, checks...)
		result.Errors = append(result.Errors, issues...)
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func loadIssue(err error) ValidationIssue {
	issue := ValidationIssue{Code: catalog.CodeOf(err), Message: err.Error()}
	var le *catalog.LoadError
	if errors.As(err, &le) {
		issue.Message = le.Message
		if le.Pos.IsValid() {
			issue.File = le.Pos.Filename()
			issue.Line = le.Pos.Line()
		}
	}
	return issue
}

// checkAssociation compiles assoc for every join type. When both endpoints
// carry geometry, each endpoint is tried as the driving table.
func checkAssociation(qc *compiler.QueryCompiler, assoc ir.Association) ([]JoinCheck, []ValidationIssue) {
	name := ir.AssociationName(assoc)
	drivers := []string{""}
	if first, second, err := ir.Endpoints(assoc); err == nil && first.HasGeometry() && second.HasGeometry() {
		drivers = []string{first.Name, second.Name}
	}

	var checks []JoinCheck
	var issues []ValidationIssue
	for _, jt := range []ir.JoinType{ir.JoinInner, ir.JoinLeft, ir.JoinRight} {
		for _, driving := range drivers {
			if driving != "" && jt == ir.JoinRight {
				continue
			}
			check := JoinCheck{Association: name, Join: string(jt), Driving: driving}
			desc, err := qc.Compile(assoc, jt, compiler.Options{DrivingTable: driving})
			if err != nil {
				var ce *compiler.CompileError
				code := string(compiler.ErrCodeInternal)
				msg := err.Error()
				if errors.As(err, &ce) {
					code, msg = string(ce.Code), ce.Message
				}
				check.Code = code
				issues = append(issues, ValidationIssue{
					Code:        code,
					Message:     msg,
					Association: name,
					Join:        string(jt),
					Driving:     driving,
				})
			} else {
				check.Mode = string(desc.Mode)
				check.Identity = desc.IdentityField
			}
			checks = append(checks, check)
		}
	}
	return checks, issues
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	rows := make([][]string, len(result.Checks))
	for i, c := range result.Checks {
		identity := c.Identity
		if identity == "" {
			identity = "(none)"
		}
		rows[i] = []string{c.Association, c.Join, c.Driving, c.Mode, identity}
	}
	formatter.Table([]string{"Association", "Join", "Driving", "Mode", "Identity"}, rows)

	associations := make([]string, 0, len(result.Checks))
	for _, c := range result.Checks {
		if !slices.Contains(associations, c.Association) {
			associations = append(associations, c.Association)
		}
	}
	fmt.Fprintf(formatter.Writer, "✓ Catalog valid: %d table(s), %d association(s)\n", result.Tables, len(associations))
	return nil
}

// outputValidationErrors outputs every issue. Validation failures exit 1.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	first := result.Errors[0]
	if formatter.JSON() {
		_ = formatter.Failure(first.Code, first.Message, nil, result)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, issue := range result.Errors {
		switch {
		case issue.Line > 0:
			fmt.Fprintf(w, "%s:%d\n", issue.File, issue.Line)
		case issue.Association != "":
			where := issue.Association + " " + issue.Join
			if issue.Driving != "" {
				where += " driving " + issue.Driving
			}
			fmt.Fprintln(w, where)
		}
		fmt.Fprintf(w, "  %s: %s\n\n", issue.Code, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}
