package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
)

// AssertionError is a failed expectation with enough context to debug it.
type AssertionError struct {
	Type     string // Expectation name, e.g. "rows" or "null_padded"
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("expectation %s failed: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// EvaluateExpectations checks a result against the scenario expectations
// and returns one message per failure.
func EvaluateExpectations(result *Result, expect Expectations) []string {
	var msgs []string
	add := func(err error) {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}

	if expect.Error != "" || result.CompileError != "" {
		add(assertCompileError(result.CompileError, expect.Error))
		return msgs
	}
	if _, ok := result.Paths[PathSQLiteExecute]; !ok {
		// Execution failed; the path error is already recorded.
		return msgs
	}

	d := result.Descriptor
	if expect.Mode != "" && string(d.Mode) != expect.Mode {
		add(&AssertionError{Type: "mode", Expected: expect.Mode, Actual: string(d.Mode)})
	}
	if expect.Identity != "" {
		add(assertIdentity(d, expect.Identity))
	}
	if len(expect.Fields) > 0 && !slices.Equal(d.FieldNames(), expect.Fields) {
		add(&AssertionError{
			Type:     "fields",
			Expected: strings.Join(expect.Fields, ", "),
			Actual:   strings.Join(d.FieldNames(), ", "),
		})
	}
	if expect.Count != nil && len(result.Rows) != *expect.Count {
		add(&AssertionError{
			Type:     "count",
			Expected: fmt.Sprintf("%d rows", *expect.Count),
			Actual:   fmt.Sprintf("%d rows", len(result.Rows)),
		})
	}
	if expect.Rows != nil {
		add(assertRows(d, result.Rows, expect.Rows))
	}
	if expect.UniqueIdentity {
		add(assertUniqueIdentity(d, result.Rows))
	}
	for _, table := range expect.NullPadded {
		add(assertNullPadded(d, result.Rows, table))
	}
	return msgs
}

func assertCompileError(actual, expected string) error {
	if actual == expected {
		return nil
	}
	if expected == "" {
		expected = "no compile error"
	}
	if actual == "" {
		actual = "no compile error"
	}
	return &AssertionError{Type: "error", Expected: expected, Actual: actual}
}

func assertIdentity(d queryir.Descriptor, expected string) error {
	actual := d.IdentityField
	if !d.HasIdentity() {
		actual = IdentityNone
	}
	if actual != expected {
		return &AssertionError{Type: "identity", Expected: expected, Actual: actual}
	}
	return nil
}

// ExpectedRecords converts scenario rows into records shaped like the
// descriptor's output: keys must be projected, values are coerced to the
// field types and omitted fields become Null.
func ExpectedRecords(d queryir.Descriptor, rows []map[string]any) ([]ir.Record, error) {
	out := make([]ir.Record, 0, len(rows))
	for i, row := range rows {
		raw, err := ir.RecordFromMap(row)
		if err != nil {
			return nil, fmt.Errorf("rows[%d]: %w", i, err)
		}
		rec := make(ir.Record, len(d.Fields))
		for _, f := range d.Fields {
			rec[f.QualifiedName] = ir.Coerce(raw.Get(f.QualifiedName), f.Type)
		}
		for k := range raw {
			if _, ok := d.Field(k); !ok {
				return nil, fmt.Errorf("rows[%d]: field %q is not projected", i, k)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func assertRows(d queryir.Descriptor, actual []ir.Record, rows []map[string]any) error {
	expected, err := ExpectedRecords(d, rows)
	if err != nil {
		return &AssertionError{Type: "rows", Expected: "valid expected rows", Actual: err.Error()}
	}

	missing, unexpected, err := diffMultisets(expected, actual)
	if err != nil {
		return &AssertionError{Type: "rows", Expected: "hashable rows", Actual: err.Error()}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     "rows",
		Expected: fmt.Sprintf("%d rows", len(expected)),
		Actual: fmt.Sprintf("%d rows; missing %s; unexpected %s",
			len(actual), formatRecords(missing), formatRecords(unexpected)),
	}
}

// diffMultisets returns the records of want absent from got and the
// records of got absent from want, counting duplicates.
func diffMultisets(want, got []ir.Record) (missing, unexpected []ir.Record, err error) {
	gotHashes, err := ir.RecordHashes(got)
	if err != nil {
		return nil, nil, err
	}
	wantHashes, err := ir.RecordHashes(want)
	if err != nil {
		return nil, nil, err
	}

	remaining := make(map[string]int, len(gotHashes))
	for _, h := range gotHashes {
		remaining[h]++
	}
	for i, h := range wantHashes {
		if remaining[h] == 0 {
			missing = append(missing, want[i])
			continue
		}
		remaining[h]--
	}
	for i, h := range gotHashes {
		if remaining[h] > 0 {
			unexpected = append(unexpected, got[i])
			remaining[h]--
		}
	}
	return missing, unexpected, nil
}

func formatRecords(recs []ir.Record) string {
	if len(recs) == 0 {
		return "none"
	}
	parts := make([]string, len(recs))
	for i, rec := range recs {
		fields := make([]string, 0, len(rec))
		for _, k := range rec.SortedKeys() {
			fields = append(fields, k+"="+ir.String(rec[k]))
		}
		parts[i] = "{" + strings.Join(fields, " ") + "}"
	}
	return strings.Join(parts, " ")
}

func assertUniqueIdentity(d queryir.Descriptor, rows []ir.Record) error {
	if !d.HasIdentity() {
		return &AssertionError{Type: "unique_identity", Expected: "an identity field", Actual: IdentityNone}
	}
	seen := make(map[string]int, len(rows))
	for i, rec := range rows {
		key, ok := ir.Key(rec.Get(d.IdentityField))
		if !ok {
			return &AssertionError{
				Type:     "unique_identity",
				Expected: "non-null " + d.IdentityField,
				Actual:   fmt.Sprintf("null in row %d", i),
			}
		}
		if prev, dup := seen[key]; dup {
			return &AssertionError{
				Type:     "unique_identity",
				Expected: "distinct " + d.IdentityField,
				Actual:   fmt.Sprintf("%s repeated in rows %d and %d", ir.String(rec.Get(d.IdentityField)), prev, i),
			}
		}
		seen[key] = i
	}
	return nil
}

func assertNullPadded(d queryir.Descriptor, rows []ir.Record, table string) error {
	fields := d.FieldsOf(table)
	if len(fields) == 0 {
		return &AssertionError{Type: "null_padded", Expected: "projected fields of " + table, Actual: "none"}
	}
	for _, rec := range rows {
		if allNull(rec, fields) {
			return nil
		}
	}
	return &AssertionError{
		Type:     "null_padded",
		Expected: "a row with every " + table + " field null",
		Actual:   "no such row",
	}
}

func allNull(rec ir.Record, fields []queryir.JoinedSubfield) bool {
	for _, f := range fields {
		if !ir.IsNull(rec.Get(f.QualifiedName)) {
			return false
		}
	}
	return true
}
