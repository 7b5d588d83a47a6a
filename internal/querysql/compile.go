package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
)

// SQLCompiler compiles query IR to parameterized SQL.
//
// CRITICAL: All values are parameterized, never interpolated.
// Every descriptor query carries ORDER BY so results are deterministic.
type SQLCompiler struct {
	Dialect Dialect
}

// NewSQLCompiler creates a compiler for a dialect.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	return &SQLCompiler{Dialect: d}
}

// builder accumulates parameters so placeholders can be numbered.
type builder struct {
	dialect Dialect
	params  []any
}

func (b *builder) bind(v ir.Value) (string, error) {
	param, err := ir.ToSQL(v)
	if err != nil {
		return "", fmt.Errorf("convert value: %w", err)
	}
	b.params = append(b.params, param)
	return b.dialect.Placeholder(len(b.params)), nil
}

// Compile converts a Scan or Join to parameterized SQL.
// Returns (sql, params, error).
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	b := &builder{dialect: c.Dialect}
	switch query := q.(type) {
	case queryir.Scan:
		sql, err := c.compileScan(b, query)
		return sql, b.params, err
	case *queryir.Scan:
		sql, err := c.compileScan(b, *query)
		return sql, b.params, err
	case queryir.Join, *queryir.Join:
		from, err := c.compileFrom(b, query)
		if err != nil {
			return "", nil, err
		}
		return "SELECT * FROM " + from, b.params, nil
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileScan(b *builder, q queryir.Scan) (string, error) {
	if q.Table == "" {
		return "", fmt.Errorf("scan requires a table")
	}

	selectClause := "*"
	if len(q.Fields) > 0 {
		cols := make([]string, len(q.Fields))
		for i, f := range q.Fields {
			cols[i] = c.Dialect.QuoteIdent(f)
		}
		selectClause = strings.Join(cols, ", ")
	}

	var whereClause string
	if q.Filter != nil {
		filterSQL, err := c.compilePredicate(b, q.Filter, false)
		if err != nil {
			return "", fmt.Errorf("compile filter: %w", err)
		}
		whereClause = " WHERE " + filterSQL
	}

	var orderByClause string
	if len(q.OrderBy) > 0 {
		terms := make([]string, len(q.OrderBy))
		for i, f := range q.OrderBy {
			terms[i] = c.Dialect.QuoteIdent(f) + c.Dialect.orderSuffix()
		}
		orderByClause = " ORDER BY " + strings.Join(terms, ", ")
	}

	if q.Limit < 0 || q.Offset < 0 {
		return "", fmt.Errorf("negative limit or offset")
	}

	return fmt.Sprintf("SELECT %s FROM %s%s%s%s",
		selectClause,
		c.Dialect.QuoteIdent(q.Table),
		whereClause,
		orderByClause,
		c.Dialect.limitClause(q.Limit, q.Offset)), nil
}

// CompileDescriptor renders a push-down descriptor as a SELECT with every
// projected field aliased to its qualified name.
//
// Predicate strategy:
//
//	SELECT ... FROM "g", "bridge", "n" WHERE "g"."k" = "bridge"."fk1" AND ...
//
// Statement strategy:
//
//	SELECT ... FROM "n" LEFT JOIN "bridge" ON ... LEFT JOIN "g" ON ...
func (c *SQLCompiler) CompileDescriptor(d queryir.Descriptor) (string, []any, error) {
	if len(d.Fields) == 0 {
		return "", nil, fmt.Errorf("descriptor projects no fields")
	}

	b := &builder{dialect: c.Dialect}
	cols := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		cols[i] = fmt.Sprintf("%s AS %s", c.columnRef(f.Ref()), c.Dialect.QuoteIdent(f.QualifiedName))
	}

	var from string
	switch d.Strategy {
	case queryir.StrategyPredicate:
		if d.JoinType.IsOuter() && !c.Dialect.Capability().SupportsPredicateOuterJoin {
			return "", nil, fmt.Errorf("dialect %s cannot express outer joins as predicates", c.Dialect)
		}
		tables := make([]string, len(d.Tables))
		for i, t := range d.Tables {
			tables[i] = c.Dialect.QuoteIdent(t.Name)
		}
		where, err := c.compilePredicate(b, d.Predicate, true)
		if err != nil {
			return "", nil, fmt.Errorf("compile join predicate: %w", err)
		}
		from = strings.Join(tables, ", ") + " WHERE " + where
	case queryir.StrategyStatement:
		var err error
		from, err = c.compileFrom(b, d.Statement)
		if err != nil {
			return "", nil, fmt.Errorf("compile join statement: %w", err)
		}
	default:
		return "", nil, fmt.Errorf("unknown strategy %q", d.Strategy)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), from)
	if order := c.descriptorOrder(d); order != "" {
		sql += " ORDER BY " + order
	}
	return sql, b.params, nil
}

// CompileCreateView renders a descriptor as a session-scoped view.
func (c *SQLCompiler) CompileCreateView(name string, d queryir.Descriptor) (string, []any, error) {
	sel, params, err := c.CompileDescriptor(d)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("CREATE %sVIEW %s AS %s", c.Dialect.tempViewKeyword(), c.Dialect.QuoteIdent(name), sel), params, nil
}

// CompileDropView renders DROP VIEW for a computed dataset.
func (c *SQLCompiler) CompileDropView(name string) string {
	return "DROP VIEW IF EXISTS " + c.Dialect.QuoteIdent(name)
}

// descriptorOrder orders by each participant's identity, in table order.
func (c *SQLCompiler) descriptorOrder(d queryir.Descriptor) string {
	var terms []string
	for _, t := range d.Tables {
		id, ok := t.Identity()
		if !ok {
			continue
		}
		terms = append(terms, c.columnRef(queryir.ColumnRef{Table: t.Name, Field: id.Name})+c.Dialect.orderSuffix())
	}
	return strings.Join(terms, ", ")
}

// compileFrom renders a statement tree as a FROM clause.
// Joins are left-deep; a non-scan right operand is parenthesized.
func (c *SQLCompiler) compileFrom(b *builder, q queryir.Query) (string, error) {
	switch query := q.(type) {
	case queryir.Scan:
		return c.Dialect.QuoteIdent(query.Table), nil
	case *queryir.Scan:
		return c.Dialect.QuoteIdent(query.Table), nil
	case queryir.Join:
		return c.compileJoin(b, query)
	case *queryir.Join:
		return c.compileJoin(b, *query)
	case nil:
		return "", fmt.Errorf("missing statement")
	default:
		return "", fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileJoin(b *builder, j queryir.Join) (string, error) {
	var keyword string
	switch j.Type {
	case ir.JoinInner:
		keyword = "INNER JOIN"
	case ir.JoinLeft:
		keyword = "LEFT JOIN"
	default:
		return "", fmt.Errorf("statement joins must be inner or left, got %q", j.Type)
	}

	left, err := c.compileFrom(b, j.Left)
	if err != nil {
		return "", err
	}
	right, err := c.compileFrom(b, j.Right)
	if err != nil {
		return "", err
	}
	if _, isJoin := j.Right.(queryir.Join); isJoin {
		right = "(" + right + ")"
	}

	onSQL := "1 = 1"
	if j.On != nil {
		onSQL, err = c.compilePredicate(b, j.On, false)
		if err != nil {
			return "", fmt.Errorf("compile join ON: %w", err)
		}
	}

	return fmt.Sprintf("%s %s %s ON %s", left, keyword, right, onSQL), nil
}

// compilePredicate renders a predicate. Outer markers are rendered as (+)
// only when markers is set.
// CRITICAL: Values NEVER interpolated.
func (c *SQLCompiler) compilePredicate(b *builder, p queryir.Predicate, markers bool) (string, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil
	case queryir.Equals:
		return c.compileEquals(b, pred)
	case *queryir.Equals:
		return c.compileEquals(b, *pred)
	case queryir.ColumnEquals:
		return c.compileColumnEquals(pred, markers), nil
	case *queryir.ColumnEquals:
		return c.compileColumnEquals(*pred, markers), nil
	case queryir.And:
		return c.compileAnd(b, pred, markers)
	case *queryir.And:
		return c.compileAnd(b, *pred, markers)
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileEquals(b *builder, eq queryir.Equals) (string, error) {
	placeholder, err := b.bind(eq.Value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = %s", c.Dialect.QuoteIdent(eq.Field), placeholder), nil
}

func (c *SQLCompiler) compileColumnEquals(eq queryir.ColumnEquals, markers bool) string {
	left, right := c.columnRef(eq.Left), c.columnRef(eq.Right)
	if markers {
		switch eq.Outer {
		case queryir.OuterLeft:
			left += "(+)"
		case queryir.OuterRight:
			right += "(+)"
		}
	}
	return left + " = " + right
}

func (c *SQLCompiler) compileAnd(b *builder, and queryir.And, markers bool) (string, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil
	}

	parts := make([]string, 0, len(and.Predicates))
	for _, pred := range and.Predicates {
		sql, err := c.compilePredicate(b, pred, markers)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, " AND "), nil
}

func (c *SQLCompiler) columnRef(ref queryir.ColumnRef) string {
	return c.Dialect.QuoteIdent(ref.Table) + "." + c.Dialect.QuoteIdent(ref.Field)
}
