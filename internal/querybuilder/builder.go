package querybuilder

import (
	"fmt"
	"iter"
	"reflect"
	"sort"
	"strings"

	"github.com/koustreak/dbkit/internal/condition"
	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/expr"
)

// Builder renders conditions for one dialect. It holds no per-call state
// and is safe for concurrent use.
type Builder struct {
	dialect database.Dialect
}

// New returns a Builder for d.
func New(d database.Dialect) *Builder {
	return &Builder{dialect: d}
}

// Dialect returns the dialect the builder renders for.
func (b *Builder) Dialect() database.Dialect { return b.dialect }

// Build parses cond (a DSL value or a condition.Condition) and renders it.
// An absent condition, or one that renders to nothing such as NOT(nil),
// yields an empty Fragment.
func (b *Builder) Build(cond any) (Fragment, error) {
	c, err := condition.Parse(cond)
	if err != nil {
		return Fragment{}, err
	}
	bind := &binder{dialect: b.dialect}
	sql, err := renderer{Binder: bind, dialect: b.dialect}.condition(c)
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{SQL: sql, Bindings: bind.bindings}, nil
}

// renderer walks a condition tree depth first. Placeholders come from the
// embedded Binder, so numbering continues across nested subqueries.
type renderer struct {
	expr.Binder
	dialect database.Dialect
}

func (r renderer) condition(c condition.Condition) (string, error) {
	switch c := c.(type) {
	case nil:
		return "", nil
	case *condition.Raw:
		return expr.Render(c.Expression(), r)
	case *condition.Simple:
		return r.simple(c)
	case *condition.Hash:
		return r.hash(c)
	case *condition.Between:
		return r.between(c)
	case *condition.BetweenColumns:
		return r.betweenColumns(c)
	case *condition.Not:
		return r.not(c)
	case *condition.Logical:
		return r.logical(c)
	case *condition.In:
		return r.in(c)
	case *condition.Like:
		return r.like(c)
	case *condition.Exists:
		sub, err := expr.Render(c.Query(), r)
		if err != nil {
			return "", err
		}
		return c.Operator() + " " + sub, nil
	default:
		return "", errs.Newf(errs.ErrKindInvalidArgument, "unsupported condition type %T", c)
	}
}

// column renders an identifier string (quoted) or an expression.
func (r renderer) column(v any) (string, error) {
	switch c := v.(type) {
	case string:
		return r.QuoteColumn(c), nil
	case expr.Expression:
		return expr.Render(c, r)
	case expr.Query:
		return expr.Render(expr.SubQuery{Query: c}, r)
	}
	return "", errs.Newf(errs.ErrKindInvalidArgument, "column must be string or Expression, got %T", v)
}

// value binds v unless it is an expression, which is rendered inline.
func (r renderer) value(v any) (string, error) {
	if e, ok := v.(expr.Expression); ok {
		return expr.Render(e, r)
	}
	return r.Bind(v), nil
}

func (r renderer) simple(c *condition.Simple) (string, error) {
	col, err := r.column(c.Column())
	if err != nil {
		return "", err
	}
	if c.Value() == nil {
		switch c.Operator() {
		case "=":
			return col + " IS NULL", nil
		case "!=", "<>":
			return col + " IS NOT NULL", nil
		}
	}
	val, err := r.value(c.Value())
	if err != nil {
		return "", err
	}
	return col + " " + c.Operator() + " " + val, nil
}

func (r renderer) hash(c *condition.Hash) (string, error) {
	parts := make([]string, 0, len(c.Columns()))
	for _, name := range c.Columns() {
		v := c.Value(name)
		var (
			part string
			err  error
		)
		switch val := v.(type) {
		case nil:
			part = r.QuoteColumn(name) + " IS NULL"
		case []any:
			part, err = r.inList([]any{name}, "IN", val)
		case expr.SubQuery:
			part, err = r.inQuery([]any{name}, "IN", val)
		default:
			var rhs string
			rhs, err = r.value(val)
			part = r.QuoteColumn(name) + " = " + rhs
		}
		if err != nil {
			return "", err
		}
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " AND "), nil
}

func (r renderer) between(c *condition.Between) (string, error) {
	col, err := r.column(c.Column())
	if err != nil {
		return "", err
	}
	low, err := r.value(c.Low())
	if err != nil {
		return "", err
	}
	high, err := r.value(c.High())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s AND %s", col, c.Operator(), low, high), nil
}

func (r renderer) betweenColumns(c *condition.BetweenColumns) (string, error) {
	val, err := r.betweenValue(c.Value())
	if err != nil {
		return "", err
	}
	start, err := r.column(c.IntervalStartColumn())
	if err != nil {
		return "", err
	}
	end, err := r.column(c.IntervalEndColumn())
	if err != nil {
		return "", err
	}
	op := strings.ToUpper(strings.Join(strings.Fields(c.Operator()), " "))
	return fmt.Sprintf("%s %s %s AND %s", val, op, start, end), nil
}

// betweenValue renders the tested value of a BetweenColumns: expressions
// inline, lists and maps as a parenthesized row of bindings, anything else
// as a single binding.
func (r renderer) betweenValue(v any) (string, error) {
	switch val := v.(type) {
	case expr.Expression:
		return expr.Render(val, r)
	case expr.Query:
		return expr.Render(expr.SubQuery{Query: val}, r)
	case string:
		return r.Bind(val), nil
	case iter.Seq[any]:
		var items []any
		for item := range val {
			items = append(items, item)
		}
		return r.row(items), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return r.row(items), nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j]) })
		items := make([]any, len(keys))
		for i, k := range keys {
			items[i] = rv.MapIndex(k).Interface()
		}
		return r.row(items), nil
	}
	return r.Bind(v), nil
}

func (r renderer) row(items []any) string {
	phs := make([]string, len(items))
	for i, item := range items {
		phs[i] = r.Bind(item)
	}
	return "(" + strings.Join(phs, ", ") + ")"
}

func (r renderer) not(c *condition.Not) (string, error) {
	inner, err := r.condition(c.Inner())
	if err != nil || inner == "" {
		return "", err
	}
	return "NOT (" + inner + ")", nil
}

func (r renderer) logical(c *condition.Logical) (string, error) {
	var (
		parts []string
		only  string
	)
	for _, child := range c.Conditions() {
		sql, err := r.condition(child)
		if err != nil {
			return "", err
		}
		if sql == "" {
			continue
		}
		only = sql
		if !atomic(child) {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
	}
	// A lone child needs no grouping; the caller decides on parentheses.
	if len(parts) == 1 {
		return only, nil
	}
	return strings.Join(parts, " "+c.Operator()+" "), nil
}

// atomic reports whether a child renders as a single comparison that needs
// no parentheses inside AND/OR.
func atomic(c condition.Condition) bool {
	switch c := c.(type) {
	case *condition.Simple:
		return true
	case *condition.Hash:
		cols := c.Columns()
		return len(cols) == 1 && !mixedNulls(c.Value(cols[0]))
	}
	return false
}

// mixedNulls reports whether v is a list holding both nil and non-nil
// values, which renders as "col IN (...) OR col IS NULL".
func mixedNulls(v any) bool {
	list, ok := v.([]any)
	if !ok {
		return false
	}
	nulls := 0
	for _, item := range list {
		if item == nil {
			nulls++
		}
	}
	return nulls > 0 && nulls < len(list)
}

func (r renderer) in(c *condition.In) (string, error) {
	if q := c.Query(); q != nil {
		return r.inQuery(c.Columns(), c.Operator(), q)
	}
	if len(c.Columns()) > 1 && len(c.Values()) > 0 {
		return r.inComposite(c)
	}
	return r.inList(c.Columns(), c.Operator(), c.Values())
}

func (r renderer) inColumns(columns []any) (string, error) {
	if len(columns) == 1 {
		return r.column(columns[0])
	}
	quoted := make([]string, len(columns))
	for i, col := range columns {
		s, err := r.column(col)
		if err != nil {
			return "", err
		}
		quoted[i] = s
	}
	return "(" + strings.Join(quoted, ", ") + ")", nil
}

func (r renderer) inQuery(columns []any, op string, q expr.Expression) (string, error) {
	cols, err := r.inColumns(columns)
	if err != nil {
		return "", err
	}
	sub, err := expr.Render(q, r)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(sub, "(") {
		sub = "(" + sub + ")"
	}
	return cols + " " + op + " " + sub, nil
}

func (r renderer) inList(columns []any, op string, values []any) (string, error) {
	negated := op == "NOT IN"
	if len(values) == 0 {
		if negated {
			return "", nil
		}
		return "0=1", nil
	}
	col, err := r.column(columns[0])
	if err != nil {
		return "", err
	}

	var (
		phs     []string
		hasNull bool
	)
	for _, v := range values {
		if v == nil {
			hasNull = true
			continue
		}
		ph, err := r.value(v)
		if err != nil {
			return "", err
		}
		phs = append(phs, ph)
	}

	var sql string
	switch {
	case len(phs) == 0:
		if negated {
			return col + " IS NOT NULL", nil
		}
		return col + " IS NULL", nil
	case len(phs) == 1 && negated:
		sql = col + " <> " + phs[0]
	case len(phs) == 1:
		sql = col + " = " + phs[0]
	default:
		sql = col + " " + op + " (" + strings.Join(phs, ", ") + ")"
	}

	if hasNull {
		if negated {
			sql += " AND " + col + " IS NOT NULL"
		} else {
			sql += " OR " + col + " IS NULL"
		}
	}
	return sql, nil
}

// inComposite renders (a, b) IN ((?, ?), ...) over the rows of c.
func (r renderer) inComposite(c *condition.In) (string, error) {
	cols, err := r.inColumns(c.Columns())
	if err != nil {
		return "", err
	}
	n := len(c.Values())
	rows := make([]string, 0, n)
	for i := range n {
		items := c.Row(i)
		phs := make([]string, len(items))
		for j, item := range items {
			ph, err := r.value(item)
			if err != nil {
				return "", err
			}
			phs[j] = ph
		}
		rows = append(rows, "("+strings.Join(phs, ", ")+")")
	}
	return cols + " " + c.Operator() + " (" + strings.Join(rows, ", ") + ")", nil
}

func (r renderer) like(c *condition.Like) (string, error) {
	values := c.Values()
	if len(values) == 0 {
		if c.Negated() {
			return "", nil
		}
		return "0=1", nil
	}

	col, err := r.column(c.Column())
	if err != nil {
		return "", err
	}

	op := "LIKE"
	if c.CaseInsensitive() && r.dialect.SupportsILike() {
		op = "ILIKE"
	}
	if c.Negated() {
		op = "NOT " + op
	}
	escape := r.dialect.LikeEscapeClause()

	parts := make([]string, len(values))
	for i, v := range values {
		var rhs string
		if s, ok := v.(string); ok {
			rhs = r.Bind(c.Pattern(s))
		} else if rhs, err = r.value(v); err != nil {
			return "", err
		}
		parts[i] = col + " " + op + " " + rhs + escape
	}

	glue := " AND "
	if c.Disjunctive() {
		glue = " OR "
	}
	return strings.Join(parts, glue), nil
}
