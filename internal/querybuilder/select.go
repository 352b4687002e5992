package querybuilder

import (
	"fmt"
	"strings"

	"github.com/koustreak/dbkit/internal/condition"
	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/expr"
)

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Values are never interpolated into the SQL string, always passed as args.
// A SelectBuilder is an expr.Query, so it can be used wherever a condition
// takes a subquery (IN, EXISTS, comparison values, BETWEEN columns).
//
// Usage (Postgres):
//
//	sql, args, err := Select("users", database.DialectPostgres).
//	    Columns("id", "name", "email").
//	    Where([]any{"=", "active", true}).
//	    AndWhere([]any{"IN", "role", []string{"admin", "owner"}}).
//	    OrderBy("created_at", Desc).
//	    Limit(20).
//	    Build()
type SelectBuilder struct {
	table   string
	dialect database.Dialect
	columns []string
	where   any
	orderBy []orderClause
	limit   *int
	offset  *int
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type orderClause struct {
	column string
	dir    SortDirection
}

// Select starts a new SelectBuilder for the given table and dialect.
func Select(table string, d database.Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where replaces the WHERE condition. cond is any value condition.Parse
// accepts.
func (b *SelectBuilder) Where(cond any) *SelectBuilder {
	b.where = cond
	return b
}

// AndWhere combines the existing condition with cond using AND.
func (b *SelectBuilder) AndWhere(cond any) *SelectBuilder {
	return b.combine("AND", cond)
}

// OrWhere combines the existing condition with cond using OR.
func (b *SelectBuilder) OrWhere(cond any) *SelectBuilder {
	return b.combine("OR", cond)
}

func (b *SelectBuilder) combine(op string, cond any) *SelectBuilder {
	if b.where == nil {
		b.where = cond
		return b
	}
	b.where = []any{op, b.where, cond}
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip (for pagination).
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the final SQL string and argument slice.
// Returns an InvalidArgument error if the WHERE condition is malformed.
func (b *SelectBuilder) Build() (string, []any, error) {
	bind := &binder{dialect: b.dialect}
	sql, err := b.Render(bind)
	if err != nil {
		return "", nil, err
	}
	return sql, Fragment{Bindings: bind.bindings}.Args(), nil
}

// Render writes the statement using bnd for placeholders, so a builder used
// as a subquery continues the enclosing statement's numbering.
func (b *SelectBuilder) Render(bnd expr.Binder) (string, error) {
	if b.table == "" {
		return "", errs.New(errs.ErrKindInvalidArgument, "select requires a table")
	}
	r := renderer{Binder: bnd, dialect: b.dialect}

	// --- column list ---
	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = bnd.QuoteColumn(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(bnd.QuoteTable(b.table))

	// --- WHERE ---
	c, err := condition.Parse(b.where)
	if err != nil {
		return "", err
	}
	where, err := r.condition(c)
	if err != nil {
		return "", err
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}

	// --- ORDER BY ---
	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", bnd.QuoteColumn(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	// --- LIMIT ---
	if b.limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(bnd.Bind(*b.limit))
	}

	// --- OFFSET ---
	if b.offset != nil {
		sb.WriteString(" OFFSET ")
		sb.WriteString(bnd.Bind(*b.offset))
	}

	return sb.String(), nil
}
