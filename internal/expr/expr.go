// Package expr holds the atomic operands a condition can carry when a plain
// column name or bound value is not enough: raw SQL fragments, explicit
// scalars, subqueries and ordered sequences of those.
//
// Expressions are immutable once constructed and are rendered by
// querybuilder against a Binder, which hands out placeholders so numbering
// stays consistent however deeply expressions nest.
package expr

import (
	"strings"

	"github.com/koustreak/dbkit/internal/errs"
)

// Expression is the closed set of expression values: Raw, Scalar, SubQuery
// and Sequence.
type Expression interface {
	isExpression()
}

// Binder receives bound values while a fragment is being rendered.
type Binder interface {
	// Bind records v and returns the placeholder that refers to it.
	Bind(v any) string
	// QuoteColumn quotes a (possibly table-qualified) column name.
	QuoteColumn(name string) string
	// QuoteTable quotes a (possibly schema-qualified) table name.
	QuoteTable(name string) string
}

// Query is anything that renders itself to a complete SQL statement, such as
// querybuilder.SelectBuilder. Used as the payload of SubQuery.
type Query interface {
	Render(b Binder) (string, error)
}

// Raw is a trusted SQL fragment. Each "?" in SQL is a bind marker consumed
// in order from Args; "??" stands for a literal question mark.
type Raw struct {
	SQL  string
	Args []any
}

// NewRaw returns a Raw expression.
func NewRaw(sql string, args ...any) Raw {
	return Raw{SQL: sql, Args: args}
}

// Scalar is a literal that is always bound as a parameter.
type Scalar struct {
	Value any
}

// SubQuery wraps a Query so it renders parenthesized inside a larger statement.
type SubQuery struct {
	Query Query
}

// Sequence is an ordered list of expressions rendered as "(a, b, c)".
type Sequence struct {
	Items []Expression
}

// NewSequence returns a Sequence over items.
func NewSequence(items ...Expression) Sequence {
	return Sequence{Items: items}
}

func (Raw) isExpression()      {}
func (Scalar) isExpression()   {}
func (SubQuery) isExpression() {}
func (Sequence) isExpression() {}

// Render writes e to SQL using b for placeholders and quoting.
func Render(e Expression, b Binder) (string, error) {
	switch v := e.(type) {
	case Raw:
		return renderRaw(v, b)
	case Scalar:
		return b.Bind(v.Value), nil
	case SubQuery:
		if v.Query == nil {
			return "", errs.New(errs.ErrKindInvalidArgument, "sub-query is nil")
		}
		sql, err := v.Query.Render(b)
		if err != nil {
			return "", err
		}
		return "(" + sql + ")", nil
	case Sequence:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			sql, err := Render(item, b)
			if err != nil {
				return "", err
			}
			parts[i] = sql
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	default:
		return "", errs.Newf(errs.ErrKindInvalidArgument, "unknown expression type %T", e)
	}
}

func renderRaw(r Raw, b Binder) (string, error) {
	if !strings.Contains(r.SQL, "?") {
		if len(r.Args) > 0 {
			return "", errs.Newf(errs.ErrKindInvalidArgument, "raw expression %q has %d args but no bind markers", r.SQL, len(r.Args))
		}
		return r.SQL, nil
	}

	var sb strings.Builder
	next := 0
	for i := 0; i < len(r.SQL); i++ {
		c := r.SQL[i]
		if c != '?' {
			sb.WriteByte(c)
			continue
		}
		if i+1 < len(r.SQL) && r.SQL[i+1] == '?' {
			sb.WriteByte('?')
			i++
			continue
		}
		if next >= len(r.Args) {
			return "", errs.Newf(errs.ErrKindInvalidArgument, "raw expression %q has more bind markers than args", r.SQL)
		}
		sb.WriteString(b.Bind(r.Args[next]))
		next++
	}
	if next != len(r.Args) {
		return "", errs.Newf(errs.ErrKindInvalidArgument, "raw expression %q uses %d of %d args", r.SQL, next, len(r.Args))
	}
	return sb.String(), nil
}
