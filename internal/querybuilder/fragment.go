// Package querybuilder renders condition trees into dialect-specific SQL
// fragments with positional bindings, and builds the SELECT statements those
// fragments are embedded in (including nested subqueries).
//
// Usage:
//
//	frag, err := querybuilder.New(database.DialectPostgres).Build([]any{"AND",
//	    []any{"=", "status", 1},
//	    []any{"BETWEEN", "age", 18, 65},
//	})
//	// frag.SQL    == `"status" = $1 AND ("age" BETWEEN $2 AND $3)`
//	// frag.Args() == []any{1, 18, 65}
//
// Values are never interpolated into the SQL string. Identifiers are quoted
// by the dialect and operators come from a fixed allowlist.
package querybuilder

import (
	"github.com/koustreak/dbkit/internal/database"
)

// Binding pairs a placeholder with the value it stands for.
type Binding struct {
	Placeholder string `json:"placeholder"`
	Value       any    `json:"value"`
}

// Fragment is rendered SQL plus its bindings in placeholder order.
type Fragment struct {
	SQL      string    `json:"sql"`
	Bindings []Binding `json:"bindings"`
}

// Args returns the bound values in order, ready to pass to database.DB.Query.
func (f Fragment) Args() []any {
	args := make([]any, len(f.Bindings))
	for i, b := range f.Bindings {
		args[i] = b.Value
	}
	return args
}

// Empty reports whether the fragment renders to nothing.
func (f Fragment) Empty() bool { return f.SQL == "" }

// binder is the expr.Binder that collects bindings for one statement.
type binder struct {
	dialect  database.Dialect
	bindings []Binding
}

func (b *binder) Bind(v any) string {
	ph := b.dialect.Placeholder(len(b.bindings) + 1)
	b.bindings = append(b.bindings, Binding{Placeholder: ph, Value: v})
	return ph
}

func (b *binder) QuoteColumn(name string) string { return b.dialect.QuoteColumn(name) }
func (b *binder) QuoteTable(name string) string  { return b.dialect.QuoteTable(name) }
