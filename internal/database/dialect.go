package database

import (
	"fmt"
	"strings"

	"github.com/koustreak/dbkit/internal/errs"
)

// Dialect controls placeholder style, identifier quoting and the few
// rendering rules that differ between engines.
type Dialect int

const (
	// DialectPostgres uses $1, $2, … placeholders and "ident" quoting.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders and `ident` quoting.
	DialectMySQL

	// DialectSQLite uses ? placeholders and "ident" quoting.
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// DialectFor maps a configured driver to its dialect.
func DialectFor(driver Driver) (Dialect, error) {
	switch driver {
	case DriverPostgres:
		return DialectPostgres, nil
	case DriverMySQL:
		return DialectMySQL, nil
	case DriverSQLite:
		return DialectSQLite, nil
	default:
		return 0, errs.Newf(errs.ErrKindInvalidArgument, "unknown driver %q", driver)
	}
}

// Placeholder returns the parameter placeholder for the idx-th (1-based)
// bound value. Postgres: $1, $2, …   MySQL/SQLite: ? (index is ignored)
func (d Dialect) Placeholder(idx int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", idx)
	}
	return "?"
}

// QuoteColumn quotes a column name. Table-qualified names are quoted part by
// part; "*", already-quoted names and names containing "(" (function calls)
// are left untouched.
func (d Dialect) QuoteColumn(name string) string {
	if strings.ContainsAny(name, "(") {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.quoteSimple(p)
	}
	return strings.Join(parts, ".")
}

// QuoteTable quotes a table name, which may be schema-qualified.
func (d Dialect) QuoteTable(name string) string {
	return d.QuoteColumn(name)
}

// LikeEscapeClause returns the ESCAPE clause required for backslash escapes
// in LIKE patterns. MySQL and PostgreSQL use backslash by default; SQLite
// has no default escape character.
func (d Dialect) LikeEscapeClause() string {
	if d == DialectSQLite {
		return ` ESCAPE '\'`
	}
	return ""
}

// SupportsILike reports whether the dialect has a native ILIKE operator.
func (d Dialect) SupportsILike() bool {
	return d == DialectPostgres
}

func (d Dialect) quoteSimple(name string) string {
	if name == "*" {
		return name
	}
	q := `"`
	if d == DialectMySQL {
		q = "`"
	}
	if strings.HasPrefix(name, q) && strings.HasSuffix(name, q) && len(name) > 1 {
		return name
	}
	return q + strings.ReplaceAll(name, q, q+q) + q
}
