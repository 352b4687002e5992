package condition

import "strings"

// Like matches column against one or more patterns. With escaping on (the
// default) each string value has %, _ and \ escaped and is wrapped in
// %...%, so it matches as a substring. Multiple values are joined with AND,
// or with OR for the "OR LIKE" / "OR NOT LIKE" operators.
type Like struct {
	column   any
	operator string
	values   []any
	escape   bool
}

// NewLike returns column op values with escaping enabled.
func NewLike(column any, op string, values any) (*Like, error) {
	return LikeFromArrayDefinition(op, []any{column, values})
}

// LikeFromArrayDefinition builds a Like from [column, values] or
// [column, values, escape]. values is a string, a list of strings or
// Expressions, or a single Expression. escape must be a bool.
func LikeFromArrayDefinition(op string, operands []any) (*Like, error) {
	norm := normalizeOperator(op)
	switch norm {
	case "LIKE", "NOT LIKE", "OR LIKE", "OR NOT LIKE", "ILIKE", "NOT ILIKE":
	default:
		return nil, invalidf("unsupported LIKE operator: %q", op)
	}
	if len(operands) != 2 && len(operands) != 3 {
		return nil, invalidf("Operator '%s' requires two or three operands.", op)
	}
	if !isColumn(operands[0]) {
		return nil, invalidf("Operator '%s' requires column to be string or Expression.", op)
	}

	l := &Like{column: columnOperand(operands[0]), operator: norm, escape: true}
	if len(operands) == 3 {
		escape, ok := operands[2].(bool)
		if !ok {
			return nil, invalidf("Operator '%s' requires the escape flag to be a bool.", op)
		}
		l.escape = escape
	}

	raw := operands[1]
	list, isSlice := toSlice(raw)
	if !isSlice {
		list = []any{raw}
	}
	for _, v := range list {
		if _, ok := v.(string); ok {
			l.values = append(l.values, v)
			continue
		}
		e, ok := asExpression(v)
		if !ok {
			return nil, invalidf("Operator '%s' requires values to be strings or Expressions.", op)
		}
		l.values = append(l.values, e)
	}
	return l, nil
}

func (l *Like) Operator() string { return l.operator }
func (l *Like) Column() any      { return l.column }

// Values returns the patterns (strings or expressions).
func (l *Like) Values() []any { return append([]any(nil), l.values...) }

// Escape reports whether string values are escaped and wrapped in %...%.
func (l *Like) Escape() bool { return l.escape }

// Negated reports whether this is a NOT LIKE / NOT ILIKE variant.
func (l *Like) Negated() bool { return strings.Contains(l.operator, "NOT") }

// Disjunctive reports whether multiple values are joined with OR.
func (l *Like) Disjunctive() bool { return strings.HasPrefix(l.operator, "OR ") }

// CaseInsensitive reports whether this is an ILIKE variant.
func (l *Like) CaseInsensitive() bool { return strings.HasSuffix(l.operator, "ILIKE") }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Pattern returns the bound form of a string value.
func (l *Like) Pattern(v string) string {
	if !l.escape {
		return v
	}
	return "%" + likeEscaper.Replace(v) + "%"
}
