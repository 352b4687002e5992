package condition

import (
	"github.com/koustreak/dbkit/internal/expr"
)

// In tests membership: column IN (values) or NOT IN. For composite keys
// Columns holds several names and each value is a row (a list in column
// order or a map keyed by column name).
type In struct {
	columns  []any
	operator string
	values   []any
	query    expr.Expression
}

// NewIn returns column op values.
func NewIn(column any, op string, values any) (*In, error) {
	return InFromArrayDefinition(op, []any{column, values})
}

// InFromArrayDefinition builds an In from [column, values]. column is a
// string, a []string for composite keys, or an Expression. values is any
// list, a row iterator, or an Expression/subquery.
func InFromArrayDefinition(op string, operands []any) (*In, error) {
	norm := normalizeOperator(op)
	if norm != "IN" && norm != "NOT IN" {
		return nil, invalidf("unsupported IN operator: %q", op)
	}
	if len(operands) != 2 {
		return nil, invalidf("Operator '%s' requires two operands.", op)
	}

	in := &In{operator: norm}
	switch c := operands[0].(type) {
	case []string:
		if len(c) == 0 {
			return nil, invalidf("Operator '%s' requires at least one column.", op)
		}
		for _, name := range c {
			in.columns = append(in.columns, name)
		}
	default:
		if !isColumn(c) {
			return nil, invalidf("Operator '%s' requires column to be string, []string or Expression.", op)
		}
		in.columns = []any{columnOperand(c)}
	}

	if e, ok := asExpression(operands[1]); ok {
		in.query = e
		return in, nil
	}
	values, ok := toSlice(operands[1])
	if !ok {
		if operands[1] == nil || isList(operands[1]) {
			return nil, invalidf("Operator '%s' requires values to be a list, iterator or Expression.", op)
		}
		// A single scalar is a one-element list.
		values = []any{operands[1]}
	}
	if len(in.columns) > 1 {
		for i, row := range values {
			list, err := in.row(op, row)
			if err != nil {
				return nil, err
			}
			values[i] = list
		}
	}
	in.values = values
	return in, nil
}

// row checks one composite row and returns it as a list in column order.
func (in *In) row(op string, row any) ([]any, error) {
	if m, ok := row.(map[string]any); ok {
		out := make([]any, len(in.columns))
		for i, c := range in.columns {
			v, ok := m[c.(string)]
			if !ok {
				return nil, invalidf("Operator '%s' row is missing column %q.", op, c)
			}
			out[i] = v
		}
		return out, nil
	}
	list, ok := toSlice(row)
	if !ok || len(list) != len(in.columns) {
		return nil, invalidf("Operator '%s' requires each row to have %d values.", op, len(in.columns))
	}
	return list, nil
}

func (in *In) Operator() string { return in.operator }

// Columns returns the tested columns (strings or expressions).
func (in *In) Columns() []any { return append([]any(nil), in.columns...) }

// Values returns the value list, or nil when the values come from a subquery.
// Composite rows are returned as lists in column order.
func (in *In) Values() []any {
	if in.values == nil {
		return nil
	}
	return append([]any(nil), in.values...)
}

// Query returns the subquery or expression supplying the values, if any.
func (in *In) Query() expr.Expression { return in.query }

// Row returns the i-th composite row as a list in column order.
func (in *In) Row(i int) []any {
	list, _ := in.values[i].([]any)
	return append([]any(nil), list...)
}
