package condition

import (
	"sort"
)

// simpleOperators is the allowlist of comparison operators. The operator
// position cannot be parameterized, so anything else is rejected.
var simpleOperators = map[string]bool{
	"=":  true,
	"!=": true,
	"<>": true,
	"<":  true,
	">":  true,
	"<=": true,
	">=": true,
}

// Simple is a single comparison: column operator value.
type Simple struct {
	column   any
	operator string
	value    any
}

// NewSimple returns column op value. column is an identifier string or an
// expression; value is bound unless it is an expression or subquery.
func NewSimple(column any, op string, value any) (*Simple, error) {
	return SimpleFromArrayDefinition(op, []any{column, value})
}

// SimpleFromArrayDefinition builds a comparison from [column, value].
func SimpleFromArrayDefinition(op string, operands []any) (*Simple, error) {
	norm := normalizeOperator(op)
	if !simpleOperators[norm] {
		return nil, invalidf("unsupported comparison operator: %q", op)
	}
	if len(operands) != 2 {
		return nil, invalidf("Operator '%s' requires two operands.", op)
	}
	if !isColumn(operands[0]) {
		return nil, invalidf("Operator '%s' requires column to be string or Expression.", op)
	}
	value := operands[1]
	if e, ok := asExpression(value); ok {
		value = e
	}
	return &Simple{column: columnOperand(operands[0]), operator: norm, value: value}, nil
}

func (s *Simple) Operator() string { return s.operator }

// Column returns the column name or expression.
func (s *Simple) Column() any { return s.column }

// Value returns the compared value.
func (s *Simple) Value() any { return s.value }

// Hash is a column→value map: every pair must hold. Slices and subqueries
// become IN, nil becomes IS NULL, anything else is an equality.
type Hash struct {
	columns []string
	values  map[string]any
}

// NewHash copies m into a Hash condition. Keys are rendered in sorted order.
func NewHash(m map[string]any) (*Hash, error) {
	h := &Hash{values: make(map[string]any, len(m))}
	for k, v := range m {
		if k == "" {
			return nil, invalidf("hash condition requires non-empty column names")
		}
		if e, ok := asExpression(v); ok {
			v = e
		} else if isList(v) {
			list, ok := toSlice(v)
			if !ok {
				return nil, invalidf("hash condition value for %q must be a list, scalar or Expression", k)
			}
			v = list
		}
		h.columns = append(h.columns, k)
		h.values[k] = v
	}
	sort.Strings(h.columns)
	return h, nil
}

func (h *Hash) Operator() string { return "" }

// Columns returns the column names in render order.
func (h *Hash) Columns() []string { return append([]string(nil), h.columns...) }

// Value returns the value for column.
func (h *Hash) Value(column string) any { return h.values[column] }
