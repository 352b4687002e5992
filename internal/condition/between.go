package condition

import (
	"iter"
)

func isBetweenOperator(op string) bool {
	norm := normalizeOperator(op)
	return norm == "BETWEEN" || norm == "NOT BETWEEN"
}

// Between is "column BETWEEN low AND high" (or NOT BETWEEN).
type Between struct {
	column   any
	operator string
	low      any
	high     any
}

// NewBetween returns column op low AND high.
func NewBetween(column any, op string, low, high any) (*Between, error) {
	return BetweenFromArrayDefinition(op, []any{column, low, high})
}

// BetweenFromArrayDefinition builds a Between from [column, low, high].
func BetweenFromArrayDefinition(op string, operands []any) (*Between, error) {
	if !isBetweenOperator(op) {
		return nil, invalidf("unsupported BETWEEN operator: %q", op)
	}
	if len(operands) != 3 || operands[0] == nil || operands[1] == nil || operands[2] == nil {
		return nil, invalidf("Operator '%s' requires three operands.", op)
	}
	if !isColumn(operands[0]) {
		return nil, invalidf("Operator '%s' requires column to be string or Expression.", op)
	}
	return &Between{
		column:   columnOperand(operands[0]),
		operator: normalizeOperator(op),
		low:      valueOperand(operands[1]),
		high:     valueOperand(operands[2]),
	}, nil
}

func (b *Between) Operator() string { return b.operator }
func (b *Between) Column() any      { return b.column }
func (b *Between) Low() any         { return b.low }
func (b *Between) High() any        { return b.high }

// BetweenColumns is "value BETWEEN start_column AND end_column", for
// example:
//
//	NOW() NOT BETWEEN (SELECT time FROM log ORDER BY id ASC LIMIT 1) AND update_time
type BetweenColumns struct {
	value       any
	operator    string
	startColumn any
	endColumn   any
}

// NewBetweenColumns returns value op start AND end.
func NewBetweenColumns(value any, op string, start, end any) (*BetweenColumns, error) {
	return BetweenColumnsFromArrayDefinition(op, []any{value, start, end})
}

// BetweenColumnsFromArrayDefinition builds a BetweenColumns from
// [value, startColumn, endColumn]. The value must be a list, map, integer,
// string, row iterator or Expression; both columns must be identifier
// strings or Expressions. The operator is kept exactly as passed.
func BetweenColumnsFromArrayDefinition(op string, operands []any) (*BetweenColumns, error) {
	if len(operands) != 3 || operands[0] == nil || operands[1] == nil || operands[2] == nil {
		return nil, invalidf("Operator '%s' requires three operands.", op)
	}
	if !isBetweenOperator(op) {
		return nil, invalidf("unsupported BETWEEN operator: %q", op)
	}
	if !isBetweenColumnsValue(operands[0]) {
		return nil, invalidf(
			"Operator '%s' requires value to be array, int, string, iterator or Expression.", op)
	}
	if !isColumn(operands[1]) {
		return nil, invalidf(
			"Operator '%s' requires interval start column to be string or Expression.", op)
	}
	if !isColumn(operands[2]) {
		return nil, invalidf(
			"Operator '%s' requires interval end column to be string or Expression.", op)
	}
	return &BetweenColumns{
		value:       operands[0],
		operator:    op,
		startColumn: operands[1],
		endColumn:   operands[2],
	}, nil
}

func isBetweenColumnsValue(v any) bool {
	switch v.(type) {
	case string, iter.Seq[any]:
		return true
	}
	if isInteger(v) || isList(v) {
		return true
	}
	_, ok := asExpression(v)
	return ok
}

func (b *BetweenColumns) Operator() string { return b.operator }

// Value returns the tested value exactly as passed.
func (b *BetweenColumns) Value() any { return b.value }

// IntervalStartColumn returns the lower bound column.
func (b *BetweenColumns) IntervalStartColumn() any { return b.startColumn }

// IntervalEndColumn returns the upper bound column.
func (b *BetweenColumns) IntervalEndColumn() any { return b.endColumn }

// valueOperand promotes queries to subqueries and leaves other values as is.
func valueOperand(v any) any {
	if e, ok := asExpression(v); ok {
		return e
	}
	return v
}
