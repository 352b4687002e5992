// Package condition defines the closed set of WHERE/HAVING predicate nodes
// and the parser for the loose array DSL that produces them.
//
// A condition is written either with a typed constructor:
//
//	c, err := condition.NewBetweenColumns(42, "BETWEEN", "min_value", "max_value")
//
// or as a DSL value whose first element names the operator:
//
//	c, err := condition.Parse([]any{"AND",
//	    []any{"=", "status", 1},
//	    []any{"BETWEEN", "age", 18, 65},
//	    map[string]any{"type": []any{"a", "b"}},
//	})
//
// Operands are validated when the node is built. A malformed tree is never
// assembled, so rendering only ever sees well-formed nodes. Nodes are
// immutable after construction and safe to share between goroutines.
package condition

import (
	"iter"
	"reflect"
	"strings"

	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/expr"
)

// Condition is a predicate node. Operator returns the normalized operator
// token the node was built for ("" for Raw and Hash).
type Condition interface {
	Operator() string
}

// factory builds a node for one DSL operator.
type factory func(op string, operands []any) (Condition, error)

// factories is filled in init: the logical and NOT factories recurse into
// Parse, which reads the map.
var factories map[string]factory

func init() {
	factories = map[string]factory{
		"AND":                 logicalFactory,
		"OR":                  logicalFactory,
		"NOT":                 func(op string, o []any) (Condition, error) { return NotFromArrayDefinition(op, o) },
		"BETWEEN":             func(op string, o []any) (Condition, error) { return BetweenFromArrayDefinition(op, o) },
		"NOT BETWEEN":         func(op string, o []any) (Condition, error) { return BetweenFromArrayDefinition(op, o) },
		"BETWEEN COLUMNS":     betweenColumnsAlias("BETWEEN"),
		"NOT BETWEEN COLUMNS": betweenColumnsAlias("NOT BETWEEN"),
		"IN":                  func(op string, o []any) (Condition, error) { return InFromArrayDefinition(op, o) },
		"NOT IN":              func(op string, o []any) (Condition, error) { return InFromArrayDefinition(op, o) },
		"LIKE":                likeFactory,
		"NOT LIKE":            likeFactory,
		"OR LIKE":             likeFactory,
		"OR NOT LIKE":         likeFactory,
		"ILIKE":               likeFactory,
		"NOT ILIKE":           likeFactory,
		"EXISTS":              func(op string, o []any) (Condition, error) { return ExistsFromArrayDefinition(op, o) },
		"NOT EXISTS":          func(op string, o []any) (Condition, error) { return ExistsFromArrayDefinition(op, o) },
	}
}

func logicalFactory(op string, o []any) (Condition, error) { return LogicalFromArrayDefinition(op, o) }
func likeFactory(op string, o []any) (Condition, error)    { return LikeFromArrayDefinition(op, o) }

func betweenColumnsAlias(op string) factory {
	return func(_ string, o []any) (Condition, error) { return BetweenColumnsFromArrayDefinition(op, o) }
}

// Parse converts a DSL value into a Condition:
//
//   - []any{"OP", operands...} dispatches on the operator token
//   - map[string]any becomes a Hash condition
//   - a string or expr.Expression becomes a Raw condition
//   - a Condition is returned unchanged
//   - nil returns nil, nil (an absent condition)
func Parse(v any) (Condition, error) {
	switch c := v.(type) {
	case nil:
		return nil, nil
	case Condition:
		return c, nil
	case map[string]any:
		return NewHash(c)
	case string:
		return &Raw{expr: expr.NewRaw(c)}, nil
	case []any:
		return parseArray(c)
	}
	if e, ok := asExpression(v); ok {
		return &Raw{expr: e}, nil
	}
	return nil, errs.Newf(errs.ErrKindInvalidArgument,
		"condition must be array, map, string, Expression or Condition, got %T", v)
}

func parseArray(a []any) (Condition, error) {
	if len(a) == 0 {
		return nil, nil
	}
	token, ok := a[0].(string)
	if !ok {
		return nil, errs.Newf(errs.ErrKindInvalidArgument,
			"condition array must start with an operator string, got %T", a[0])
	}
	op := normalizeOperator(token)
	if f, ok := factories[op]; ok {
		return f(op, a[1:])
	}
	if simpleOperators[op] {
		return SimpleFromArrayDefinition(op, a[1:])
	}
	if c, ok, err := parseColumnFirst(a); ok {
		return c, err
	}
	return nil, errs.Newf(errs.ErrKindInvalidArgument, "unsupported operator: %q", token)
}

// columnFirstOperators may also be written infix: {"status", "=", 1}.
var columnFirstOperators = map[string]bool{
	"IN": true, "NOT IN": true,
	"LIKE": true, "NOT LIKE": true, "ILIKE": true, "NOT ILIKE": true,
}

// parseColumnFirst handles the infix form {column, operator, value}.
func parseColumnFirst(a []any) (Condition, bool, error) {
	if len(a) != 3 {
		return nil, false, nil
	}
	token, ok := a[1].(string)
	if !ok {
		return nil, false, nil
	}
	op := normalizeOperator(token)
	switch {
	case simpleOperators[op]:
		c, err := SimpleFromArrayDefinition(op, []any{a[0], a[2]})
		return c, true, err
	case columnFirstOperators[op]:
		c, err := factories[op](op, []any{a[0], a[2]})
		return c, true, err
	}
	return nil, false, nil
}

// normalizeOperator upper-cases op and collapses inner whitespace so that
// "not  between" and "NOT BETWEEN" are the same token.
func normalizeOperator(op string) string {
	return strings.ToUpper(strings.Join(strings.Fields(op), " "))
}

// Raw is a trusted SQL fragment used as a whole condition.
type Raw struct {
	expr expr.Expression
}

// NewRaw returns a raw condition over sql with "?" bind markers.
func NewRaw(sql string, args ...any) *Raw {
	return &Raw{expr: expr.NewRaw(sql, args...)}
}

func (r *Raw) Operator() string { return "" }

// Expression returns the wrapped fragment.
func (r *Raw) Expression() expr.Expression { return r.expr }

// --- operand type checks shared by the variants ---

// asExpression reports whether v can be rendered as an expression. A bare
// expr.Query is promoted to a SubQuery.
func asExpression(v any) (expr.Expression, bool) {
	switch e := v.(type) {
	case expr.Expression:
		return e, true
	case expr.Query:
		return expr.SubQuery{Query: e}, true
	}
	return nil, false
}

// isColumn reports whether v is a valid column operand: an identifier
// string or an expression.
func isColumn(v any) bool {
	if _, ok := v.(string); ok {
		return true
	}
	_, ok := asExpression(v)
	return ok
}

// columnOperand normalizes a validated column operand.
func columnOperand(v any) any {
	if e, ok := asExpression(v); ok {
		return e
	}
	return v
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array || k == reflect.Map
}

// toSlice converts any slice, array or row iterator to []any.
func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return append([]any(nil), s...), true
	case iter.Seq[any]:
		var out []any
		for item := range s {
			out = append(out, item)
		}
		return out, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func invalidf(format string, args ...any) error {
	return errs.Newf(errs.ErrKindInvalidArgument, format, args...)
}
