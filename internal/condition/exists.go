package condition

import "github.com/koustreak/dbkit/internal/expr"

// Exists is EXISTS (subquery) or NOT EXISTS (subquery).
type Exists struct {
	operator string
	query    expr.Expression
}

// NewExists returns op (query).
func NewExists(op string, query any) (*Exists, error) {
	return ExistsFromArrayDefinition(op, []any{query})
}

// ExistsFromArrayDefinition builds an Exists from [query]. The operand must
// be an expr.Query or an Expression.
func ExistsFromArrayDefinition(op string, operands []any) (*Exists, error) {
	norm := normalizeOperator(op)
	if norm != "EXISTS" && norm != "NOT EXISTS" {
		return nil, invalidf("unsupported EXISTS operator: %q", op)
	}
	if len(operands) != 1 {
		return nil, invalidf("Operator '%s' requires exactly one operand.", op)
	}
	e, ok := asExpression(operands[0])
	if !ok {
		return nil, invalidf("Subquery for %s operator must be a Query object.", norm)
	}
	return &Exists{operator: norm, query: e}, nil
}

func (e *Exists) Operator() string { return e.operator }

// Query returns the subquery expression.
func (e *Exists) Query() expr.Expression { return e.query }
