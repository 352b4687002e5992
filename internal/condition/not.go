package condition

// Not inverts a single operand.
type Not struct {
	operand any
	parsed  Condition
}

// NewNot wraps operand, which must be a DSL array, Condition, Expression,
// raw SQL string or nil.
func NewNot(operand any) (*Not, error) {
	return NotFromArrayDefinition("NOT", []any{operand})
}

// NotFromArrayDefinition builds a Not from exactly one operand. A nested
// DSL array is parsed immediately so a malformed subtree fails here rather
// than when the statement is rendered.
func NotFromArrayDefinition(op string, operands []any) (*Not, error) {
	if len(operands) != 1 {
		return nil, invalidf("Operator '%s' requires exactly one operand.", op)
	}
	operand := operands[0]
	if !isNotOperand(operand) {
		return nil, invalidf(
			"Operator '%s' requires condition to be array, string, null or Expression.", op)
	}
	parsed, err := Parse(operand)
	if err != nil {
		return nil, err
	}
	return &Not{operand: operand, parsed: parsed}, nil
}

func isNotOperand(v any) bool {
	switch v.(type) {
	case nil, string, []any, map[string]any, Condition:
		return true
	}
	_, ok := asExpression(v)
	return ok
}

func (n *Not) Operator() string { return "NOT" }

// Condition returns the operand exactly as it was passed.
func (n *Not) Condition() any { return n.operand }

// Inner returns the parsed operand, or nil when the operand was nil or an
// empty array.
func (n *Not) Inner() Condition { return n.parsed }
