package condition

// Logical joins its children with AND or OR.
type Logical struct {
	operator   string
	conditions []Condition
}

// And returns the conjunction of conds (DSL values or Conditions).
func And(conds ...any) (*Logical, error) {
	return LogicalFromArrayDefinition("AND", conds)
}

// Or returns the disjunction of conds (DSL values or Conditions).
func Or(conds ...any) (*Logical, error) {
	return LogicalFromArrayDefinition("OR", conds)
}

// LogicalFromArrayDefinition parses every operand. nil and empty operands
// are dropped, and a child Logical with the same operator is spliced into
// this node so AND(a, AND(b, c)) is stored as AND(a, b, c).
func LogicalFromArrayDefinition(op string, operands []any) (*Logical, error) {
	norm := normalizeOperator(op)
	if norm != "AND" && norm != "OR" {
		return nil, invalidf("unsupported logical operator: %q", op)
	}

	l := &Logical{operator: norm}
	for _, operand := range operands {
		c, err := Parse(operand)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		if child, ok := c.(*Logical); ok && child.operator == norm {
			l.conditions = append(l.conditions, child.conditions...)
			continue
		}
		l.conditions = append(l.conditions, c)
	}
	return l, nil
}

func (l *Logical) Operator() string { return l.operator }

// Conditions returns the children in order.
func (l *Logical) Conditions() []Condition {
	return append([]Condition(nil), l.conditions...)
}
