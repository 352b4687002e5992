package schema

// Constraint is a named constraint over one or more columns. Primary keys
// and unique constraints are reported as a plain Constraint.
type Constraint struct {
	Name        string   `json:"name"`
	ColumnNames []string `json:"column_names"`
}

// CheckConstraint is a CHECK constraint.
type CheckConstraint struct {
	Constraint
	Expression string `json:"expression"`
}

// DefaultValueConstraint is a named DEFAULT constraint (SQL Server style).
type DefaultValueConstraint struct {
	Constraint
	Value any `json:"value"`
}

// ForeignKeyConstraint is a FOREIGN KEY constraint.
type ForeignKeyConstraint struct {
	Constraint
	ForeignSchemaName  string   `json:"foreign_schema_name,omitempty"`
	ForeignTableName   string   `json:"foreign_table_name"`
	ForeignColumnNames []string `json:"foreign_column_names"`
	OnDelete           string   `json:"on_delete,omitempty"`
	OnUpdate           string   `json:"on_update,omitempty"`
}

// IndexConstraint is an index, possibly backing a primary or unique key.
type IndexConstraint struct {
	Constraint
	IsUnique  bool `json:"is_unique"`
	IsPrimary bool `json:"is_primary"`
}
