package schema

// Column describes a single table column as reported by the database.
type Column struct {
	Name          string   `json:"name"`
	DBType        string   `json:"db_type"` // native type: int4, varchar(255), timestamptz, …
	Type          string   `json:"type"`    // abstract type: integer, string, boolean, …
	Size          int      `json:"size,omitempty"`
	Precision     int      `json:"precision,omitempty"`
	Scale         int      `json:"scale,omitempty"`
	AllowNull     bool     `json:"allow_null"`
	IsPrimaryKey  bool     `json:"is_primary_key"`
	AutoIncrement bool     `json:"auto_increment"`
	Unique        bool     `json:"unique"`
	Unsigned      bool     `json:"unsigned,omitempty"`
	DefaultValue  any      `json:"default_value,omitempty"`
	Comment       string   `json:"comment,omitempty"`
	EnumValues    []string `json:"enum_values,omitempty"`
}

// NewColumn returns a nullable column with the given name.
func NewColumn(name string) *Column {
	return &Column{Name: name, AllowNull: true}
}
