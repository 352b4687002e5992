package schema

import (
	"encoding/json"
	"slices"
)

// ForeignKeyRef is one foreign key of a table: the referenced table plus the
// local→foreign column pairs. Name is empty for anonymous keys.
type ForeignKeyRef struct {
	Name           string   `json:"name,omitempty"`
	ForeignTable   string   `json:"foreign_table"`
	Columns        []string `json:"columns"`
	ForeignColumns []string `json:"foreign_columns"`
}

// TableSchema describes one table's metadata. It is built by a Loader and
// then treated as read-only once handed out by the Schema cache.
//
// Every attribute has a chaining setter and a getter; unset attributes read
// as "" or an empty slice.
type TableSchema struct {
	catalogName  string
	schemaName   string
	name         string
	fullName     string
	comment      string
	createSQL    string
	sequenceName string
	serverName   string

	columns     map[string]*Column
	columnNames []string
	primaryKey  []string
	foreignKeys []ForeignKeyRef
}

// NewTableSchema returns an empty TableSchema.
func NewTableSchema() *TableSchema {
	return &TableSchema{columns: make(map[string]*Column)}
}

func (t *TableSchema) CatalogName() string { return t.catalogName }

func (t *TableSchema) SetCatalogName(name string) *TableSchema {
	t.catalogName = name
	return t
}

func (t *TableSchema) SchemaName() string { return t.schemaName }

func (t *TableSchema) SetSchemaName(name string) *TableSchema {
	t.schemaName = name
	return t
}

func (t *TableSchema) Name() string { return t.name }

func (t *TableSchema) SetName(name string) *TableSchema {
	t.name = name
	return t
}

// FullName is the name including the schema when it is not the default one.
func (t *TableSchema) FullName() string { return t.fullName }

func (t *TableSchema) SetFullName(name string) *TableSchema {
	t.fullName = name
	return t
}

func (t *TableSchema) Comment() string { return t.comment }

func (t *TableSchema) SetComment(comment string) *TableSchema {
	t.comment = comment
	return t
}

// CreateSQL is the CREATE TABLE statement, where the dialect reports one.
func (t *TableSchema) CreateSQL() string { return t.createSQL }

func (t *TableSchema) SetCreateSQL(sql string) *TableSchema {
	t.createSQL = sql
	return t
}

func (t *TableSchema) SequenceName() string { return t.sequenceName }

func (t *TableSchema) SetSequenceName(name string) *TableSchema {
	t.sequenceName = name
	return t
}

func (t *TableSchema) ServerName() string { return t.serverName }

func (t *TableSchema) SetServerName(name string) *TableSchema {
	t.serverName = name
	return t
}

// Column returns the named column, or nil.
func (t *TableSchema) Column(name string) *Column { return t.columns[name] }

// SetColumn adds or replaces a column. New columns are appended, so column
// order follows declaration order.
func (t *TableSchema) SetColumn(name string, c *Column) *TableSchema {
	if t.columns == nil {
		t.columns = make(map[string]*Column)
	}
	if _, ok := t.columns[name]; !ok {
		t.columnNames = append(t.columnNames, name)
	}
	t.columns[name] = c
	return t
}

// Columns returns the columns in declaration order.
func (t *TableSchema) Columns() []*Column {
	out := make([]*Column, len(t.columnNames))
	for i, name := range t.columnNames {
		out[i] = t.columns[name]
	}
	return out
}

// ColumnNames returns the column names in declaration order.
func (t *TableSchema) ColumnNames() []string {
	return append([]string{}, t.columnNames...)
}

// PrimaryKey returns the primary key column names in key order.
func (t *TableSchema) PrimaryKey() []string {
	return append([]string{}, t.primaryKey...)
}

// AddPrimaryKey appends names to the primary key, skipping duplicates.
func (t *TableSchema) AddPrimaryKey(names ...string) *TableSchema {
	for _, name := range names {
		if !slices.Contains(t.primaryKey, name) {
			t.primaryKey = append(t.primaryKey, name)
		}
	}
	return t
}

// ForeignKeys returns the table's foreign keys.
func (t *TableSchema) ForeignKeys() []ForeignKeyRef {
	return append([]ForeignKeyRef{}, t.foreignKeys...)
}

// SetForeignKeys replaces all foreign keys.
func (t *TableSchema) SetForeignKeys(fks []ForeignKeyRef) *TableSchema {
	t.foreignKeys = append([]ForeignKeyRef(nil), fks...)
	return t
}

// SetForeignKey adds a foreign key, replacing an existing one with the same
// non-empty name.
func (t *TableSchema) SetForeignKey(name string, ref ForeignKeyRef) *TableSchema {
	ref.Name = name
	if name != "" {
		for i, fk := range t.foreignKeys {
			if fk.Name == name {
				t.foreignKeys[i] = ref
				return t
			}
		}
	}
	t.foreignKeys = append(t.foreignKeys, ref)
	return t
}

// MarshalJSON renders the table for the HTTP API and the CLI.
func (t *TableSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CatalogName  string          `json:"catalog_name,omitempty"`
		SchemaName   string          `json:"schema_name,omitempty"`
		Name         string          `json:"name"`
		FullName     string          `json:"full_name"`
		Comment      string          `json:"comment,omitempty"`
		CreateSQL    string          `json:"create_sql,omitempty"`
		SequenceName string          `json:"sequence_name,omitempty"`
		ServerName   string          `json:"server_name,omitempty"`
		Columns      []*Column       `json:"columns"`
		PrimaryKey   []string        `json:"primary_key"`
		ForeignKeys  []ForeignKeyRef `json:"foreign_keys"`
	}{
		CatalogName:  t.catalogName,
		SchemaName:   t.schemaName,
		Name:         t.name,
		FullName:     t.fullName,
		Comment:      t.comment,
		CreateSQL:    t.createSQL,
		SequenceName: t.sequenceName,
		ServerName:   t.serverName,
		Columns:      t.Columns(),
		PrimaryKey:   t.PrimaryKey(),
		ForeignKeys:  t.ForeignKeys(),
	})
}
