package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSchema_Accessors(t *testing.T) {
	tests := []struct {
		name string
		set  func(*TableSchema, string) *TableSchema
		get  func(*TableSchema) string
	}{
		{"catalog name", (*TableSchema).SetCatalogName, (*TableSchema).CatalogName},
		{"schema name", (*TableSchema).SetSchemaName, (*TableSchema).SchemaName},
		{"name", (*TableSchema).SetName, (*TableSchema).Name},
		{"full name", (*TableSchema).SetFullName, (*TableSchema).FullName},
		{"comment", (*TableSchema).SetComment, (*TableSchema).Comment},
		{"create sql", (*TableSchema).SetCreateSQL, (*TableSchema).CreateSQL},
		{"sequence name", (*TableSchema).SetSequenceName, (*TableSchema).SequenceName},
		{"server name", (*TableSchema).SetServerName, (*TableSchema).ServerName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := NewTableSchema()
			assert.Empty(t, tt.get(ts))

			assert.Same(t, ts, tt.set(ts, "test"))
			assert.Equal(t, "test", tt.get(ts))
		})
	}
}

func TestTableSchema_ZeroValue(t *testing.T) {
	var ts TableSchema

	assert.Nil(t, ts.Column("id"))
	assert.Equal(t, []*Column{}, ts.Columns())
	assert.Equal(t, []string{}, ts.ColumnNames())
	assert.Equal(t, []string{}, ts.PrimaryKey())
	assert.Equal(t, []ForeignKeyRef{}, ts.ForeignKeys())

	ts.SetColumn("id", NewColumn("id"))
	assert.Equal(t, []string{"id"}, ts.ColumnNames())
}

func TestTableSchema_Columns(t *testing.T) {
	id := NewColumn("id")
	ts := NewTableSchema().
		SetColumn("id", id).
		SetColumn("name", NewColumn("name")).
		SetColumn("email", NewColumn("email"))

	assert.Same(t, id, ts.Column("id"))
	assert.Equal(t, []string{"id", "name", "email"}, ts.ColumnNames())

	replacement := NewColumn("name")
	ts.SetColumn("name", replacement)
	assert.Equal(t, []string{"id", "name", "email"}, ts.ColumnNames())
	assert.Same(t, replacement, ts.Columns()[1])
}

func TestTableSchema_PrimaryKey(t *testing.T) {
	ts := NewTableSchema().AddPrimaryKey("tenant_id", "id").AddPrimaryKey("id")
	assert.Equal(t, []string{"tenant_id", "id"}, ts.PrimaryKey())

	pk := ts.PrimaryKey()
	pk[0] = "mutated"
	assert.Equal(t, "tenant_id", ts.PrimaryKey()[0])
}

func TestTableSchema_ForeignKeys(t *testing.T) {
	ts := NewTableSchema()
	ts.SetForeignKey("fk_order_user", ForeignKeyRef{
		ForeignTable: "user", Columns: []string{"user_id"}, ForeignColumns: []string{"id"},
	})
	ts.SetForeignKey("", ForeignKeyRef{ForeignTable: "item", Columns: []string{"item_id"}, ForeignColumns: []string{"id"}})
	ts.SetForeignKey("fk_order_user", ForeignKeyRef{
		ForeignTable: "customer", Columns: []string{"user_id"}, ForeignColumns: []string{"id"},
	})

	fks := ts.ForeignKeys()
	require.Len(t, fks, 2)
	assert.Equal(t, "fk_order_user", fks[0].Name)
	assert.Equal(t, "customer", fks[0].ForeignTable)
	assert.Equal(t, "", fks[1].Name)

	ts.SetForeignKeys(nil)
	assert.Empty(t, ts.ForeignKeys())
}

func TestTableSchema_MarshalJSON(t *testing.T) {
	ts := NewTableSchema().
		SetName("users").
		SetFullName("public.users").
		SetSchemaName("public").
		SetColumn("id", &Column{Name: "id", DBType: "int4", Type: "integer", IsPrimaryKey: true}).
		AddPrimaryKey("id")

	data, err := json.Marshal(ts)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "users", got["name"])
	assert.Equal(t, []any{"id"}, got["primary_key"])
	assert.Len(t, got["columns"], 1)
	assert.NotContains(t, got, "create_sql")
}
