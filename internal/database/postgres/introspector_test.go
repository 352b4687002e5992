package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/database/dbtest"
	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/schema"
)

var constraintColumns = []string{
	"conname", "contype", "attname", "nspname", "relname", "fattname", "confupdtype", "confdeltype", "def",
}

func usersDB() *dbtest.DB {
	return dbtest.New(database.DialectPostgres).
		On("FROM information_schema.columns", dbtest.Rows(
			[]string{"column_name", "data_type", "udt_name", "nullable", "default", "len", "precision", "scale", "identity", "comment"},
			[]any{"id", "integer", "int4", false, "nextval('users_id_seq'::regclass)", 0, 32, 0, false, ""},
			[]any{"email", "character varying", "varchar", false, nil, 255, 0, 0, false, "login"},
			[]any{"status", "USER-DEFINED", "user_status", false, "'active'::user_status", 0, 0, 0, false, ""},
			[]any{"score", "numeric", "numeric", true, "0", 0, 10, 2, false, ""},
		)).
		On("pg_enum e", dbtest.Rows(
			[]string{"typname", "enumlabel"},
			[]any{"user_status", "active"},
			[]any{"user_status", "banned"},
		)).
		On("FROM pg_constraint", dbtest.Rows(constraintColumns,
			[]any{"users_email_key", "u", "email", "", "", "", " ", " ", "UNIQUE (email)"},
			[]any{"users_org_fkey", "f", "org_id", "billing", "orgs", "id", "c", "n", "FOREIGN KEY (org_id) REFERENCES billing.orgs(id)"},
			[]any{"users_pkey", "p", "id", "", "", "", " ", " ", "PRIMARY KEY (id)"},
			[]any{"users_score_check", "c", "score", "", "", "", " ", " ", "CHECK ((score >= (0)::numeric))"},
		)).
		On("obj_description", dbtest.Rows([]string{"comment"}, []any{"application users"})).
		On("FROM pg_index", dbtest.Rows(
			[]string{"relname", "indisunique", "indisprimary", "attname"},
			[]any{"users_pkey", true, true, "id"},
			[]any{"users_name_idx", false, false, "last_name"},
			[]any{"users_name_idx", false, false, "first_name"},
		)).
		On("FROM information_schema.tables", dbtest.Rows([]string{"table_name"},
			[]any{"orders"},
			[]any{"users"},
		)).
		On("FROM pg_namespace", dbtest.Rows([]string{"nspname"},
			[]any{"billing"},
			[]any{"public"},
		))
}

func TestIntrospector_LoadTableSchema(t *testing.T) {
	db := usersDB()
	ts, err := NewIntrospector(db).LoadTableSchema(context.Background(), "users")
	require.NoError(t, err)
	require.NotNil(t, ts)

	assert.Equal(t, "users", ts.Name())
	assert.Equal(t, "public", ts.SchemaName())
	assert.Equal(t, "users", ts.FullName())
	assert.Equal(t, "users_id_seq", ts.SequenceName())
	assert.Equal(t, "application users", ts.Comment())
	assert.Equal(t, []string{"id", "email", "status", "score"}, ts.ColumnNames())
	assert.Equal(t, []string{"id"}, ts.PrimaryKey())

	id := ts.Column("id")
	assert.True(t, id.IsPrimaryKey)
	assert.True(t, id.AutoIncrement)
	assert.False(t, id.AllowNull)
	assert.Equal(t, "integer", id.Type)
	assert.Equal(t, 32, id.Precision)
	assert.Nil(t, id.DefaultValue)

	email := ts.Column("email")
	assert.True(t, email.Unique)
	assert.Equal(t, "varchar", email.DBType)
	assert.Equal(t, "string", email.Type)
	assert.Equal(t, 255, email.Size)
	assert.Equal(t, "login", email.Comment)

	status := ts.Column("status")
	assert.Equal(t, []string{"active", "banned"}, status.EnumValues)
	assert.Equal(t, "active", status.DefaultValue)

	score := ts.Column("score")
	assert.True(t, score.AllowNull)
	assert.Equal(t, "decimal", score.Type)
	assert.Equal(t, 10, score.Precision)
	assert.Equal(t, 2, score.Scale)
	assert.Equal(t, int64(0), score.DefaultValue)

	assert.Equal(t, []schema.ForeignKeyRef{{
		Name:           "users_org_fkey",
		ForeignTable:   "billing.orgs",
		Columns:        []string{"org_id"},
		ForeignColumns: []string{"id"},
	}}, ts.ForeignKeys())

	calls := db.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, []any{"public", "users"}, calls[0].Args)
}

func TestIntrospector_LoadTableSchema_Qualified(t *testing.T) {
	db := usersDB()
	ts, err := NewIntrospector(db).LoadTableSchema(context.Background(), `"billing"."invoices"`)
	require.NoError(t, err)
	require.NotNil(t, ts)

	assert.Equal(t, "billing", ts.SchemaName())
	assert.Equal(t, "invoices", ts.Name())
	assert.Equal(t, "billing.invoices", ts.FullName())
	assert.Equal(t, []any{"billing", "invoices"}, db.Calls()[0].Args)
}

func TestIntrospector_LoadTableSchema_Unknown(t *testing.T) {
	db := dbtest.New(database.DialectPostgres).
		On("FROM information_schema.columns", dbtest.Rows([]string{"column_name"}))

	ts, err := NewIntrospector(db).LoadTableSchema(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, ts)
	assert.Zero(t, db.CallCount("FROM pg_constraint"))
}

func TestIntrospector_LoadTableSchema_Error(t *testing.T) {
	db := dbtest.New(database.DialectPostgres).
		On("FROM information_schema.columns", dbtest.Fail(errs.New(errs.ErrKindPermissionDenied, "permission denied")))

	_, err := NewIntrospector(db).LoadTableSchema(context.Background(), "users")
	require.Error(t, err)
	assert.True(t, errs.IsPermissionDenied(err))
	assert.Contains(t, err.Error(), "inspect table users")
}

func TestIntrospector_Constraints(t *testing.T) {
	ctx := context.Background()
	p := NewIntrospector(usersDB())

	pk, err := p.LoadTablePrimaryKey(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, &schema.Constraint{Name: "users_pkey", ColumnNames: []string{"id"}}, pk)

	uniques, err := p.LoadTableUniques(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []*schema.Constraint{{Name: "users_email_key", ColumnNames: []string{"email"}}}, uniques)

	fks, err := p.LoadTableForeignKeys(ctx, "users")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, "billing", fks[0].ForeignSchemaName)
	assert.Equal(t, "orgs", fks[0].ForeignTableName)
	assert.Equal(t, []string{"id"}, fks[0].ForeignColumnNames)
	assert.Equal(t, "CASCADE", fks[0].OnUpdate)
	assert.Equal(t, "SET NULL", fks[0].OnDelete)

	checks, err := p.LoadTableChecks(ctx, "users")
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, "users_score_check", checks[0].Name)
	assert.Equal(t, "((score >= (0)::numeric))", checks[0].Expression)

	indexes, err := p.LoadTableIndexes(ctx, "users")
	require.NoError(t, err)
	require.Len(t, indexes, 2)
	assert.Equal(t, &schema.IndexConstraint{
		Constraint: schema.Constraint{Name: "users_pkey", ColumnNames: []string{"id"}},
		IsUnique:   true,
		IsPrimary:  true,
	}, indexes[0])
	assert.Equal(t, []string{"last_name", "first_name"}, indexes[1].ColumnNames)
	assert.False(t, indexes[1].IsUnique)
}

func TestIntrospector_NoPrimaryKey(t *testing.T) {
	db := dbtest.New(database.DialectPostgres).
		On("FROM pg_constraint", dbtest.Rows(constraintColumns))

	pk, err := NewIntrospector(db).LoadTablePrimaryKey(context.Background(), "logs")
	require.NoError(t, err)
	assert.Nil(t, pk)
}

func TestIntrospector_Names(t *testing.T) {
	ctx := context.Background()
	db := usersDB()
	p := NewIntrospector(db)

	tables, err := p.FindTableNames(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)

	_, err = p.FindViewNames(ctx, "billing")
	require.NoError(t, err)

	schemas, err := p.FindSchemaNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "public"}, schemas)

	calls := db.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []any{"public", "BASE TABLE"}, calls[0].Args)
	assert.Equal(t, []any{"billing", "VIEW"}, calls[1].Args)
}

func TestIntrospector_ResolveTableName(t *testing.T) {
	tests := []struct {
		in                          string
		catalog, schema, name, full string
	}{
		{"users", "", "public", "users", "users"},
		{"public.users", "", "public", "users", "users"},
		{"audit.events", "", "audit", "events", "audit.events"},
		{`"audit"."events"`, "", "audit", "events", "audit.events"},
		{"db.audit.events", "db", "audit", "events", "audit.events"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ts, err := NewIntrospector(nil).ResolveTableName(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.catalog, ts.CatalogName())
			assert.Equal(t, tt.schema, ts.SchemaName())
			assert.Equal(t, tt.name, ts.Name())
			assert.Equal(t, tt.full, ts.FullName())
		})
	}
}

func TestAbstractType(t *testing.T) {
	assert.Equal(t, "integer", abstractType("int4"))
	assert.Equal(t, "timestamp", abstractType("timestamptz"))
	assert.Equal(t, "integer[]", abstractType("_int4"))
	assert.Equal(t, "string", abstractType("user_status"))
}

func TestParseDefault(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"'hello'::character varying", "hello"},
		{"'it''s'::text", "it's"},
		{"NULL::character varying", nil},
		{"true", true},
		{"false", false},
		{"42", int64(42)},
		{"'-1'::integer", "-1"},
		{"(-1)", int64(-1)},
		{"3.5", 3.5},
		{"now()", "now()"},
		{"CURRENT_TIMESTAMP", "CURRENT_TIMESTAMP"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDefault(tt.in))
		})
	}
}

func TestReferentialAction(t *testing.T) {
	assert.Equal(t, "RESTRICT", referentialAction("r"))
	assert.Equal(t, "NO ACTION", referentialAction("a"))
	assert.Equal(t, "SET DEFAULT", referentialAction("d"))
	assert.Equal(t, "", referentialAction(" "))
}
