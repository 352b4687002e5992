package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/schema"
)

var shopDDL = []string{
	`CREATE TABLE customers (
		id    INTEGER PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		name  TEXT DEFAULT 'anon'
	)`,
	`CREATE TABLE orders (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customers ON DELETE CASCADE,
		total       DECIMAL(10,2) NOT NULL DEFAULT 0,
		status      VARCHAR(16) DEFAULT 'new',
		created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT total_positive CHECK (total >= 0),
		CHECK (status IN ('new', 'paid'))
	)`,
	`CREATE INDEX idx_orders_customer ON orders (customer_id, created_at)`,
	`CREATE TABLE order_items (
		order_id INTEGER NOT NULL,
		line     INTEGER NOT NULL,
		sku      TEXT,
		PRIMARY KEY (order_id, line),
		FOREIGN KEY (order_id) REFERENCES orders (id) ON UPDATE RESTRICT
	)`,
	`CREATE VIEW big_orders AS SELECT * FROM orders WHERE total > 100`,
}

// openShop returns a Driver over a private in-memory database holding the
// shop tables.
func openShop(t *testing.T) *Driver {
	t.Helper()
	db, err := sql.Open(driverName, memoryDSN)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	for _, stmt := range shopDDL {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	d := Wrap(db)
	t.Cleanup(d.Close)
	return d
}

func TestIntrospector_Names(t *testing.T) {
	ctx := context.Background()
	in := NewIntrospector(openShop(t))

	tables, err := in.FindTableNames(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "order_items", "orders"}, tables)

	views, err := in.FindViewNames(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"big_orders"}, views)
}

func TestIntrospector_LoadTableSchema(t *testing.T) {
	ts, err := NewIntrospector(openShop(t)).LoadTableSchema(context.Background(), "orders")
	require.NoError(t, err)
	require.NotNil(t, ts)

	assert.Equal(t, "orders", ts.Name())
	assert.Equal(t, "orders", ts.FullName())
	assert.Empty(t, ts.SchemaName())
	assert.Contains(t, ts.CreateSQL(), "CREATE TABLE orders")
	assert.Equal(t, []string{"id", "customer_id", "total", "status", "created_at"}, ts.ColumnNames())
	assert.Equal(t, []string{"id"}, ts.PrimaryKey())

	id := ts.Column("id")
	assert.True(t, id.IsPrimaryKey)
	assert.True(t, id.AutoIncrement)
	assert.Equal(t, "integer", id.Type)

	total := ts.Column("total")
	assert.Equal(t, "decimal(10,2)", total.DBType)
	assert.Equal(t, "decimal", total.Type)
	assert.Equal(t, 10, total.Precision)
	assert.Equal(t, 2, total.Scale)
	assert.False(t, total.AllowNull)
	assert.Equal(t, int64(0), total.DefaultValue)

	status := ts.Column("status")
	assert.Equal(t, "string", status.Type)
	assert.Equal(t, 16, status.Size)
	assert.True(t, status.AllowNull)
	assert.Equal(t, "new", status.DefaultValue)

	created := ts.Column("created_at")
	assert.Equal(t, "timestamp", created.Type)
	assert.Equal(t, "CURRENT_TIMESTAMP", created.DefaultValue)

	assert.Equal(t, []schema.ForeignKeyRef{{
		ForeignTable:   "customers",
		Columns:        []string{"customer_id"},
		ForeignColumns: []string{"id"},
	}}, ts.ForeignKeys())
}

func TestIntrospector_LoadTableSchema_UniqueColumn(t *testing.T) {
	ts, err := NewIntrospector(openShop(t)).LoadTableSchema(context.Background(), "main.customers")
	require.NoError(t, err)
	require.NotNil(t, ts)

	assert.True(t, ts.Column("email").Unique)
	assert.False(t, ts.Column("id").Unique)
	assert.Equal(t, "anon", ts.Column("name").DefaultValue)
	assert.Equal(t, "customers", ts.FullName())
}

func TestIntrospector_LoadTableSchema_Unknown(t *testing.T) {
	ts, err := NewIntrospector(openShop(t)).LoadTableSchema(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestIntrospector_Constraints(t *testing.T) {
	ctx := context.Background()
	in := NewIntrospector(openShop(t))

	pk, err := in.LoadTablePrimaryKey(ctx, "order_items")
	require.NoError(t, err)
	assert.Equal(t, &schema.Constraint{ColumnNames: []string{"order_id", "line"}}, pk)

	fks, err := in.LoadTableForeignKeys(ctx, "order_items")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, "orders", fks[0].ForeignTableName)
	assert.Equal(t, []string{"order_id"}, fks[0].ColumnNames)
	assert.Equal(t, []string{"id"}, fks[0].ForeignColumnNames)
	assert.Equal(t, "RESTRICT", fks[0].OnUpdate)
	assert.Equal(t, "NO ACTION", fks[0].OnDelete)

	fks, err = in.LoadTableForeignKeys(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, "CASCADE", fks[0].OnDelete)

	checks, err := in.LoadTableChecks(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, checks, 2)
	assert.Equal(t, "total_positive", checks[0].Name)
	assert.Equal(t, "total >= 0", checks[0].Expression)
	assert.Equal(t, "", checks[1].Name)
	assert.Equal(t, "status IN ('new', 'paid')", checks[1].Expression)

	uniques, err := in.LoadTableUniques(ctx, "customers")
	require.NoError(t, err)
	require.Len(t, uniques, 1)
	assert.Equal(t, []string{"email"}, uniques[0].ColumnNames)
}

func TestIntrospector_Indexes(t *testing.T) {
	ctx := context.Background()
	in := NewIntrospector(openShop(t))

	indexes, err := in.LoadTableIndexes(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, indexes, 2)
	assert.Equal(t, &schema.IndexConstraint{
		Constraint: schema.Constraint{Name: "idx_orders_customer", ColumnNames: []string{"customer_id", "created_at"}},
	}, indexes[0])
	assert.Equal(t, &schema.IndexConstraint{
		Constraint: schema.Constraint{ColumnNames: []string{"id"}},
		IsUnique:   true,
		IsPrimary:  true,
	}, indexes[1])

	indexes, err = in.LoadTableIndexes(ctx, "order_items")
	require.NoError(t, err)
	require.Len(t, indexes, 1)
	assert.True(t, indexes[0].IsPrimary)
	assert.Equal(t, []string{"order_id", "line"}, indexes[0].ColumnNames)
}

func TestIntrospector_WithSchemaCache(t *testing.T) {
	ctx := context.Background()
	s := schema.New(NewIntrospector(openShop(t)))

	ts, err := s.TableSchema(ctx, "orders", false)
	require.NoError(t, err)
	require.NotNil(t, ts)
	again, err := s.TableSchema(ctx, "orders", false)
	require.NoError(t, err)
	assert.Same(t, ts, again)

	names, err := s.TableNames(ctx, "", false)
	require.NoError(t, err)
	assert.Len(t, names, 3)

	_, err = s.SchemaNames(ctx, false)
	require.Error(t, err)
	assert.True(t, errs.IsNotSupported(err))
	assert.Equal(t, "*sqlite.Introspector does not support fetching all schema names.", err.(*errs.Error).Message)

	_, err = s.TableDefaultValues(ctx, "orders", false)
	assert.True(t, errs.IsNotSupported(err))
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	d, err := New(ctx, &database.Config{Driver: database.DriverSQLite})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, database.DialectSQLite, d.Dialect())

	row, err := d.QueryRow(ctx, "SELECT 1 + 1")
	require.NoError(t, err)
	var n int
	require.NoError(t, row.Scan(&n))
	assert.Equal(t, 2, n)

	row, err = d.QueryRow(ctx, "SELECT 1 WHERE 0")
	require.NoError(t, err)
	assert.True(t, errs.IsNotFound(row.Scan(&n)))

	_, err = d.Query(ctx, "SELECT * FROM nowhere")
	assert.True(t, errs.IsQueryFailed(err))
}

func TestParseDBType(t *testing.T) {
	tests := []struct {
		dbType                 string
		typ                    string
		size, precision, scale int
		unsigned               bool
	}{
		{"integer", "integer", 0, 0, 0, false},
		{"varchar(255)", "string", 255, 0, 0, false},
		{"decimal(10,2)", "decimal", 0, 10, 2, false},
		{"numeric(8)", "decimal", 8, 8, 0, false},
		{"int unsigned", "integer", 0, 0, 0, true},
		{"double precision", "double", 0, 0, 0, false},
		{"", "string", 0, 0, 0, false},
		{"geometry", "string", 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			col := schema.Column{DBType: tt.dbType}
			parseDBType(&col)
			assert.Equal(t, tt.typ, col.Type)
			assert.Equal(t, tt.size, col.Size)
			assert.Equal(t, tt.precision, col.Precision)
			assert.Equal(t, tt.scale, col.Scale)
			assert.Equal(t, tt.unsigned, col.Unsigned)
		})
	}
}

func TestParseChecks(t *testing.T) {
	checks := parseChecks(`CREATE TABLE t (
		a INT CHECK (a > 0),
		b TEXT CONSTRAINT "b_known" CHECK (b IN ('x)', "y")),
		CONSTRAINT ab CHECK ((a + length(b)) < 10)
	)`)
	require.Len(t, checks, 3)
	assert.Equal(t, "", checks[0].Name)
	assert.Equal(t, "a > 0", checks[0].Expression)
	assert.Equal(t, "b_known", checks[1].Name)
	assert.Equal(t, `b IN ('x)', "y")`, checks[1].Expression)
	assert.Equal(t, "ab", checks[2].Name)
	assert.Equal(t, "(a + length(b)) < 10", checks[2].Expression)

	assert.Empty(t, parseChecks("CREATE TABLE t (a INT)"))
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil, "x"))
	assert.Equal(t, errs.ErrKindPermissionDenied, classifyCode(23))
	assert.Equal(t, errs.ErrKindTimeout, classifyCode(5|(1<<8)))
	assert.Equal(t, errs.ErrKindConnectionFailed, classifyCode(14))
	assert.Equal(t, errs.ErrKindQueryFailed, classifyCode(1))
	assert.True(t, errs.IsNotFound(mapError(sql.ErrNoRows, "x")))
	assert.True(t, errs.IsTimeout(mapError(context.Canceled, "x")))
}

func TestBuildDSN(t *testing.T) {
	assert.Equal(t, "file:x.db?mode=ro", buildDSN(&database.Config{DSN: "file:x.db?mode=ro"}))
	assert.Equal(t, "/tmp/app.db", buildDSN(&database.Config{Database: "/tmp/app.db"}))
	assert.Equal(t, ":memory:", buildDSN(&database.Config{}))
	assert.True(t, isMemory("file::memory:?cache=shared"))
	assert.False(t, isMemory("/tmp/app.db"))
}
