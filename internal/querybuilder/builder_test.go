package querybuilder

import (
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dbkit/internal/condition"
	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/expr"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		dialect database.Dialect
		cond    any
		sql     string
		args    []any
	}{
		{
			name:    "comparison",
			dialect: database.DialectPostgres,
			cond:    []any{">=", "age", 18},
			sql:     `"age" >= $1`,
			args:    []any{18},
		},
		{
			name:    "comparison mysql",
			dialect: database.DialectMySQL,
			cond:    []any{"=", "users.id", 7},
			sql:     "`users`.`id` = ?",
			args:    []any{7},
		},
		{
			name:    "null equality",
			dialect: database.DialectPostgres,
			cond:    []any{"=", "deleted_at", nil},
			sql:     `"deleted_at" IS NULL`,
			args:    []any{},
		},
		{
			name:    "between",
			dialect: database.DialectPostgres,
			cond:    []any{"not between", "age", 18, 65},
			sql:     `"age" NOT BETWEEN $1 AND $2`,
			args:    []any{18, 65},
		},
		{
			name:    "between columns",
			dialect: database.DialectPostgres,
			cond:    []any{"BETWEEN COLUMNS", 42, "min_value", "max_value"},
			sql:     `$1 BETWEEN "min_value" AND "max_value"`,
			args:    []any{42},
		},
		{
			name:    "between columns with expressions",
			dialect: database.DialectMySQL,
			cond:    []any{"NOT BETWEEN COLUMNS", expr.NewRaw("NOW()"), expr.NewRaw("created_at"), "update_time"},
			sql:     "NOW() NOT BETWEEN created_at AND `update_time`",
			args:    []any{},
		},
		{
			name:    "between columns list value",
			dialect: database.DialectPostgres,
			cond:    []any{"BETWEEN COLUMNS", []int{1, 2}, "a", "b"},
			sql:     `($1, $2) BETWEEN "a" AND "b"`,
			args:    []any{1, 2},
		},
		{
			name:    "and of comparisons",
			dialect: database.DialectPostgres,
			cond:    []any{"AND", []any{"=", "a", 1}, []any{"=", "b", 2}},
			sql:     `"a" = $1 AND "b" = $2`,
			args:    []any{1, 2},
		},
		{
			name:    "nested or is parenthesized",
			dialect: database.DialectPostgres,
			cond: []any{"AND",
				[]any{"=", "a", 1},
				[]any{"OR", []any{"=", "b", 2}, []any{"=", "c", 3}},
			},
			sql:  `"a" = $1 AND ("b" = $2 OR "c" = $3)`,
			args: []any{1, 2, 3},
		},
		{
			name:    "single child logical is unwrapped",
			dialect: database.DialectPostgres,
			cond:    []any{"OR", []any{"AND", []any{"=", "a", 1}, []any{"=", "b", 2}}},
			sql:     `"a" = $1 AND "b" = $2`,
			args:    []any{1, 2},
		},
		{
			name:    "not",
			dialect: database.DialectPostgres,
			cond:    []any{"NOT", []any{"status", "=", 1}},
			sql:     `NOT ("status" = $1)`,
			args:    []any{1},
		},
		{
			name:    "not nil renders empty",
			dialect: database.DialectPostgres,
			cond:    []any{"NOT", nil},
			sql:     "",
			args:    []any{},
		},
		{
			name:    "not nil skipped inside and",
			dialect: database.DialectPostgres,
			cond:    []any{"AND", []any{"NOT", nil}, []any{"=", "a", 1}},
			sql:     `"a" = $1`,
			args:    []any{1},
		},
		{
			name:    "hash",
			dialect: database.DialectPostgres,
			cond:    map[string]any{"status": 1, "type": []any{"a", "b"}, "deleted_at": nil},
			sql:     `"deleted_at" IS NULL AND "status" = $1 AND "type" IN ($2, $3)`,
			args:    []any{1, "a", "b"},
		},
		{
			name:    "in",
			dialect: database.DialectMySQL,
			cond:    []any{"IN", "id", []int{1, 2, 3}},
			sql:     "`id` IN (?, ?, ?)",
			args:    []any{1, 2, 3},
		},
		{
			name:    "in single value",
			dialect: database.DialectPostgres,
			cond:    []any{"NOT IN", "id", []int{5}},
			sql:     `"id" <> $1`,
			args:    []any{5},
		},
		{
			name:    "in empty",
			dialect: database.DialectPostgres,
			cond:    []any{"IN", "id", []int{}},
			sql:     "0=1",
			args:    []any{},
		},
		{
			name:    "not in empty",
			dialect: database.DialectPostgres,
			cond:    []any{"NOT IN", "id", []int{}},
			sql:     "",
			args:    []any{},
		},
		{
			name:    "in with null",
			dialect: database.DialectPostgres,
			cond:    []any{"IN", "parent_id", []any{1, nil, 2}},
			sql:     `"parent_id" IN ($1, $2) OR "parent_id" IS NULL`,
			args:    []any{1, 2},
		},
		{
			name:    "not in with null",
			dialect: database.DialectPostgres,
			cond:    []any{"NOT IN", "parent_id", []any{1, nil, 2}},
			sql:     `"parent_id" NOT IN ($1, $2) AND "parent_id" IS NOT NULL`,
			args:    []any{1, 2},
		},
		{
			name:    "composite in",
			dialect: database.DialectPostgres,
			cond: []any{"IN", []string{"a", "b"}, []any{
				[]any{1, 2},
				map[string]any{"b": 4, "a": 3},
			}},
			sql:  `("a", "b") IN (($1, $2), ($3, $4))`,
			args: []any{1, 2, 3, 4},
		},
		{
			name:    "like escapes",
			dialect: database.DialectPostgres,
			cond:    []any{"LIKE", "name", "50%_off"},
			sql:     `"name" LIKE $1`,
			args:    []any{`%50\%\_off%`},
		},
		{
			name:    "or not like",
			dialect: database.DialectMySQL,
			cond:    []any{"OR NOT LIKE", "name", []string{"a", "b"}},
			sql:     "`name` NOT LIKE ? OR `name` NOT LIKE ?",
			args:    []any{"%a%", "%b%"},
		},
		{
			name:    "like sqlite escape clause",
			dialect: database.DialectSQLite,
			cond:    []any{"LIKE", "name", "x"},
			sql:     `"name" LIKE ? ESCAPE '\'`,
			args:    []any{"%x%"},
		},
		{
			name:    "ilike postgres",
			dialect: database.DialectPostgres,
			cond:    []any{"ILIKE", "name", "x"},
			sql:     `"name" ILIKE $1`,
			args:    []any{"%x%"},
		},
		{
			name:    "ilike mysql",
			dialect: database.DialectMySQL,
			cond:    []any{"NOT ILIKE", "name", "x"},
			sql:     "`name` NOT LIKE ?",
			args:    []any{"%x%"},
		},
		{
			name:    "raw with bindings",
			dialect: database.DialectPostgres,
			cond:    []any{"AND", []any{"=", "a", 1}, expr.NewRaw("b > ? AND c ?? d", 2)},
			sql:     `"a" = $1 AND (b > $2 AND c ? d)`,
			args:    []any{1, 2},
		},
		{
			name:    "raw string",
			dialect: database.DialectPostgres,
			cond:    "a > b",
			sql:     "a > b",
			args:    []any{},
		},
		{
			name:    "nil",
			dialect: database.DialectPostgres,
			cond:    nil,
			sql:     "",
			args:    []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := New(tt.dialect).Build(tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, frag.SQL)
			assert.Equal(t, tt.args, frag.Args())
		})
	}
}

func TestBuild_SubqueryNumbering(t *testing.T) {
	sub := Select("orders", database.DialectPostgres).
		Columns("user_id").
		Where([]any{">", "total", 100})

	cond := []any{"AND",
		[]any{"=", "active", true},
		[]any{"IN", "id", sub},
		[]any{"EXISTS", Select("bans", database.DialectPostgres).Where(map[string]any{"reason": "spam"})},
		expr.NewRaw("created_at > ?", "2024-01-01"),
	}

	frag, err := New(database.DialectPostgres).Build(cond)
	require.NoError(t, err)

	assert.Equal(t,
		`"active" = $1 AND ("id" IN (SELECT "user_id" FROM "orders" WHERE "total" > $2))`+
			` AND (EXISTS (SELECT * FROM "bans" WHERE "reason" = $3)) AND (created_at > $4)`,
		frag.SQL)
	assert.Equal(t, []any{true, 100, "spam", "2024-01-01"}, frag.Args())

	for i, b := range frag.Bindings {
		assert.Equal(t, database.DialectPostgres.Placeholder(i+1), b.Placeholder)
	}
}

func TestBuild_Iterator(t *testing.T) {
	var rows iter.Seq[any] = slices.Values([]any{1, 2})

	frag, err := New(database.DialectSQLite).Build([]any{"BETWEEN COLUMNS", rows, "lo", "hi"})
	require.NoError(t, err)
	assert.Equal(t, `(?, ?) BETWEEN "lo" AND "hi"`, frag.SQL)
	assert.Equal(t, []any{1, 2}, frag.Args())
}

func TestBuild_CompositeIteratorRows(t *testing.T) {
	rows := []any{slices.Values([]any{1, 2}), slices.Values([]any{3, 4})}

	frag, err := New(database.DialectPostgres).Build([]any{"IN", []string{"a", "b"}, rows})
	require.NoError(t, err)
	assert.Equal(t, `("a", "b") IN (($1, $2), ($3, $4))`, frag.SQL)
	assert.Equal(t, []any{1, 2, 3, 4}, frag.Args())
}

func TestBuild_HashGrouping(t *testing.T) {
	tests := []struct {
		name string
		cond any
		sql  string
	}{
		{
			name: "list with null is grouped",
			cond: []any{"AND", []any{"=", "a", 1}, map[string]any{"c": []any{2, nil}}},
			sql:  `"a" = $1 AND ("c" = $2 OR "c" IS NULL)`,
		},
		{
			name: "list without null",
			cond: []any{"AND", []any{"=", "a", 1}, map[string]any{"c": []any{2, 3}}},
			sql:  `"a" = $1 AND "c" IN ($2, $3)`,
		},
		{
			name: "only nulls",
			cond: []any{"OR", []any{"=", "a", 1}, map[string]any{"c": []any{nil}}},
			sql:  `"a" = $1 OR "c" IS NULL`,
		},
		{
			name: "not in with null is grouped",
			cond: []any{"OR", []any{"=", "a", 1}, []any{"NOT IN", "c", []any{2, nil}}},
			sql:  `"a" = $1 OR ("c" <> $2 AND "c" IS NOT NULL)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := New(database.DialectPostgres).Build(tt.cond)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, frag.SQL)
		})
	}
}

func TestBuild_Condition(t *testing.T) {
	c, err := condition.NewBetweenColumns(expr.NewRaw("NOW()"), "NOT BETWEEN",
		Select("log", database.DialectPostgres).Columns("time").OrderBy("id", Asc).Limit(1),
		"update_time")
	require.NoError(t, err)

	frag, err := New(database.DialectPostgres).Build(c)
	require.NoError(t, err)
	assert.Equal(t,
		`NOW() NOT BETWEEN (SELECT "time" FROM "log" ORDER BY "id" ASC LIMIT $1) AND "update_time"`,
		frag.SQL)
	assert.Equal(t, []any{1}, frag.Args())
}

func TestBuild_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cond any
	}{
		{"unknown operator", []any{"SOUNDS LIKE", "a", "b"}},
		{"bad arity", []any{"BETWEEN", "a", 1}},
		{"raw arg mismatch", expr.NewRaw("a = ? AND b = ?", 1)},
		{"unsupported value", 3.14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(database.DialectPostgres).Build(tt.cond)
			require.Error(t, err)
			assert.True(t, errs.IsInvalidArgument(err))
		})
	}
}
