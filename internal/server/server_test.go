package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/logger"
	"github.com/koustreak/dbkit/internal/querybuilder"
	"github.com/koustreak/dbkit/internal/schema"
)

// shopLoader knows one table and lists names, but cannot list schemas.
type shopLoader struct {
	loads atomic.Int32
	fail  error
}

func (l *shopLoader) LoadTableSchema(_ context.Context, name string) (*schema.TableSchema, error) {
	l.loads.Add(1)
	if l.fail != nil {
		return nil, l.fail
	}
	if name != "users" {
		return nil, nil
	}
	id := schema.NewColumn("id")
	id.Type, id.DBType, id.AllowNull, id.IsPrimaryKey = "integer", "int4", false, true
	ts := schema.NewTableSchema().SetName("users").SetFullName("users").
		SetColumn("id", id).
		SetColumn("email", schema.NewColumn("email"))
	ts.AddPrimaryKey("id")
	return ts, nil
}

func (l *shopLoader) FindTableNames(context.Context, string) ([]string, error) {
	return []string{"orders", "users"}, nil
}

func (l *shopLoader) LoadTablePrimaryKey(_ context.Context, table string) (*schema.Constraint, error) {
	return &schema.Constraint{Name: table + "_pkey", ColumnNames: []string{"id"}}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func newTestServer(t *testing.T, l schema.Loader) http.Handler {
	t.Helper()
	s := schema.New(l, schema.WithCacheConfig(schema.CacheConfig{Enabled: true, TablePrefix: "tbl_"}))
	return New(s, querybuilder.New(database.DialectPostgres), nil).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Code != http.StatusNoContent {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	rec, env := do(t, newTestServer(t, &shopLoader{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data))
}

func TestListTables(t *testing.T) {
	rec, env := do(t, newTestServer(t, &shopLoader{}), http.MethodGet, "/tables", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["orders","users"]`, string(env.Data))
}

func TestListViewsWithoutFinder(t *testing.T) {
	rec, env := do(t, newTestServer(t, &shopLoader{}), http.MethodGet, "/views", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestListSchemasNotSupported(t *testing.T) {
	rec, env := do(t, newTestServer(t, &shopLoader{}), http.MethodGet, "/schemas", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_supported", env.Error.Code)
	assert.Contains(t, env.Error.Message, "does not support fetching all schema names")
}

func TestGetTable(t *testing.T) {
	h := newTestServer(t, &shopLoader{})

	rec, env := do(t, h, http.MethodGet, "/tables/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var table struct {
		Name       string   `json:"name"`
		PrimaryKey []string `json:"primary_key"`
		Columns    []struct {
			Name string `json:"name"`
		} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &table))
	assert.Equal(t, "users", table.Name)
	assert.Equal(t, []string{"id"}, table.PrimaryKey)
	require.Len(t, table.Columns, 2)
	assert.Equal(t, "id", table.Columns[0].Name)

	rec, env = do(t, h, http.MethodGet, "/tables/ghosts", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestGetTableError(t *testing.T) {
	l := &shopLoader{fail: errs.New(errs.ErrKindPermissionDenied, "no access")}
	rec, env := do(t, newTestServer(t, l), http.MethodGet, "/tables/users", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "permission_denied", env.Error.Code)
}

func TestGetTableMetadata(t *testing.T) {
	h := newTestServer(t, &shopLoader{})

	rec, env := do(t, h, http.MethodGet, "/tables/users/primary-key", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pk schema.Constraint
	require.NoError(t, json.Unmarshal(env.Data, &pk))
	assert.Equal(t, "users_pkey", pk.Name)
	assert.Equal(t, []string{"id"}, pk.ColumnNames)

	rec, env = do(t, h, http.MethodGet, "/tables/users/checks", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "not_supported", env.Error.Code)

	rec, _ = do(t, h, http.MethodGet, "/tables/users/triggers", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefresh(t *testing.T) {
	l := &shopLoader{}
	h := newTestServer(t, l)

	do(t, h, http.MethodGet, "/tables/users", "")
	do(t, h, http.MethodGet, "/tables/users", "")
	assert.EqualValues(t, 1, l.loads.Load())

	rec, _ := do(t, h, http.MethodPost, "/tables/users/refresh", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	do(t, h, http.MethodGet, "/tables/users", "")
	assert.EqualValues(t, 2, l.loads.Load())

	do(t, h, http.MethodGet, "/tables/users?refresh=true", "")
	assert.EqualValues(t, 3, l.loads.Load())

	rec, _ = do(t, h, http.MethodPost, "/refresh", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	do(t, h, http.MethodGet, "/tables/users", "")
	assert.EqualValues(t, 4, l.loads.Load())
}

func TestRenderCondition(t *testing.T) {
	h := newTestServer(t, &shopLoader{})

	body := `{"condition": ["AND", ["=", "status", 1], ["BETWEEN", "age", 18, 65.5]]}`
	rec, env := do(t, h, http.MethodPost, "/conditions/render", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var frag querybuilder.Fragment
	require.NoError(t, json.Unmarshal(env.Data, &frag))
	assert.Equal(t, `"status" = $1 AND ("age" BETWEEN $2 AND $3)`, frag.SQL)
	require.Len(t, frag.Bindings, 3)
	assert.Equal(t, "$1", frag.Bindings[0].Placeholder)
	assert.EqualValues(t, 1, frag.Bindings[0].Value)
	assert.EqualValues(t, 65.5, frag.Bindings[2].Value)
}

func TestRenderConditionInvalid(t *testing.T) {
	h := newTestServer(t, &shopLoader{})

	rec, env := do(t, h, http.MethodPost, "/conditions/render", `{"condition": ["NOPE", "a", 1]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", env.Error.Code)

	rec, _ = do(t, h, http.MethodPost, "/conditions/render", `{"condition": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/conditions/render", `{"cond": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenderSelect(t *testing.T) {
	h := newTestServer(t, &shopLoader{})

	body := `{
		"columns": ["id", "email"],
		"where": {"status": "active"},
		"order_by": [{"column": "id", "desc": true}],
		"limit": 10
	}`
	rec, env := do(t, h, http.MethodPost, "/tables/%7B%7B%25users%7D%7D/select", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		SQL  string `json:"sql"`
		Args []any  `json:"args"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, `SELECT "id", "email" FROM "tbl_users" WHERE "status" = $1 ORDER BY "id" DESC LIMIT $2`, res.SQL)
	assert.Equal(t, []any{"active", float64(10)}, res.Args)
}

func TestServerErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: &buf})
	l := &shopLoader{fail: errs.New(errs.ErrKindQueryFailed, "relation is broken")}
	h := New(schema.New(l), querybuilder.New(database.DialectPostgres), log).Handler()

	rec, env := do(t, h, http.MethodGet, "/tables/users", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", env.Error.Code)

	out := buf.String()
	assert.Contains(t, out, `"message":"request failed"`)
	assert.Contains(t, out, "relation is broken")
	assert.Contains(t, out, `"request_id"`)
	assert.Contains(t, out, `"status":500`)
}
