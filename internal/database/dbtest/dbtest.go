// Package dbtest provides an in-memory database.DB that answers queries
// with canned result sets, for testing introspectors without a server.
//
// Usage:
//
//	db := dbtest.New(database.DialectPostgres).
//	    On("FROM information_schema.tables", dbtest.Rows([]string{"table_name"},
//	        []any{"users"},
//	        []any{"orders"},
//	    ))
//	names, err := postgres.NewIntrospector(db).FindTableNames(ctx, "public")
package dbtest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
)

// Result is a canned result set.
type Result struct {
	Columns []string
	Rows    [][]any
	Err     error
}

// Rows builds a Result from a column list and row values.
func Rows(columns []string, rows ...[]any) Result {
	return Result{Columns: columns, Rows: rows}
}

// Fail builds a Result whose query fails with err.
func Fail(err error) Result {
	return Result{Err: err}
}

// Call records one query the fake received.
type Call struct {
	SQL  string
	Args []any
}

type handler struct {
	fragment string
	respond  func(args []any) Result
}

// DB is a fake database.DB. Queries are matched against registered SQL
// fragments in registration order; the first fragment contained in the
// query wins. It is safe for concurrent use.
type DB struct {
	dialect database.Dialect

	mu       sync.Mutex
	handlers []handler
	calls    []Call
	closed   bool
}

// New returns an empty fake for dialect d.
func New(d database.Dialect) *DB {
	return &DB{dialect: d}
}

// On answers every query containing fragment with res.
func (db *DB) On(fragment string, res Result) *DB {
	return db.OnFunc(fragment, func([]any) Result { return res })
}

// OnFunc answers every query containing fragment with fn(args).
func (db *DB) OnFunc(fragment string, fn func(args []any) Result) *DB {
	db.mu.Lock()
	db.handlers = append(db.handlers, handler{fragment: fragment, respond: fn})
	db.mu.Unlock()
	return db
}

// Calls returns the queries received so far.
func (db *DB) Calls() []Call {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]Call(nil), db.calls...)
}

// CallCount returns how many received queries contained fragment.
func (db *DB) CallCount(fragment string) int {
	n := 0
	for _, c := range db.Calls() {
		if strings.Contains(c.SQL, fragment) {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called.
func (db *DB) Closed() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closed
}

// --- database.DB implementation ---

func (db *DB) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (db *DB) Close() {
	db.mu.Lock()
	db.closed = true
	db.mu.Unlock()
}

func (db *DB) Dialect() database.Dialect { return db.dialect }

func (db *DB) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "query canceled", err)
	}
	res, err := db.respond(sql, args)
	if err != nil {
		return nil, err
	}
	return &rows{result: res, pos: -1}, nil
}

func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) (database.Row, error) {
	r, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &row{rows: r.(*rows)}, nil
}

func (db *DB) respond(sql string, args []any) (Result, error) {
	db.mu.Lock()
	db.calls = append(db.calls, Call{SQL: sql, Args: args})
	handlers := db.handlers
	db.mu.Unlock()

	for _, h := range handlers {
		if strings.Contains(sql, h.fragment) {
			res := h.respond(args)
			if res.Err != nil {
				return Result{}, res.Err
			}
			return res, nil
		}
	}
	return Result{}, errs.Newf(errs.ErrKindQueryFailed, "dbtest: no result registered for query %q", sql)
}

type rows struct {
	result Result
	pos    int
}

func (r *rows) Next() bool {
	r.pos++
	return r.pos < len(r.result.Rows)
}

func (r *rows) Columns() ([]string, error) { return r.result.Columns, nil }
func (r *rows) Close()                     {}
func (r *rows) Err() error                 { return nil }

func (r *rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.result.Rows) {
		return errs.New(errs.ErrKindQueryFailed, "dbtest: Scan called without a current row")
	}
	values := r.result.Rows[r.pos]
	if len(dest) != len(values) {
		return errs.Newf(errs.ErrKindQueryFailed, "dbtest: expected %d destinations, got %d", len(values), len(dest))
	}
	for i, v := range values {
		if err := assign(dest[i], v); err != nil {
			return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("dbtest: column %d", i), err)
		}
	}
	return nil
}

type row struct {
	rows *rows
}

func (r *row) Scan(dest ...any) error {
	if !r.rows.Next() {
		return errs.New(errs.ErrKindNotFound, "no rows in result set")
	}
	return r.rows.Scan(dest...)
}

// assign stores src in the value dest points to, converting between
// numeric kinds and from []byte to string the way database/sql does.
func assign(dest, src any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer, got %T", dest)
	}
	ev := dv.Elem()

	if src == nil {
		ev.Set(reflect.Zero(ev.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)

	if ev.Kind() == reflect.Interface {
		ev.Set(sv)
		return nil
	}
	// **T destinations receive a freshly allocated *T.
	if ev.Kind() == reflect.Pointer && !sv.Type().AssignableTo(ev.Type()) {
		p := reflect.New(ev.Type().Elem())
		if err := assign(p.Interface(), src); err != nil {
			return err
		}
		ev.Set(p)
		return nil
	}
	if sv.Type().AssignableTo(ev.Type()) {
		ev.Set(sv)
		return nil
	}

	switch {
	case ev.Kind() == reflect.String && sv.Kind() == reflect.Slice && sv.Type().Elem().Kind() == reflect.Uint8:
		ev.SetString(string(sv.Bytes()))
		return nil
	case ev.Kind() == reflect.Bool && isNumber(sv.Kind()):
		ev.SetBool(!sv.IsZero())
		return nil
	case isNumber(ev.Kind()) && isNumber(sv.Kind()):
		ev.Set(sv.Convert(ev.Type()))
		return nil
	case ev.Kind() == sv.Kind() && sv.Type().ConvertibleTo(ev.Type()):
		ev.Set(sv.Convert(ev.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", src, ev.Type())
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
