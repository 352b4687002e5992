package mysql

import (
	"context"
	"database/sql"

	"github.com/koustreak/dbkit/internal/database"
)

// Driver is a MySQL implementation of database.DB backed by database/sql.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	db *sql.DB
}

// New opens a MySQL connection pool using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	db, err := openPool(cfg)
	if err != nil {
		return nil, err
	}

	d := &Driver{db: db}

	pingCtx, cancel := context.WithTimeout(ctx, durationOr(cfg.ConnectTimeout, defaultConnTimeout))
	defer cancel()

	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

// --- database.DB implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() {
	_ = d.db.Close()
}

func (d *Driver) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &mysqlRows{rows: rows}, nil
}

// QueryRow errors, including "no rows", surface from Scan.
func (d *Driver) QueryRow(ctx context.Context, query string, args ...any) (database.Row, error) {
	return &mysqlRow{row: d.db.QueryRowContext(ctx, query, args...)}, nil
}

func (d *Driver) Dialect() database.Dialect { return database.DialectMySQL }

// --- sql.DB type wrappers ---

type mysqlRows struct {
	rows *sql.Rows
}

func (r *mysqlRows) Next() bool             { return r.rows.Next() }
func (r *mysqlRows) Scan(dest ...any) error { return mapScanError(r.rows.Scan(dest...)) }
func (r *mysqlRows) Close()                 { _ = r.rows.Close() }
func (r *mysqlRows) Err() error             { return mapError(r.rows.Err(), "row iteration failed") }

func (r *mysqlRows) Columns() ([]string, error) {
	cols, err := r.rows.Columns()
	if err != nil {
		return nil, mapError(err, "failed to read columns")
	}
	return cols, nil
}

type mysqlRow struct {
	row *sql.Row
}

func (r *mysqlRow) Scan(dest ...any) error { return mapScanError(r.row.Scan(dest...)) }
