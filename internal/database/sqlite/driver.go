package sqlite

import (
	"context"
	"database/sql"

	"github.com/koustreak/dbkit/internal/database"
)

// Driver is a SQLite implementation of database.DB backed by database/sql
// and the pure Go modernc.org/sqlite engine.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	db *sql.DB
}

// New opens the SQLite database described by cfg and returns a Driver.
// It calls Ping to validate the database before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	db, err := openPool(cfg)
	if err != nil {
		return nil, err
	}

	d := &Driver{db: db}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

// Wrap returns a Driver over an already opened handle. Closing the Driver
// closes db.
func Wrap(db *sql.DB) *Driver {
	return &Driver{db: db}
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
	return &sqliteRows{rows: rows}, nil
}

// QueryRow errors, including "no rows", surface from Scan.
func (d *Driver) QueryRow(ctx context.Context, query string, args ...any) (database.Row, error) {
	return &sqliteRow{row: d.db.QueryRowContext(ctx, query, args...)}, nil
}

func (d *Driver) Dialect() database.Dialect { return database.DialectSQLite }

// --- sql.DB type wrappers ---

type sqliteRows struct {
	rows *sql.Rows
}

func (r *sqliteRows) Next() bool             { return r.rows.Next() }
func (r *sqliteRows) Scan(dest ...any) error { return mapScanError(r.rows.Scan(dest...)) }
func (r *sqliteRows) Close()                 { _ = r.rows.Close() }
func (r *sqliteRows) Err() error             { return mapError(r.rows.Err(), "row iteration failed") }

func (r *sqliteRows) Columns() ([]string, error) {
	cols, err := r.rows.Columns()
	if err != nil {
		return nil, mapError(err, "failed to read columns")
	}
	return cols, nil
}

type sqliteRow struct {
	row *sql.Row
}

func (r *sqliteRow) Scan(dest ...any) error { return mapScanError(r.row.Scan(dest...)) }
