package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
)

// Driver is a PostgreSQL implementation of database.DB backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create connection pool", err)
	}

	d := &Driver{pool: pool}

	if err := d.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return d, nil
}

// --- database.DB implementation ---

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool. Call when the application shuts down.
func (d *Driver) Close() {
	d.pool.Close()
}

// Query executes a SQL statement that returns multiple rows.
func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

// QueryRow executes a SQL statement expected to return at most one row.
// Errors, including "no rows", surface from Scan.
func (d *Driver) QueryRow(ctx context.Context, sql string, args ...any) (database.Row, error) {
	return &pgxRow{row: d.pool.QueryRow(ctx, sql, args...)}, nil
}

// Dialect reports PostgreSQL.
func (d *Driver) Dialect() database.Dialect { return database.DialectPostgres }

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool { return r.rows.Next() }
func (r *pgxRows) Close()     { r.rows.Close() }

func (r *pgxRows) Scan(dest ...any) error {
	return mapScanError(r.rows.Scan(dest...))
}

func (r *pgxRows) Err() error {
	return mapError(r.rows.Err(), "row iteration failed")
}

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

// pgxRow wraps pgx.Row to satisfy database.Row.
type pgxRow struct {
	row pgx.Row
}

func (r *pgxRow) Scan(dest ...any) error {
	return mapScanError(r.row.Scan(dest...))
}
