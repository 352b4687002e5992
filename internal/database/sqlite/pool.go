package sqlite

import (
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
)

const (
	driverName             = "sqlite"
	memoryDSN              = ":memory:"
	defaultMaxOpenConns    = 4
	defaultConnTimeout     = 5 * time.Second
	defaultConnMaxIdleTime = 10 * time.Minute
)

// openPool opens the database file named by cfg. An in-memory database is
// private to its connection, so the pool is pinned to a single connection
// that never expires.
func openPool(cfg *database.Config) (*sql.DB, error) {
	dsn := buildDSN(cfg)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	if isMemory(dsn) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
		return db, nil
	}

	maxOpen := int(cfg.MaxConns)
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	if cfg.MaxConnIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	} else {
		db.SetConnMaxIdleTime(defaultConnMaxIdleTime)
	}
	return db, nil
}

// buildDSN returns cfg.DSN, else cfg.Database as a file path, else an
// in-memory database.
func buildDSN(cfg *database.Config) string {
	switch {
	case cfg.DSN != "":
		return cfg.DSN
	case cfg.Database != "":
		return cfg.Database
	default:
		return memoryDSN
	}
}

func isMemory(dsn string) bool {
	return dsn == memoryDSN || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}
