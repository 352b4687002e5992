package sqlite

import (
	"context"
	"database/sql"
	"errors"

	modsqlite "modernc.org/sqlite"

	"github.com/koustreak/dbkit/internal/errs"
)

// SQLite primary result codes (read-relevant only)
// Full list: https://www.sqlite.org/rescode.html
const (
	sqlitePerm      = 3
	sqliteBusy      = 5
	sqliteLocked    = 6
	sqliteInterrupt = 9
	sqliteCantOpen  = 14
	sqliteAuth      = 23
	sqliteNotADB    = 26
)

// mapError translates modernc.org/sqlite errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var liteErr *modsqlite.Error
	if errors.As(err, &liteErr) {
		return errs.Wrap(classifyCode(liteErr.Code()), msg, err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// mapScanError is mapError for Scan, where a non-engine error means the
// destination did not fit the column.
func mapScanError(err error) error {
	var liteErr *modsqlite.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows),
		errors.As(err, &liteErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return mapError(err, "scan failed")
	}
	return errs.Wrap(errs.ErrKindQueryFailed, "scan failed", err)
}

// classifyCode maps an (extended) SQLite result code to ErrKind.
func classifyCode(code int) errs.ErrKind {
	switch code & 0xff {
	case sqlitePerm, sqliteAuth:
		return errs.ErrKindPermissionDenied
	case sqliteCantOpen, sqliteNotADB:
		return errs.ErrKindConnectionFailed
	case sqliteBusy, sqliteLocked, sqliteInterrupt:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
