package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/dbkit/internal/errs"
)

// PostgreSQL SQLSTATE error codes (read-relevant only)
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrInsufficientPrivilege = "42501"
	pgErrInvalidPassword       = "28P01"
	pgErrInvalidAuthorization  = "28000"
	pgErrQueryCanceled         = "57014"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// No rows
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindQueryFailed
		switch {
		// Class 08: connection errors
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			kind = errs.ErrKindConnectionFailed
		case pgErr.Code == pgErrInsufficientPrivilege,
			pgErr.Code == pgErrInvalidPassword,
			pgErr.Code == pgErrInvalidAuthorization:
			kind = errs.ErrKindPermissionDenied
		case pgErr.Code == pgErrQueryCanceled:
			kind = errs.ErrKindTimeout
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// mapScanError is mapError for Scan, where a non-server error means the
// destination did not fit the column rather than a broken connection.
func mapScanError(err error) error {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows),
		errors.As(err, &pgErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return mapError(err, "scan failed")
	}
	return errs.Wrap(errs.ErrKindQueryFailed, "scan failed", err)
}
