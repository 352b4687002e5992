package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/dbkit/internal/errs"
)

// MySQL error numbers (read-relevant only)
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied  = 1044
	errAccessDenied    = 1045
	errNoDatabase      = 1046
	errUnknownDatabase = 1049
	errTooManyConns    = 1040
	errUserConnLimit   = 1203
	errTableAccess     = 1142
	errColumnAccess    = 1143
	errQueryTimeout    = 3024
	errQueryKilled     = 1317
	errConnRefused     = 2003
)

// mapError translates go-sql-driver/mysql errors into *errs.Error.
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

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// mapScanError is mapError for Scan, where a non-server error means the
// destination did not fit the column.
func mapScanError(err error) error {
	var mysqlErr *gomysql.MySQLError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows),
		errors.As(err, &mysqlErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return mapError(err, "scan failed")
	}
	return errs.Wrap(errs.ErrKindQueryFailed, "scan failed", err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errAccessDenied, errDBAccessDenied, errTableAccess, errColumnAccess:
		return errs.ErrKindPermissionDenied
	case errNoDatabase, errUnknownDatabase, errTooManyConns, errUserConnLimit, errConnRefused:
		return errs.ErrKindConnectionFailed
	case errQueryTimeout, errQueryKilled:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
