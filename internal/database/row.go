package database

import (
	"context"

	"github.com/koustreak/dbkit/internal/errs"
)

// ScanRows reads all rows from the result set and returns them as a slice
// of maps, where each key is the column name and each value is the Go-native
// representation of the DB value.
//
// The returned slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows, so callers do not need to call Close().
func ScanRows(rows Rows) ([]map[string]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	result := make([]map[string]any, 0)

	for rows.Next() {
		row, err := scanInto(rows, columns)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}

	return result, nil
}

// ScanRow reads a single row and returns it as a map keyed by columns.
func ScanRow(row Row, columns []string) (map[string]any, error) {
	return scanInto(row, columns)
}

// scanInto allocates *any scan targets so the driver can write any type.
func scanInto(row Row, columns []string) (map[string]any, error) {
	dest := make([]any, len(columns))
	destPtrs := make([]any, len(columns))
	for i := range dest {
		destPtrs[i] = &dest[i]
	}

	if err := row.Scan(destPtrs...); err != nil {
		if errs.IsNotFound(err) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
	}

	result := make(map[string]any, len(columns))
	for i, col := range columns {
		v := dest[i]
		// Text columns come back as []byte from mysql and sqlite.
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		result[col] = v
	}
	return result, nil
}

// QueryStrings runs query and collects the first column of every row.
// The result is non-nil even when no rows match.
func QueryStrings(ctx context.Context, db DB, query string, args ...any) ([]string, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan value", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}
	return list, nil
}
