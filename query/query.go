// Package query runs entgo.io/ent/dialect/sql statements and scans their
// results into the shapes the collections and the preview indexer read.
package query

import (
	"context"
	"fmt"
	"strconv"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
)

// Ints runs q and returns the first column of every row as an int. NULL
// values are skipped.
func Ints(ctx context.Context, drv dialect.ExecQuerier, q sql.Querier) ([]int, error) {
	var values []any
	if err := Slice(ctx, drv, q, &values); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		n, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("query: unexpected %T in integer column", v)
		}
		ids = append(ids, n)
	}
	return ids, nil
}

// Strings runs q and returns the first column of every row as a string.
func Strings(ctx context.Context, drv dialect.ExecQuerier, q sql.Querier) ([]string, error) {
	var vs []string
	if err := Slice(ctx, drv, q, &vs); err != nil {
		return nil, err
	}
	return vs, nil
}

// Int runs q and returns its single integer value, such as a COUNT(*).
func Int(ctx context.Context, drv dialect.ExecQuerier, q sql.Querier) (int, error) {
	rows := &sql.Rows{}
	query, args := q.Query()
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	return sql.ScanInt(rows)
}

// Slice runs q and scans its rows into v with sql.ScanSlice.
func Slice(ctx context.Context, drv dialect.ExecQuerier, q sql.Querier, v any) error {
	rows := &sql.Rows{}
	query, args := q.Query()
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()
	return sql.ScanSlice(rows, v)
}

// Maps runs q and returns every row keyed by column name. Byte slices are
// converted to strings.
func Maps(ctx context.Context, drv dialect.ExecQuerier, q sql.Querier) ([]map[string]any, error) {
	rows := &sql.Rows{}
	query, args := q.Query()
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query: scan row: %w", err)
		}
		m := make(map[string]any, len(columns))
		for i, c := range columns {
			if b, ok := values[i].([]byte); ok {
				m[c] = string(b)
				continue
			}
			m[c] = values[i]
		}
		records = append(records, m)
	}
	return records, rows.Err()
}

// toInt converts a scanned column value into an int.
func toInt(v any) (int, bool) {
	switch v := v.(type) {
	case int64:
		return int(v), true
	case int:
		return v, true
	case int32:
		return int(v), true
	case []byte:
		n, err := strconv.Atoi(string(v))
		return n, err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}
