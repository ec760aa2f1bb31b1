package sqlengine

import (
	"context"
	"database/sql"
	"fmt"

	"entitymap/row"
)

// BulkFn bulk-inserts rows inside tx.
type BulkFn func(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error)

// DB is a Conn over database/sql. Bulk inserts run inside one transaction
// through Bulk, which defaults to a prepared single-row INSERT per row.
type DB struct {
	db      *sql.DB
	dialect Dialect
	// Bulk replaces the default per-row insert loop.
	Bulk BulkFn
}

// NewDB wraps db.
func NewDB(db *sql.DB, d Dialect) *DB {
	return &DB{db: db, dialect: d}
}

// SQL returns the underlying handle.
func (c *DB) SQL() *sql.DB { return c.db }

// Exec implements Conn.
func (c *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// DDL on some drivers has no affected-row count.
		return 0, nil
	}
	return n, nil
}

// Query implements Conn.
func (c *DB) Query(ctx context.Context, query string, args ...any) ([]row.Row, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRows(rows)
}

// CopyFrom implements Conn.
func (c *DB) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	bulk := c.Bulk
	if bulk == nil {
		bulk = c.insertEach
	}
	n, err := bulk(ctx, tx, table, columns, rows)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (c *DB) insertEach(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, InsertSQL(c.dialect, table, columns))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, r...); err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		inserted++
	}
	return inserted, nil
}

// Close implements Conn.
func (c *DB) Close() { _ = c.db.Close() }

// Scanner is the subset of *sql.Rows ScanRows reads.
type Scanner interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// ScanRows reads every remaining row. NULL becomes row.Null.
func ScanRows(rows Scanner) ([]row.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []row.Row
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(row.Row, len(cols))
		for i, c := range cols {
			r[i] = row.Pair{Column: c, Value: row.FromDriver(vals[i])}
			vals[i] = nil
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
