// Package mssql registers the "mssql" storage kind, backed by
// github.com/microsoft/go-mssqldb. Bulk inserts use the TDS bulk copy API.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"entitymap/storage"
	"entitymap/storage/sqlengine"
)

// newEngine is a test hook that points to Open by default.
var newEngine = Open

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Engine, error) {
		return newEngine(ctx, cfg)
	})
}

// Open connects to cfg.DSN and returns an engine.
func Open(ctx context.Context, cfg storage.Config) (*sqlengine.Engine, error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	conn := sqlengine.NewDB(db, Dialect{})
	conn.Bulk = bulkCopy
	return sqlengine.New(Dialect{}, conn, nil), nil
}

// bulkCopy streams rows through mssql.CopyIn inside tx.
func bulkCopy(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	copied, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return copied, nil
}
