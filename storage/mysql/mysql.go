// Package mysql registers the "mysql" storage kind, backed by
// github.com/go-sql-driver/mysql.
//
// Connections always set clientFoundRows so that an UPDATE reports matched
// rows rather than changed rows.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"entitymap/storage"
	"entitymap/storage/sqlengine"
)

// maxPlaceholders is the server's limit on bind parameters per statement.
const maxPlaceholders = 65535

// newEngine is a test hook that points to Open by default.
var newEngine = Open

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Engine, error) {
		return newEngine(ctx, cfg)
	})
}

// Open connects to cfg.DSN and returns an engine.
func Open(ctx context.Context, cfg storage.Config) (*sqlengine.Engine, error) {
	dsnCfg, err := parseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(dsnCfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}

	conn := sqlengine.NewDB(db, Dialect{})
	conn.Bulk = multiInsert
	return sqlengine.New(Dialect{}, conn, nil), nil
}

func parseDSN(dsn string) (*mysql.Config, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	c.ClientFoundRows = true
	return c, nil
}

// multiInsert writes rows with multi-row INSERT statements, as many rows per
// statement as the placeholder limit allows.
func multiInsert(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	per := maxPlaceholders / len(columns)
	var inserted int64
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		chunk := rows[start:end]

		args := make([]any, 0, len(chunk)*len(columns))
		for _, r := range chunk {
			args = append(args, r...)
		}
		res, err := tx.ExecContext(ctx, sqlengine.MultiInsertSQL(Dialect{}, table, columns, len(chunk)), args...)
		if err != nil {
			return inserted, fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}
