// Package postgres registers the "postgres" storage kind, backed by a pgx v5
// connection pool. Bulk inserts use the COPY protocol.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"entitymap/row"
	"entitymap/storage"
	"entitymap/storage/sqlengine"
)

// newEngine is a test hook that points to Open by default.
var newEngine = Open

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Engine, error) {
		return newEngine(ctx, cfg)
	})
}

// Open builds a pool for cfg.DSN and returns an engine over it. The pool
// connects lazily.
func Open(ctx context.Context, cfg storage.Config) (*sqlengine.Engine, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return sqlengine.New(Dialect{}, &Conn{pool: p}, nil), nil
}

// pool is the subset of *pgxpool.Pool a Conn uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Close()
}

// Conn is a sqlengine.Conn over a pgx pool.
type Conn struct {
	pool pool
}

var _ sqlengine.Conn = (*Conn)(nil)

// Exec implements sqlengine.Conn.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, pgError(err)
	}
	return tag.RowsAffected(), nil
}

// Query implements sqlengine.Conn. NULL becomes row.Null.
func (c *Conn) Query(ctx context.Context, query string, args ...any) ([]row.Row, error) {
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pgError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []row.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, pgError(err)
		}
		r := make(row.Row, len(fields))
		for i, f := range fields {
			r[i] = row.Pair{Column: f.Name, Value: row.FromDriver(vals[i])}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError(err)
	}
	return out, nil
}

// CopyFrom implements sqlengine.Conn using COPY ... FROM STDIN.
func (c *Conn) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	n, err := c.pool.CopyFrom(ctx, splitFQN(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, pgError(err)
	}
	return n, nil
}

// Close implements sqlengine.Conn.
func (c *Conn) Close() { c.pool.Close() }

// pgError surfaces the server's detail text, which pgx leaves out of Error().
func pgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w: %s (%s)", err, pgErr.Detail, pgErr.SQLState())
	}
	return err
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			id = append(id, p)
		}
	}
	return id
}
