package sqlengine

import (
	"context"
	"fmt"
	"log/slog"

	"entitymap/ddl"
	"entitymap/row"
	"entitymap/storage"
)

// Conn is the driver-level handle an Engine runs statements through.
type Conn interface {
	// Exec runs a statement and reports the rows affected.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Query runs a statement and returns every result row.
	Query(ctx context.Context, query string, args ...any) ([]row.Row, error)
	// CopyFrom bulk-inserts rows aligned to columns.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	// Close releases the handle.
	Close()
}

// Engine is a storage.Engine over a Dialect and a Conn.
type Engine struct {
	dialect Dialect
	conn    Conn
	logger  *slog.Logger
}

var _ storage.Engine = (*Engine)(nil)

// New returns an Engine. A nil logger uses slog.Default().
func New(d Dialect, c Conn, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{dialect: d, conn: c, logger: logger.With("kind", d.Name())}
}

// Kind implements storage.Engine.
func (e *Engine) Kind() string { return e.dialect.Name() }

// Dialect returns the engine's dialect.
func (e *Engine) Dialect() Dialect { return e.dialect }

// EnsureTable implements storage.Engine.
func (e *Engine) EnsureTable(ctx context.Context, def ddl.TableDef, force bool) error {
	create, err := e.dialect.CreateTableSQL(def)
	if err != nil {
		return err
	}
	if force {
		drop := e.dialect.DropTableSQL(def.FQN)
		e.logger.DebugContext(ctx, "dropping table", "table", def.FQN, "sql", drop)
		if _, err := e.conn.Exec(ctx, drop); err != nil {
			return fmt.Errorf("%s: drop table: %w", e.dialect.Name(), err)
		}
	}
	e.logger.DebugContext(ctx, "ensuring table", "table", def.FQN, "sql", create)
	if _, err := e.conn.Exec(ctx, create); err != nil {
		return fmt.Errorf("%s: create table: %w", e.dialect.Name(), err)
	}
	return nil
}

// Insert implements storage.Engine.
func (e *Engine) Insert(ctx context.Context, table string, r row.Row) error {
	if len(r) == 0 {
		return fmt.Errorf("%s: insert: empty row", e.dialect.Name())
	}
	if _, err := e.conn.Exec(ctx, InsertSQL(e.dialect, table, r.Columns()), r.Args()...); err != nil {
		return fmt.Errorf("%s: insert: %w", e.dialect.Name(), err)
	}
	return nil
}

// Update implements storage.Engine. The key column is not rewritten.
func (e *Engine) Update(ctx context.Context, table string, key row.Pair, r row.Row) (int64, error) {
	set := r.Without(key.Column)
	if len(set) == 0 {
		// Nothing to overwrite; report whether the row exists.
		rows, err := e.conn.Query(ctx, SelectSQL(e.dialect, table, []string{key.Column}, KeyCondition(e.dialect, key.Column)), row.DriverValue(key.Value))
		if err != nil {
			return 0, fmt.Errorf("%s: update: %w", e.dialect.Name(), err)
		}
		return int64(len(rows)), nil
	}
	args := append(set.Args(), row.DriverValue(key.Value))
	n, err := e.conn.Exec(ctx, UpdateSQL(e.dialect, table, set.Columns(), key.Column), args...)
	if err != nil {
		return 0, fmt.Errorf("%s: update: %w", e.dialect.Name(), err)
	}
	return n, nil
}

// Get implements storage.Engine.
func (e *Engine) Get(ctx context.Context, table string, columns []string, key row.Pair) (row.Row, bool, error) {
	rows, err := e.conn.Query(ctx, SelectSQL(e.dialect, table, columns, KeyCondition(e.dialect, key.Column)), row.DriverValue(key.Value))
	if err != nil {
		return nil, false, fmt.Errorf("%s: get: %w", e.dialect.Name(), err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// Select implements storage.Engine. where uses the dialect's own
// placeholders.
func (e *Engine) Select(ctx context.Context, table string, columns []string, where string, args ...any) ([]row.Row, error) {
	rows, err := e.conn.Query(ctx, SelectSQL(e.dialect, table, columns, where), driverArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("%s: select: %w", e.dialect.Name(), err)
	}
	return rows, nil
}

// Delete implements storage.Engine.
func (e *Engine) Delete(ctx context.Context, table string, key row.Pair) (int64, error) {
	n, err := e.conn.Exec(ctx, DeleteSQL(e.dialect, table, key.Column), row.DriverValue(key.Value))
	if err != nil {
		return 0, fmt.Errorf("%s: delete: %w", e.dialect.Name(), err)
	}
	return n, nil
}

// CopyFrom implements storage.Engine.
func (e *Engine) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("%s: copy: columns must not be empty", e.dialect.Name())
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return 0, fmt.Errorf("%s: copy: row %d has %d values, want %d", e.dialect.Name(), i, len(r), len(columns))
		}
	}
	n, err := e.conn.CopyFrom(ctx, table, columns, rows)
	if err != nil {
		return n, fmt.Errorf("%s: copy: %w", e.dialect.Name(), err)
	}
	return n, nil
}

// Close implements storage.Engine.
func (e *Engine) Close() { e.conn.Close() }

func driverArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = row.DriverValue(a)
	}
	return out
}
