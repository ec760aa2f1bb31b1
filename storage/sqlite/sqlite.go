// Package sqlite registers the "sqlite" storage kind, backed by the pure-Go
// modernc.org/sqlite driver through database/sql.
//
// The DSN is passed to the driver unchanged, for example:
//
//	"file:app.db?_pragma=busy_timeout(5000)"
//	":memory:"
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"entitymap/storage"
	"entitymap/storage/sqlengine"

	_ "modernc.org/sqlite"
)

// newEngine is a test hook that points to Open by default.
var newEngine = Open

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Engine, error) {
		return newEngine(ctx, cfg)
	})
}

// Open connects to the database named by cfg.DSN and returns an engine.
func Open(ctx context.Context, cfg storage.Config) (*sqlengine.Engine, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	switch {
	case cfg.MaxConns > 0:
		db.SetMaxOpenConns(cfg.MaxConns)
	case inMemory(dsn):
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON")

	return sqlengine.New(Dialect{}, sqlengine.NewDB(db, Dialect{}), nil), nil
}

func inMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
