// Package storage defines the storage engine contract the mapping layer
// writes through, and a small factory registry keyed by storage kind.
//
// Backends live in subpackages and register themselves in init:
//
//	import _ "entitymap/storage/all"
//
//	eng, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: "file:app.db"})
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"entitymap/ddl"
	"entitymap/row"
)

// Engine is implemented by every storage backend. Rows are ordered
// column/value pairs; Null values are written as SQL NULL (or omitted, for
// schemaless stores).
type Engine interface {
	// Kind returns the registered kind, e.g. "sqlite".
	Kind() string

	// EnsureTable creates the table when it is absent. With force set the
	// table is dropped first.
	EnsureTable(ctx context.Context, def ddl.TableDef, force bool) error

	// Insert writes one row.
	Insert(ctx context.Context, table string, r row.Row) error

	// Update overwrites the row identified by key and reports the number of
	// rows affected.
	Update(ctx context.Context, table string, key row.Pair, r row.Row) (int64, error)

	// Get fetches the named columns of the row identified by key.
	Get(ctx context.Context, table string, columns []string, key row.Pair) (row.Row, bool, error)

	// Select fetches the named columns of every row matching where, a
	// backend-native condition with positional args. An empty where matches
	// every row.
	Select(ctx context.Context, table string, columns []string, where string, args ...any) ([]row.Row, error)

	// Delete removes the row identified by key and reports the number of rows
	// affected.
	Delete(ctx context.Context, table string, key row.Pair) (int64, error)

	// CopyFrom bulk-inserts rows aligned to columns. Values are driver values
	// (nil for NULL).
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// Close releases the engine's resources.
	Close()
}

// Config carries the settings a Factory needs to open an engine.
type Config struct {
	// Kind selects the registered backend ("sqlite", "postgres", ...).
	Kind string
	// DSN is the backend connection string. Unused by dynamo.
	DSN string
	// MaxConns caps the connection pool where the backend keeps one.
	MaxConns int

	// Region, Endpoint and static credentials configure the dynamo backend.
	// Empty credentials fall back to the default AWS credential chain.
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Factory opens an engine for cfg.
type Factory func(ctx context.Context, cfg Config) (Engine, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Registering a kind again
// replaces the previous factory.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens an engine of cfg.Kind.
func New(ctx context.Context, cfg Config) (Engine, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
