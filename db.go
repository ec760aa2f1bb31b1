// Package entitymap persists annotated Go structs through a pluggable
// storage engine.
//
// Entity types declare a table name and tagged columns:
//
//	type User struct {
//		ID   string  `column:"id,pk"`
//		Name *string `column:"name"`
//		Age  int     `column:"age,INTEGER"`
//	}
//
//	func (User) TableName() string { return "users" }
//
// A DB opens its engine lazily through a Supplier, the first time an
// operation needs it:
//
//	import _ "entitymap/storage/all"
//
//	db := entitymap.Open(func() (storage.Config, error) {
//		return storage.Config{Kind: "sqlite", DSN: "file:app.db"}, nil
//	})
//	defer db.Close()
//
//	if err := entitymap.EnsureTable[User](ctx, db); err != nil { ... }
//	if err := entitymap.Save(ctx, db, &u); err != nil { ... }
package entitymap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"

	emerrors "entitymap/errors"
	"entitymap/meta"
	"entitymap/schema"
	"entitymap/storage"
)

// Supplier returns the storage configuration for a connection. It is called
// each time the DB opens its engine.
type Supplier func() (storage.Config, error)

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.logger = l
		}
	}
}

// WithRegistry sets the descriptor registry. The default is meta.Default().
func WithRegistry(r *meta.Registry) Option {
	return func(db *DB) {
		if r != nil {
			db.registry = r
		}
	}
}

// WithAutoCreate makes every operation ensure its entity's table first.
func WithAutoCreate(on bool) Option {
	return func(db *DB) { db.autoCreate = on }
}

// DB is a handle to an entity store. It is safe for concurrent use.
type DB struct {
	supplier   Supplier
	logger     *slog.Logger
	registry   *meta.Registry
	autoCreate bool

	mu  sync.Mutex
	cur atomic.Pointer[conn]
}

// conn is one opened engine plus the fingerprints of the table definitions
// already applied through it. Operations hold inuse for reading while they
// use eng; Close takes it for writing before closing eng.
type conn struct {
	eng storage.Engine

	inuse  sync.RWMutex
	closed bool

	mu      sync.Mutex
	applied map[uint64]struct{}
}

// Open returns a DB that will connect through supplier. No I/O happens until
// the first operation.
func Open(supplier Supplier, opts ...Option) *DB {
	db := &DB{
		supplier: supplier,
		logger:   slog.Default(),
		registry: meta.Default(),
	}
	for _, o := range opts {
		o(db)
	}
	return db
}

// Engine returns the open engine, opening it on first use. A failed open is
// not remembered; the next call asks the supplier again. Calls made directly
// on the returned engine are not tracked by Close.
func (db *DB) Engine(ctx context.Context) (storage.Engine, error) {
	c, err := db.conn(ctx)
	if err != nil {
		return nil, err
	}
	return c.eng, nil
}

func (db *DB) conn(ctx context.Context) (*conn, error) {
	if c := db.cur.Load(); c != nil {
		return c, nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if c := db.cur.Load(); c != nil {
		return c, nil
	}

	if db.supplier == nil {
		return nil, errors.New("entitymap: no storage supplier")
	}
	cfg, err := db.supplier()
	if err != nil {
		return nil, fmt.Errorf("entitymap: storage config: %w", err)
	}
	eng, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, emerrors.NewStorageError("open", "", err)
	}
	db.logger.DebugContext(ctx, "storage engine opened", "kind", eng.Kind())

	c := &conn{eng: eng, applied: map[uint64]struct{}{}}
	db.cur.Store(c)
	return c, nil
}

// acquire returns the open conn held for use. The caller must call release
// exactly once, and must not acquire again before it does.
func (db *DB) acquire(ctx context.Context) (c *conn, release func(), err error) {
	for {
		if c, err = db.conn(ctx); err != nil {
			return nil, nil, err
		}
		c.inuse.RLock()
		if !c.closed {
			return c, c.inuse.RUnlock, nil
		}
		// Closed between load and lock; the next pass reopens.
		c.inuse.RUnlock()
	}
}

// Close closes the engine if one is open. It waits for operations already
// using the engine to return. A later operation reopens it through the
// supplier.
func (db *DB) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()
	c := db.cur.Swap(nil)
	if c == nil {
		return
	}
	c.inuse.Lock()
	c.closed = true
	c.inuse.Unlock()
	c.eng.Close()
}

// Registry returns the descriptor registry the DB resolves entity types with.
func (db *DB) Registry() *meta.Registry { return db.registry }

// ensure applies d's table through c unless an identical definition was
// already applied on this connection. force always runs.
func (db *DB) ensure(ctx context.Context, c *conn, d *meta.EntityDescriptor, force bool) error {
	stmt, err := schema.CreateTableSQL(d)
	if err != nil {
		return emerrors.NewConfigurationError(d.GoType().String(), "", err.Error())
	}
	fp := xxh3.HashString(c.eng.Kind() + "\x00" + stmt)

	c.mu.Lock()
	_, done := c.applied[fp]
	c.mu.Unlock()
	if done && !force {
		return nil
	}

	if err := schema.EnsureTable(ctx, c.eng, d, force); err != nil {
		return err
	}
	db.logger.DebugContext(ctx, "table ensured", "table", d.Table(), "force", force)

	c.mu.Lock()
	c.applied[fp] = struct{}{}
	c.mu.Unlock()
	return nil
}
