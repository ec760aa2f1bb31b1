package entitymap

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	emerrors "entitymap/errors"
	"entitymap/internal/metrics"
	"entitymap/mapper"
	"entitymap/meta"
	"entitymap/row"
	"entitymap/storage"
)

// EnsureOption configures EnsureTable.
type EnsureOption func(*ensureOptions)

type ensureOptions struct {
	force bool
}

// Force drops the table before creating it. Existing rows are lost.
func Force() EnsureOption {
	return func(o *ensureOptions) { o.force = true }
}

// Describe returns the descriptor of T from db's registry.
func Describe[T any](db *DB) (*meta.EntityDescriptor, error) {
	return db.registry.Describe(reflect.TypeFor[T]())
}

// EnsureTable creates T's table when it is absent.
func EnsureTable[T any](ctx context.Context, db *DB, opts ...EnsureOption) error {
	var o ensureOptions
	for _, opt := range opts {
		opt(&o)
	}
	d, err := Describe[T](db)
	if err != nil {
		return err
	}
	c, release, err := db.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return db.ensure(ctx, c, d, o.force)
}

// session resolves T and acquires the engine, ensuring the table when the DB
// was opened with WithAutoCreate. On success the caller must call release
// once it is done with the engine.
func session[T any](ctx context.Context, db *DB) (d *meta.EntityDescriptor, eng storage.Engine, release func(), err error) {
	d, err = Describe[T](db)
	if err != nil {
		return nil, nil, nil, err
	}
	c, release, err := db.acquire(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if db.autoCreate {
		if err := db.ensure(ctx, c, d, false); err != nil {
			release()
			return nil, nil, nil, err
		}
	}
	return d, c.eng, release, nil
}

func primaryKey(d *meta.EntityDescriptor) (meta.ColumnDescriptor, error) {
	pk, ok := d.PrimaryKey()
	if !ok {
		return pk, fmt.Errorf("%w: %w",
			emerrors.NewConfigurationError(d.GoType().String(), "", "no primary key column"),
			emerrors.ErrNoPrimaryKey)
	}
	return pk, nil
}

// emptyKey reports whether a stored key value identifies no row.
func emptyKey(v any) bool {
	return row.IsNull(v) || v == ""
}

// Save writes entity by primary key: an existing row is updated, otherwise a
// new one is inserted. An empty TEXT key is replaced with a new UUID, written
// back to entity, before the insert.
func Save[T any](ctx context.Context, db *DB, entity *T) error {
	d, eng, release, err := session[T](ctx, db)
	if err != nil {
		return err
	}
	defer release()
	pk, err := primaryKey(d)
	if err != nil {
		return err
	}
	r, err := mapper.ToRow(d, entity)
	if err != nil {
		return err
	}
	key := row.Pair{Column: pk.Name}
	key.Value, _ = r.Get(pk.Name)

	if emptyKey(key.Value) && pk.Type == meta.TypeText {
		id := uuid.NewString()
		if err := mapper.Assign(d, entity, pk.Name, id); err != nil {
			return err
		}
		if r, err = mapper.ToRow(d, entity); err != nil {
			return err
		}
		db.logger.DebugContext(ctx, "assigned primary key", "table", d.Table(), "id", id)
		return insert(ctx, eng, d, r)
	}
	if row.IsNull(key.Value) {
		return insert(ctx, eng, d, r)
	}

	n, err := eng.Update(ctx, d.Table(), key, r)
	if err != nil {
		return emerrors.NewStorageError("update", d.Table(), err)
	}
	if n > 0 {
		metrics.RecordRows(d.Table(), "updated", n)
		return nil
	}
	return insert(ctx, eng, d, r)
}

// Insert writes entity as a new row.
func Insert[T any](ctx context.Context, db *DB, entity *T) error {
	d, eng, release, err := session[T](ctx, db)
	if err != nil {
		return err
	}
	defer release()
	r, err := mapper.ToRow(d, entity)
	if err != nil {
		return err
	}
	return insert(ctx, eng, d, r)
}

func insert(ctx context.Context, eng storage.Engine, d *meta.EntityDescriptor, r row.Row) error {
	if err := eng.Insert(ctx, d.Table(), r); err != nil {
		return emerrors.NewStorageError("insert", d.Table(), err)
	}
	metrics.RecordRows(d.Table(), "inserted", 1)
	return nil
}

// FindByID loads the entity whose primary key equals id. It returns an error
// matching ErrNotFound when no row exists.
func FindByID[T any](ctx context.Context, db *DB, id any) (*T, error) {
	d, eng, release, err := session[T](ctx, db)
	if err != nil {
		return nil, err
	}
	defer release()
	key, err := keyPair(d, id)
	if err != nil {
		return nil, err
	}
	r, found, err := eng.Get(ctx, d.Table(), d.ColumnNames(), key)
	if err != nil {
		return nil, emerrors.NewStorageError("get", d.Table(), err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s %s=%v", emerrors.ErrNotFound, d.Table(), key.Column, id)
	}
	metrics.RecordRows(d.Table(), "selected", 1)
	return FromRow[T](db, r)
}

// Find loads every entity matching where, a condition in the engine's native
// syntax with positional args. An empty where loads every row.
func Find[T any](ctx context.Context, db *DB, where string, args ...any) ([]*T, error) {
	d, eng, release, err := session[T](ctx, db)
	if err != nil {
		return nil, err
	}
	defer release()
	rows, err := eng.Select(ctx, d.Table(), d.ColumnNames(), where, args...)
	if err != nil {
		return nil, emerrors.NewStorageError("select", d.Table(), err)
	}
	out := make([]*T, 0, len(rows))
	for _, r := range rows {
		v, err := FromRow[T](db, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	metrics.RecordRows(d.Table(), "selected", int64(len(out)))
	return out, nil
}

// Delete removes entity's row by primary key and reports the rows affected.
// An entity with an empty key deletes nothing.
func Delete[T any](ctx context.Context, db *DB, entity *T) (int64, error) {
	d, err := Describe[T](db)
	if err != nil {
		return 0, err
	}
	pk, err := primaryKey(d)
	if err != nil {
		return 0, err
	}
	r, err := mapper.ToRow(d, entity)
	if err != nil {
		return 0, err
	}
	v, _ := r.Get(pk.Name)
	if emptyKey(v) {
		return 0, nil
	}
	return deleteKey[T](ctx, db, row.Pair{Column: pk.Name, Value: v})
}

// DeleteByID removes the row whose primary key equals id.
func DeleteByID[T any](ctx context.Context, db *DB, id any) (int64, error) {
	d, err := Describe[T](db)
	if err != nil {
		return 0, err
	}
	key, err := keyPair(d, id)
	if err != nil {
		return 0, err
	}
	if emptyKey(key.Value) {
		return 0, nil
	}
	return deleteKey[T](ctx, db, key)
}

func deleteKey[T any](ctx context.Context, db *DB, key row.Pair) (int64, error) {
	d, eng, release, err := session[T](ctx, db)
	if err != nil {
		return 0, err
	}
	defer release()
	n, err := eng.Delete(ctx, d.Table(), key)
	if err != nil {
		return 0, emerrors.NewStorageError("delete", d.Table(), err)
	}
	metrics.RecordRows(d.Table(), "deleted", n)
	return n, nil
}

func keyPair(d *meta.EntityDescriptor, id any) (row.Pair, error) {
	pk, err := primaryKey(d)
	if err != nil {
		return row.Pair{}, err
	}
	v, err := mapper.Value(d, pk.Name, id)
	if err != nil {
		return row.Pair{}, err
	}
	return row.Pair{Column: pk.Name, Value: v}, nil
}

// InsertStream maps entities from in and bulk-inserts them in batches of
// batchSize until in is closed. Mapping and loading run concurrently; the
// first failure stops both. It returns the number of rows written.
func InsertStream[T any](ctx context.Context, db *DB, in <-chan T, batchSize int) (int64, error) {
	d, eng, release, err := session[T](ctx, db)
	if err != nil {
		return 0, err
	}
	defer release()
	if batchSize <= 0 {
		return 0, fmt.Errorf("entitymap: batch size must be > 0, got %d", batchSize)
	}

	rows := make(chan []any, batchSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rows)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case v, ok := <-in:
				if !ok {
					return nil
				}
				r, err := mapper.ToRow(d, &v)
				if err != nil {
					return err
				}
				select {
				case rows <- r.Args():
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})

	var total int64
	g.Go(func() error {
		n, err := storage.LoadBatches(gctx, d.ColumnNames(), rows, batchSize,
			func(ctx context.Context, columns []string, batch [][]any) (int64, error) {
				return eng.CopyFrom(ctx, d.Table(), columns, batch)
			})
		total = n
		return emerrors.NewStorageError("copy", d.Table(), err)
	})

	err = g.Wait()
	metrics.RecordRows(d.Table(), "inserted", total)
	return total, err
}

// ToRow maps entity to a row using T's descriptor.
func ToRow[T any](db *DB, entity *T) (row.Row, error) {
	d, err := Describe[T](db)
	if err != nil {
		return nil, err
	}
	return mapper.ToRow(d, entity)
}

// FromRow builds a T from r using T's descriptor. Unknown columns are
// ignored.
func FromRow[T any](db *DB, r row.Row) (*T, error) {
	d, err := Describe[T](db)
	if err != nil {
		return nil, err
	}
	v := new(T)
	if err := mapper.Scan(d, r, v); err != nil {
		return nil, err
	}
	return v, nil
}
