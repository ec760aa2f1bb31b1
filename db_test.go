package entitymap

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"entitymap/ddl"
	emerrors "entitymap/errors"
	"entitymap/meta"
	"entitymap/row"
	"entitymap/storage"

	_ "entitymap/storage/sqlite"
)

type person struct {
	ID    string  `column:"id,pk"`
	Name  *string `column:"name"`
	Age   int     `column:"age,INTEGER"`
	Score float64 `column:"score,REAL"`
	Photo []byte  `column:"photo,BLOB"`
}

func (person) TableName() string { return "people" }

type counter struct {
	ID    int64  `column:"id,INTEGER,pk"`
	Label string `column:"label"`
}

func (counter) TableName() string { return "counters" }

type logLine struct {
	At   int64  `column:"at,INTEGER"`
	Text string `column:"text"`
}

func (logLine) TableName() string { return "log_lines" }

func strp(s string) *string { return &s }

// sqliteSupplier returns a supplier for a fresh database file and counts how
// often it is called.
func sqliteSupplier(t *testing.T) (Supplier, *atomic.Int32) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "entitymap.db")
	var calls atomic.Int32
	return func() (storage.Config, error) {
		calls.Add(1)
		return storage.Config{Kind: "sqlite", DSN: dsn, MaxConns: 1}, nil
	}, &calls
}

func newTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	supplier, _ := sqliteSupplier(t)
	opts = append([]Option{WithRegistry(meta.NewRegistry())}, opts...)
	db := Open(supplier, opts...)
	t.Cleanup(db.Close)
	return db
}

// countingEngine records EnsureTable calls; every other method is unused.
type countingEngine struct {
	storage.Engine
	mu      sync.Mutex
	ensures int
	forced  int
	closed  bool
}

func (e *countingEngine) Kind() string { return "counting" }

func (e *countingEngine) EnsureTable(_ context.Context, _ ddl.TableDef, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensures++
	if force {
		e.forced++
	}
	return nil
}

func (e *countingEngine) Close() { e.closed = true }

var (
	countingMu      sync.Mutex
	countingEngines []*countingEngine
)

func init() {
	storage.Register("counting", func(context.Context, storage.Config) (storage.Engine, error) {
		countingMu.Lock()
		defer countingMu.Unlock()
		e := &countingEngine{}
		countingEngines = append(countingEngines, e)
		return e, nil
	})
}

// blockingEngine parks Select until release is closed and reports whether
// it was closed underneath the call.
type blockingEngine struct {
	storage.Engine
	entered chan struct{}
	release chan struct{}
	closed  atomic.Bool
}

func (e *blockingEngine) Kind() string { return "blocking" }

func (e *blockingEngine) Select(context.Context, string, []string, string, ...any) ([]row.Row, error) {
	close(e.entered)
	<-e.release
	if e.closed.Load() {
		return nil, errors.New("select on a closed engine")
	}
	return nil, nil
}

func (e *blockingEngine) Close() { e.closed.Store(true) }

// blockingEngines maps a DSN to the engine the "blocking" factory returns.
var blockingEngines sync.Map

func init() {
	storage.Register("blocking", func(_ context.Context, cfg storage.Config) (storage.Engine, error) {
		e, ok := blockingEngines.Load(cfg.DSN)
		if !ok {
			return nil, errors.New("no blocking engine for " + cfg.DSN)
		}
		return e.(*blockingEngine), nil
	})
}

func TestOpenIsLazy(t *testing.T) {
	t.Parallel()

	supplier, calls := sqliteSupplier(t)
	db := Open(supplier, WithRegistry(meta.NewRegistry()))
	defer db.Close()

	if calls.Load() != 0 {
		t.Fatalf("Open called the supplier %d times, want 0", calls.Load())
	}
	if _, err := Describe[person](db); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 0 {
		t.Fatal("Describe must not open the engine")
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := EnsureTable[person](ctx, db); err != nil {
			t.Fatalf("EnsureTable error = %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("supplier calls = %d, want 1", calls.Load())
	}

	db.Close()
	if _, err := Find[person](ctx, db, ""); err != nil {
		t.Fatalf("Find after Close error = %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("supplier calls after reopen = %d, want 2", calls.Load())
	}
}

func TestConcurrentFirstUseOpensOnce(t *testing.T) {
	t.Parallel()

	supplier, calls := sqliteSupplier(t)
	db := Open(supplier)
	defer db.Close()

	var wg sync.WaitGroup
	engines := make([]storage.Engine, 16)
	for i := range engines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engines[i], _ = db.Engine(context.Background())
		}(i)
	}
	wg.Wait()

	for i, e := range engines {
		if e == nil || e != engines[0] {
			t.Fatalf("goroutine %d got engine %v", i, e)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("supplier calls = %d, want 1", calls.Load())
	}
}

func TestFailedOpenIsRetried(t *testing.T) {
	t.Parallel()

	good, _ := sqliteSupplier(t)
	var calls int
	db := Open(func() (storage.Config, error) {
		calls++
		if calls == 1 {
			return storage.Config{}, errors.New("context not ready")
		}
		if calls == 2 {
			return storage.Config{Kind: "no-such-kind"}, nil
		}
		return good()
	})
	defer db.Close()

	ctx := context.Background()
	if _, err := db.Engine(ctx); err == nil {
		t.Fatal("first open: want supplier error")
	}
	if _, err := db.Engine(ctx); !emerrors.IsStorage(err) {
		t.Fatalf("second open error = %v, want storage error", err)
	}
	if _, err := db.Engine(ctx); err != nil {
		t.Fatalf("third open error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("supplier calls = %d, want 3", calls)
	}
}

func TestNilSupplier(t *testing.T) {
	t.Parallel()

	if _, err := Open(nil).Engine(context.Background()); err == nil {
		t.Fatal("Engine with a nil supplier: want error")
	}
}

func TestEnsureTableSkipsAppliedDefinitions(t *testing.T) {
	t.Parallel()

	db := Open(func() (storage.Config, error) {
		return storage.Config{Kind: "counting"}, nil
	}, WithRegistry(meta.NewRegistry()))
	ctx := context.Background()

	eng, err := db.Engine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ce := eng.(*countingEngine)

	for i := 0; i < 3; i++ {
		if err := EnsureTable[person](ctx, db); err != nil {
			t.Fatal(err)
		}
	}
	if ce.ensures != 1 {
		t.Fatalf("engine EnsureTable calls = %d, want 1", ce.ensures)
	}

	if err := EnsureTable[person](ctx, db, Force()); err != nil {
		t.Fatal(err)
	}
	if err := EnsureTable[counter](ctx, db); err != nil {
		t.Fatal(err)
	}
	if ce.ensures != 3 || ce.forced != 1 {
		t.Fatalf("ensures = %d, forced = %d; want 3, 1", ce.ensures, ce.forced)
	}

	db.Close()
	if !ce.closed {
		t.Fatal("Close did not close the engine")
	}
	if err := EnsureTable[person](ctx, db); err != nil {
		t.Fatal(err)
	}
	next, _ := db.Engine(ctx)
	if next == eng || next.(*countingEngine).ensures != 1 {
		t.Fatal("a reopened engine must start with no applied definitions")
	}
}

func TestEnsureTableReportsConfigurationErrors(t *testing.T) {
	t.Parallel()

	type untabled struct {
		ID int64 `column:"id"`
	}
	db := newTestDB(t)
	err := EnsureTable[untabled](context.Background(), db)
	if !emerrors.IsConfiguration(err) {
		t.Fatalf("EnsureTable error = %v, want configuration error", err)
	}
}

func TestToRowAndFromRow(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	r, err := ToRow(db, &counter{ID: 5})
	if err != nil {
		t.Fatal(err)
	}
	want := row.Row{{Column: "id", Value: int64(5)}, {Column: "label", Value: ""}}
	if len(r) != 2 || r[0] != want[0] || r[1] != want[1] {
		t.Fatalf("ToRow = %v, want %v", r, want)
	}

	p, err := FromRow[person](db, row.Row{
		{Column: "id", Value: "p1"},
		{Column: "name", Value: row.Null},
		{Column: "unknown", Value: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "p1" || p.Name != nil {
		t.Fatalf("FromRow = %+v", p)
	}
}

func TestCloseWaitsForInFlightOperations(t *testing.T) {
	t.Parallel()

	e := &blockingEngine{entered: make(chan struct{}), release: make(chan struct{})}
	blockingEngines.Store(t.Name(), e)
	db := Open(func() (storage.Config, error) {
		return storage.Config{Kind: "blocking", DSN: t.Name()}, nil
	}, WithRegistry(meta.NewRegistry()))

	errc := make(chan error, 1)
	go func() {
		_, err := Find[person](context.Background(), db, "")
		errc <- err
	}()
	<-e.entered

	closed := make(chan struct{})
	go func() {
		db.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while a Find was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(e.release)
	if err := <-errc; err != nil {
		t.Fatalf("Find error = %v, want nil", err)
	}
	<-closed
	if !e.closed.Load() {
		t.Fatal("Close did not close the engine")
	}
}
