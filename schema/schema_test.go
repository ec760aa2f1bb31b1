package schema

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"entitymap/ddl"
	emerrors "entitymap/errors"
	"entitymap/meta"
	"entitymap/row"
	"entitymap/storage"
	"entitymap/storage/sqlite"
)

type user struct {
	ID   int64   `column:"id,INTEGER"`
	Name *string `column:"name"`
}

func (user) TableName() string { return "users" }

type note struct {
	ID    string  `column:"id,pk"`
	Body  string  `column:"body"`
	Score float64 `column:"score,REAL"`
	Raw   []byte  `column:"raw,BLOB"`
}

func (note) TableName() string { return "notes" }

// recordingEngine captures EnsureTable calls and fails on demand.
type recordingEngine struct {
	storage.Engine
	defs   []ddl.TableDef
	forced []bool
	err    error
}

func (e *recordingEngine) Kind() string { return "fake" }

func (e *recordingEngine) EnsureTable(_ context.Context, def ddl.TableDef, force bool) error {
	e.defs = append(e.defs, def)
	e.forced = append(e.forced, force)
	return e.err
}

func describe[T any](t *testing.T) *meta.EntityDescriptor {
	t.Helper()
	d, err := meta.DescribeOf[T]()
	if err != nil {
		t.Fatalf("DescribeOf error = %v", err)
	}
	return d
}

func TestCreateTableSQLUsersExample(t *testing.T) {
	t.Parallel()

	got, err := CreateTableSQL(describe[user](t))
	if err != nil {
		t.Fatalf("CreateTableSQL error = %v", err)
	}
	if want := "CREATE TABLE IF NOT EXISTS users (id INTEGER, name TEXT)"; got != want {
		t.Fatalf("CreateTableSQL =\n  %s\nwant\n  %s", got, want)
	}
}

func TestTableDef(t *testing.T) {
	t.Parallel()

	got := TableDef(describe[note](t))
	want := ddl.TableDef{
		FQN: "notes",
		Columns: []ddl.ColumnDef{
			{Name: "id", Kind: "TEXT", PrimaryKey: true},
			{Name: "body", Kind: "TEXT", Nullable: true},
			{Name: "score", Kind: "REAL", Nullable: true},
			{Name: "raw", Kind: "BLOB", Nullable: true},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TableDef =\n  %+v\nwant\n  %+v", got, want)
	}
}

func TestEnsureTablePassesDefinitionAndForce(t *testing.T) {
	t.Parallel()

	eng := &recordingEngine{}
	d := describe[note](t)
	if err := EnsureTable(context.Background(), eng, d, true); err != nil {
		t.Fatalf("EnsureTable error = %v", err)
	}
	if len(eng.defs) != 1 || !eng.forced[0] {
		t.Fatalf("calls = %d, forced = %v", len(eng.defs), eng.forced)
	}
	if !reflect.DeepEqual(eng.defs[0], TableDef(d)) {
		t.Fatalf("engine got %+v", eng.defs[0])
	}
}

func TestEnsureTableWrapsEngineErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	eng := &recordingEngine{err: cause}
	err := EnsureTable(context.Background(), eng, describe[user](t), false)

	var se *emerrors.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StorageError", err)
	}
	if se.Op != "ensure_table" || se.Table != "users" {
		t.Fatalf("StorageError = %+v", se)
	}
	if !errors.Is(err, cause) || !emerrors.IsStorage(err) {
		t.Fatalf("error %v does not unwrap to the engine error", err)
	}
}

func TestEnsureTableAgainstSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	eng, err := sqlite.Open(ctx, storage.Config{DSN: filepath.Join(t.TempDir(), "schema.db")})
	if err != nil {
		t.Fatalf("sqlite.Open error = %v", err)
	}
	defer eng.Close()

	d := describe[note](t)
	for i := 0; i < 2; i++ {
		if err := EnsureTable(ctx, eng, d, false); err != nil {
			t.Fatalf("EnsureTable #%d error = %v", i+1, err)
		}
	}
	r := row.Row{
		{Column: "id", Value: "n1"},
		{Column: "body", Value: row.Null},
		{Column: "score", Value: 1.5},
		{Column: "raw", Value: []byte{0xff}},
	}
	if err := eng.Insert(ctx, "notes", r); err != nil {
		t.Fatalf("Insert error = %v", err)
	}
	if err := eng.Insert(ctx, "notes", r); err == nil {
		t.Fatal("second Insert with the same key: want a primary key violation")
	}

	if err := EnsureTable(ctx, eng, d, true); err != nil {
		t.Fatalf("forced EnsureTable error = %v", err)
	}
	rows, err := eng.Select(ctx, "notes", d.ColumnNames(), "")
	if err != nil || len(rows) != 0 {
		t.Fatalf("after force: rows = %v, err = %v", rows, err)
	}
}
