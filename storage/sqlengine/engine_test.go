package sqlengine

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"entitymap/ddl"
	"entitymap/row"
)

// dollarDialect is a Postgres-like test dialect.
type dollarDialect struct{}

func (dollarDialect) Name() string                 { return "fake" }
func (dollarDialect) Quote(id string) string       { return `"` + id + `"` }
func (dollarDialect) Placeholder(n int) string     { return "$" + strconv.Itoa(n) }
func (dollarDialect) DropTableSQL(t string) string { return "DROP TABLE IF EXISTS " + t }
func (dollarDialect) CreateTableSQL(def ddl.TableDef) (string, error) {
	return ddl.BuildCreateTableSQL(def)
}

type call struct {
	query string
	args  []any
}

type fakeConn struct {
	execs   []call
	queries []call
	copies  int
	result  []row.Row
	err     error
	closed  bool
}

func (f *fakeConn) Exec(_ context.Context, q string, args ...any) (int64, error) {
	f.execs = append(f.execs, call{q, args})
	return 1, f.err
}

func (f *fakeConn) Query(_ context.Context, q string, args ...any) ([]row.Row, error) {
	f.queries = append(f.queries, call{q, args})
	return f.result, f.err
}

func (f *fakeConn) CopyFrom(_ context.Context, _ string, _ []string, rows [][]any) (int64, error) {
	f.copies++
	return int64(len(rows)), f.err
}

func (f *fakeConn) Close() { f.closed = true }

func TestStatementBuilders(t *testing.T) {
	t.Parallel()

	d := dollarDialect{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"insert", InsertSQL(d, "public.users", []string{"id", "name"}), `INSERT INTO "public"."users" ("id", "name") VALUES ($1, $2)`},
		{"multi insert", MultiInsertSQL(d, "users", []string{"id", "name"}, 2), `INSERT INTO "users" ("id", "name") VALUES ($1, $2), ($3, $4)`},
		{"update", UpdateSQL(d, "users", []string{"name", "age"}, "id"), `UPDATE "users" SET "name" = $1, "age" = $2 WHERE "id" = $3`},
		{"select all", SelectSQL(d, "users", []string{"id"}, "  "), `SELECT "id" FROM "users"`},
		{"select where", SelectSQL(d, "users", []string{"id"}, "age > $1"), `SELECT "id" FROM "users" WHERE age > $1`},
		{"delete", DeleteSQL(d, "users", "id"), `DELETE FROM "users" WHERE "id" = $1`},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s:\n got %s\nwant %s", tt.name, tt.got, tt.want)
		}
	}
}

func TestEngineEnsureTable(t *testing.T) {
	t.Parallel()

	def := ddl.TableDef{FQN: "users", Columns: []ddl.ColumnDef{
		{Name: "id", Kind: "INTEGER", Nullable: true},
		{Name: "name", Kind: "TEXT", Nullable: true},
	}}

	conn := &fakeConn{}
	e := New(dollarDialect{}, conn, nil)
	if err := e.EnsureTable(context.Background(), def, false); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}
	if len(conn.execs) != 1 || conn.execs[0].query != "CREATE TABLE IF NOT EXISTS users (id INTEGER, name TEXT)" {
		t.Fatalf("execs = %+v", conn.execs)
	}

	conn = &fakeConn{}
	e = New(dollarDialect{}, conn, nil)
	if err := e.EnsureTable(context.Background(), def, true); err != nil {
		t.Fatalf("EnsureTable(force) error = %v", err)
	}
	if len(conn.execs) != 2 || !strings.HasPrefix(conn.execs[0].query, "DROP TABLE") {
		t.Fatalf("force execs = %+v", conn.execs)
	}

	conn = &fakeConn{}
	e = New(dollarDialect{}, conn, nil)
	if err := e.EnsureTable(context.Background(), ddl.TableDef{}, false); err == nil {
		t.Fatal("EnsureTable(empty def) error = nil")
	}
	if len(conn.execs) != 0 {
		t.Fatalf("Exec called for an invalid definition")
	}
}

func TestEngineWritesTranslateNull(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	e := New(dollarDialect{}, conn, nil)
	ctx := context.Background()

	r := row.Row{{Column: "id", Value: int64(5)}, {Column: "name", Value: row.Null}}
	if err := e.Insert(ctx, "users", r); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if got := conn.execs[0].args; !reflect.DeepEqual(got, []any{int64(5), nil}) {
		t.Fatalf("insert args = %#v", got)
	}

	n, err := e.Update(ctx, "users", r[0], r)
	if err != nil || n != 1 {
		t.Fatalf("Update() = %d, %v", n, err)
	}
	upd := conn.execs[1]
	if upd.query != `UPDATE "users" SET "name" = $1 WHERE "id" = $2` {
		t.Fatalf("update query = %s", upd.query)
	}
	if !reflect.DeepEqual(upd.args, []any{nil, int64(5)}) {
		t.Fatalf("update args = %#v", upd.args)
	}

	if _, err := e.Delete(ctx, "users", r[0]); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if conn.execs[2].query != `DELETE FROM "users" WHERE "id" = $1` {
		t.Fatalf("delete query = %s", conn.execs[2].query)
	}

	if err := e.Insert(ctx, "users", nil); err == nil {
		t.Fatal("Insert(empty row) error = nil")
	}
}

func TestEngineUpdateKeyOnlyChecksExistence(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{result: []row.Row{{{Column: "id", Value: int64(1)}}}}
	e := New(dollarDialect{}, conn, nil)
	key := row.Pair{Column: "id", Value: int64(1)}

	n, err := e.Update(context.Background(), "tags", key, row.Row{key})
	if err != nil || n != 1 {
		t.Fatalf("Update() = %d, %v; want 1, nil", n, err)
	}
	if len(conn.execs) != 0 || len(conn.queries) != 1 {
		t.Fatalf("execs=%d queries=%d; want 0, 1", len(conn.execs), len(conn.queries))
	}
}

func TestEngineGetAndSelect(t *testing.T) {
	t.Parallel()

	want := row.Row{{Column: "id", Value: int64(7)}}
	conn := &fakeConn{result: []row.Row{want}}
	e := New(dollarDialect{}, conn, nil)
	ctx := context.Background()

	got, ok, err := e.Get(ctx, "users", []string{"id"}, row.Pair{Column: "id", Value: int64(7)})
	if err != nil || !ok || !reflect.DeepEqual(got, want) {
		t.Fatalf("Get() = %v, %v, %v", got, ok, err)
	}

	if _, err := e.Select(ctx, "users", []string{"id"}, "name = $1", row.Null); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if args := conn.queries[1].args; !reflect.DeepEqual(args, []any{nil}) {
		t.Fatalf("select args = %#v, want [nil]", args)
	}

	conn.result = nil
	if _, ok, _ := e.Get(ctx, "users", []string{"id"}, row.Pair{Column: "id", Value: int64(8)}); ok {
		t.Fatal("Get() reported a missing row as found")
	}
}

func TestEngineCopyFromValidatesShape(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	e := New(dollarDialect{}, conn, nil)
	ctx := context.Background()

	if _, err := e.CopyFrom(ctx, "users", nil, [][]any{{1}}); err == nil {
		t.Fatal("CopyFrom(no columns) error = nil")
	}
	if _, err := e.CopyFrom(ctx, "users", []string{"id", "name"}, [][]any{{1}}); err == nil {
		t.Fatal("CopyFrom(short row) error = nil")
	}
	if n, err := e.CopyFrom(ctx, "users", []string{"id"}, nil); n != 0 || err != nil {
		t.Fatalf("CopyFrom(no rows) = %d, %v", n, err)
	}
	if conn.copies != 0 {
		t.Fatalf("conn.CopyFrom called %d times, want 0", conn.copies)
	}
	if n, err := e.CopyFrom(ctx, "users", []string{"id"}, [][]any{{1}, {2}}); n != 2 || err != nil {
		t.Fatalf("CopyFrom() = %d, %v", n, err)
	}
}

func TestEngineWrapsConnErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	e := New(dollarDialect{}, &fakeConn{err: boom}, nil)

	err := e.Insert(context.Background(), "users", row.Row{{Column: "id", Value: int64(1)}})
	if !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), "fake: insert:") {
		t.Fatalf("Insert() error = %v", err)
	}
}

type fakeScanner struct {
	cols []string
	data [][]any
	pos  int
}

func (s *fakeScanner) Columns() ([]string, error) { return s.cols, nil }
func (s *fakeScanner) Err() error                 { return nil }

func (s *fakeScanner) Next() bool {
	s.pos++
	return s.pos <= len(s.data)
}

func (s *fakeScanner) Scan(dest ...any) error {
	for i, v := range s.data[s.pos-1] {
		*(dest[i].(*any)) = v
	}
	return nil
}

func TestScanRows(t *testing.T) {
	t.Parallel()

	rows, err := ScanRows(&fakeScanner{
		cols: []string{"id", "name"},
		data: [][]any{{int64(1), "a"}, {int64(2), nil}},
	})
	if err != nil {
		t.Fatalf("ScanRows() error = %v", err)
	}
	want := []row.Row{
		{{Column: "id", Value: int64(1)}, {Column: "name", Value: "a"}},
		{{Column: "id", Value: int64(2)}, {Column: "name", Value: row.Null}},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("ScanRows() = %v, want %v", rows, want)
	}
}
