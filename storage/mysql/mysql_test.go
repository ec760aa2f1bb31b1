package mysql

import (
	"context"
	"database/sql"
	"testing"

	"entitymap/ddl"
	"entitymap/storage"
	"entitymap/storage/sqlengine"

	_ "modernc.org/sqlite"
)

func TestDialectDDL(t *testing.T) {
	t.Parallel()

	def := ddl.TableDef{
		FQN: "app.users",
		Columns: []ddl.ColumnDef{
			{Name: "id", Kind: "TEXT", PrimaryKey: true},
			{Name: "age", Kind: "INTEGER", Nullable: true},
			{Name: "photo", Kind: "BLOB", Nullable: true},
		},
	}
	got, err := Dialect{}.CreateTableSQL(def)
	if err != nil {
		t.Fatalf("CreateTableSQL error = %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS `app`.`users` (`id` VARCHAR(255) PRIMARY KEY, `age` BIGINT, `photo` LONGBLOB)"
	if got != want {
		t.Fatalf("CreateTableSQL =\n  %s\nwant\n  %s", got, want)
	}
	if got := (Dialect{}).DropTableSQL("users"); got != "DROP TABLE IF EXISTS `users`" {
		t.Fatalf("DropTableSQL = %q", got)
	}
	if got := (Dialect{}).Quote("we`ird"); got != "`we``ird`" {
		t.Fatalf("Quote = %q", got)
	}
}

func TestParseDSNForcesClientFoundRows(t *testing.T) {
	t.Parallel()

	c, err := parseDSN("app:secret@tcp(localhost:3306)/entities")
	if err != nil {
		t.Fatalf("parseDSN error = %v", err)
	}
	if !c.ClientFoundRows {
		t.Fatal("ClientFoundRows = false, want true")
	}
	if c.DBName != "entities" || c.Addr != "localhost:3306" {
		t.Fatalf("parsed %q at %q", c.DBName, c.Addr)
	}

	if _, err := parseDSN("app:secret@tcp(localhost:3306)entities"); err == nil {
		t.Fatal("parseDSN without the database slash: want error")
	}
}

// TestMultiInsert runs the bulk path against SQLite, which accepts backquoted
// identifiers and ? placeholders.
func TestMultiInsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, "CREATE TABLE `users` (`id` INTEGER, `name` TEXT)"); err != nil {
		t.Fatal(err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	rows := [][]any{{int64(1), "a"}, {int64(2), nil}, {int64(3), "c"}}
	n, err := multiInsert(ctx, tx, "users", []string{"id", "name"}, rows)
	if err != nil {
		_ = tx.Rollback()
		t.Fatalf("multiInsert error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("multiInsert = %d, want 3", n)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE name IS NULL").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("NULL names = %d, want 1", count)
	}
}

func TestRegistrationUsesNewEngineHook(t *testing.T) {
	orig := newEngine
	t.Cleanup(func() { newEngine = orig })

	called := false
	newEngine = func(context.Context, storage.Config) (*sqlengine.Engine, error) {
		called = true
		return sqlengine.New(Dialect{}, nil, nil), nil
	}
	eng, err := storage.New(context.Background(), storage.Config{Kind: "mysql"})
	if err != nil || !called {
		t.Fatalf("storage.New = %v, %v; hook called = %v", eng, err, called)
	}
	if eng.Kind() != "mysql" {
		t.Fatalf("Kind() = %q", eng.Kind())
	}
}
