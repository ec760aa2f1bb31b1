package sqlite

import (
	"strings"

	"entitymap/ddl"
	"entitymap/storage/sqlengine"
)

// MapType maps a column kind to a SQLite column type. SQLite is dynamically
// typed, so the canonical affinities are used as-is.
func MapType(kind string) string {
	switch strings.ToUpper(strings.TrimSpace(kind)) {
	case "INTEGER", "INT", "BIGINT", "BOOL", "BOOLEAN":
		return "INTEGER"
	case "REAL", "FLOAT", "DOUBLE":
		return "REAL"
	case "BLOB", "BYTES":
		return "BLOB"
	default:
		return "TEXT"
	}
}

// Dialect is the SQLite sqlengine.Dialect. Its CREATE TABLE output is the
// canonical form rendered by package ddl.
type Dialect struct{}

var _ sqlengine.Dialect = Dialect{}

func (Dialect) Name() string              { return "sqlite" }
func (Dialect) Quote(ident string) string { return ddl.QuoteIdent(ident) }
func (Dialect) Placeholder(int) string    { return "?" }

// CreateTableSQL implements sqlengine.Dialect.
func (Dialect) CreateTableSQL(def ddl.TableDef) (string, error) {
	return ddl.RenderCreateTable(def, ddl.Options{Type: columnType})
}

// DropTableSQL implements sqlengine.Dialect.
func (d Dialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + sqlengine.QuoteTable(d, table)
}

func columnType(c ddl.ColumnDef) string {
	if t := strings.TrimSpace(c.SQLType); t != "" {
		return t
	}
	return MapType(c.Kind)
}
