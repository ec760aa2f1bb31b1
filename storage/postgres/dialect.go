package postgres

import (
	"strconv"
	"strings"

	"entitymap/ddl"
	"entitymap/storage/sqlengine"
)

// MapType maps a column kind to a Postgres column type.
func MapType(kind string) string {
	switch strings.ToUpper(strings.TrimSpace(kind)) {
	case "INTEGER", "INT", "BIGINT", "BOOL", "BOOLEAN":
		return "BIGINT"
	case "REAL", "FLOAT", "DOUBLE":
		return "DOUBLE PRECISION"
	case "BLOB", "BYTES":
		return "BYTEA"
	default:
		return "TEXT"
	}
}

// Dialect is the Postgres sqlengine.Dialect. Identifiers are always quoted.
type Dialect struct{}

var _ sqlengine.Dialect = Dialect{}

func (Dialect) Name() string              { return "postgres" }
func (Dialect) Quote(ident string) string { return pgIdent(ident) }
func (Dialect) Placeholder(n int) string  { return "$" + strconv.Itoa(n) }

// CreateTableSQL implements sqlengine.Dialect.
func (Dialect) CreateTableSQL(def ddl.TableDef) (string, error) {
	return ddl.RenderCreateTable(def, ddl.Options{Quote: pgIdent, Type: columnType})
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

// pgIdent quotes a single identifier segment.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
