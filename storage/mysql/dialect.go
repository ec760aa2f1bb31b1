package mysql

import (
	"strings"

	"entitymap/ddl"
	"entitymap/storage/sqlengine"
)

// MapType maps a column kind to a MySQL column type. Key columns get bounded
// types because TEXT and BLOB keys need a prefix length.
func MapType(kind string, key bool) string {
	switch strings.ToUpper(strings.TrimSpace(kind)) {
	case "INTEGER", "INT", "BIGINT", "BOOL", "BOOLEAN":
		return "BIGINT"
	case "REAL", "FLOAT", "DOUBLE":
		return "DOUBLE"
	case "BLOB", "BYTES":
		if key {
			return "VARBINARY(255)"
		}
		return "LONGBLOB"
	default:
		if key {
			return "VARCHAR(255)"
		}
		return "LONGTEXT"
	}
}

// Dialect is the MySQL sqlengine.Dialect.
type Dialect struct{}

var _ sqlengine.Dialect = Dialect{}

func (Dialect) Name() string              { return "mysql" }
func (Dialect) Quote(ident string) string { return myIdent(ident) }
func (Dialect) Placeholder(int) string    { return "?" }

// CreateTableSQL implements sqlengine.Dialect.
func (Dialect) CreateTableSQL(def ddl.TableDef) (string, error) {
	return ddl.RenderCreateTable(def, ddl.Options{Quote: myIdent, Type: columnType})
}

// DropTableSQL implements sqlengine.Dialect.
func (d Dialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + sqlengine.QuoteTable(d, table)
}

func columnType(c ddl.ColumnDef) string {
	if t := strings.TrimSpace(c.SQLType); t != "" {
		return t
	}
	return MapType(c.Kind, c.PrimaryKey)
}

// myIdent backquotes a single identifier segment.
func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }
