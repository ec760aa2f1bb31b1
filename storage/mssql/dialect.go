package mssql

import (
	"fmt"
	"strconv"
	"strings"

	"entitymap/ddl"
	"entitymap/storage/sqlengine"
)

// MapType maps a column kind to a SQL Server column type. Key columns get
// bounded types because (N)VARCHAR(MAX) cannot be indexed.
func MapType(kind string, key bool) string {
	switch strings.ToUpper(strings.TrimSpace(kind)) {
	case "INTEGER", "INT", "BIGINT", "BOOL", "BOOLEAN":
		return "BIGINT"
	case "REAL", "FLOAT", "DOUBLE":
		return "FLOAT"
	case "BLOB", "BYTES":
		if key {
			return "VARBINARY(900)"
		}
		return "VARBINARY(MAX)"
	default:
		if key {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

// Dialect is the SQL Server sqlengine.Dialect.
type Dialect struct{}

var _ sqlengine.Dialect = Dialect{}

func (Dialect) Name() string              { return "mssql" }
func (Dialect) Quote(ident string) string { return msIdent(ident) }
func (Dialect) Placeholder(n int) string  { return "@p" + strconv.Itoa(n) }

// CreateTableSQL renders CREATE TABLE behind an OBJECT_ID guard; SQL Server
// has no CREATE TABLE IF NOT EXISTS.
func (d Dialect) CreateTableSQL(def ddl.TableDef) (string, error) {
	return ddl.RenderCreateTable(def, ddl.Options{
		Quote:  msIdent,
		Type:   columnType,
		Prefix: fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE", objectName(d, def.FQN)),
	})
}

// DropTableSQL implements sqlengine.Dialect.
func (d Dialect) DropTableSQL(table string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s",
		objectName(d, table), sqlengine.QuoteTable(d, table))
}

func columnType(c ddl.ColumnDef) string {
	if t := strings.TrimSpace(c.SQLType); t != "" {
		return t
	}
	return MapType(c.Kind, c.PrimaryKey)
}

// msIdent brackets a single identifier segment, doubling closing brackets.
func msIdent(id string) string { return "[" + strings.ReplaceAll(id, "]", "]]") + "]" }

// objectName renders the quoted table name as the body of an N'' literal.
func objectName(d Dialect, table string) string {
	return strings.ReplaceAll(sqlengine.QuoteTable(d, table), "'", "''")
}
