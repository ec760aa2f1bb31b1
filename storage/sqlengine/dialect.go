// Package sqlengine implements storage.Engine once for every SQL backend.
// A backend supplies a Dialect (quoting, placeholders, DDL) and a Conn (the
// driver-level handle); statement assembly and row handling live here.
package sqlengine

import (
	"fmt"
	"strings"

	"entitymap/ddl"
)

// Dialect captures the SQL differences between backends.
type Dialect interface {
	// Name is the storage kind, e.g. "postgres".
	Name() string
	// Quote quotes one identifier segment.
	Quote(ident string) string
	// Placeholder returns the bind marker for the n-th argument (1-based).
	Placeholder(n int) string
	// CreateTableSQL renders a create-if-absent statement.
	CreateTableSQL(def ddl.TableDef) (string, error)
	// DropTableSQL renders a drop-if-present statement.
	DropTableSQL(table string) string
}

// QuoteTable quotes a possibly dotted table name with d.
func QuoteTable(d Dialect, table string) string {
	return ddl.QuoteFQN(table, d.Quote)
}

func quoteList(d Dialect, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Quote(c)
	}
	return strings.Join(out, ", ")
}

func placeholders(d Dialect, from, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.Placeholder(from + i)
	}
	return strings.Join(out, ", ")
}

// InsertSQL renders `INSERT INTO t (c1, c2) VALUES (p1, p2)`.
func InsertSQL(d Dialect, table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteTable(d, table), quoteList(d, columns), placeholders(d, 1, len(columns)))
}

// MultiInsertSQL renders one INSERT carrying rows value tuples.
func MultiInsertSQL(d Dialect, table string, columns []string, rows int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", QuoteTable(d, table), quoteList(d, columns))
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		sb.WriteString(placeholders(d, r*len(columns)+1, len(columns)))
		sb.WriteByte(')')
	}
	return sb.String()
}

// UpdateSQL renders `UPDATE t SET c1 = p1, c2 = p2 WHERE key = pN`. The key
// placeholder comes last.
func UpdateSQL(d Dialect, table string, columns []string, key string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = d.Quote(c) + " = " + d.Placeholder(i+1)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		QuoteTable(d, table), strings.Join(sets, ", "), d.Quote(key), d.Placeholder(len(columns)+1))
}

// SelectSQL renders `SELECT c1, c2 FROM t[ WHERE where]`.
func SelectSQL(d Dialect, table string, columns []string, where string) string {
	q := fmt.Sprintf("SELECT %s FROM %s", quoteList(d, columns), QuoteTable(d, table))
	if w := strings.TrimSpace(where); w != "" {
		q += " WHERE " + w
	}
	return q
}

// KeyCondition renders `key = p1`.
func KeyCondition(d Dialect, key string) string {
	return d.Quote(key) + " = " + d.Placeholder(1)
}

// DeleteSQL renders `DELETE FROM t WHERE key = p1`.
func DeleteSQL(d Dialect, table, key string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s", QuoteTable(d, table), KeyCondition(d, key))
}
