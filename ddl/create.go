// Package ddl defines a small, backend-agnostic model for table definitions
// and renders the canonical CREATE TABLE IF NOT EXISTS statement from it.
//
// The canonical form is the one SQLite accepts verbatim:
//
//	CREATE TABLE IF NOT EXISTS users (id INTEGER, name TEXT)
//
// Identifiers are emitted bare when they are plain ([A-Za-z_][A-Za-z0-9_]*)
// and double-quoted otherwise. Backend packages reuse the model and the
// validation here and supply their own quoting and type mapping.
package ddl

import (
	"fmt"
	"strings"
)

// Validate checks the parts every renderer relies on: a table name, at least
// one column, and non-empty column names.
func Validate(t TableDef) error {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("ddl: at least one column is required")
	}
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
	}
	return nil
}

// ColumnType returns c.SQLType when set and c.Kind otherwise, trimmed.
func ColumnType(c ColumnDef) string {
	if typ := strings.TrimSpace(c.SQLType); typ != "" {
		return typ
	}
	return strings.ToUpper(strings.TrimSpace(c.Kind))
}

// Options controls how RenderCreateTable formats a statement.
type Options struct {
	// Quote renders one identifier segment.
	Quote func(string) string
	// Type renders the native type of a column.
	Type func(ColumnDef) string
	// Prefix replaces "CREATE TABLE IF NOT EXISTS".
	Prefix string
}

// RenderCreateTable renders `<prefix> <table> (<col> <type>[ NOT NULL][ DEFAULT x][ PRIMARY KEY], ...)`
// on a single line. It is shared by the backend dialects.
func RenderCreateTable(t TableDef, o Options) (string, error) {
	if err := Validate(t); err != nil {
		return "", err
	}
	if o.Quote == nil {
		o.Quote = QuoteIdent
	}
	if o.Type == nil {
		o.Type = ColumnType
	}
	if o.Prefix == "" {
		o.Prefix = "CREATE TABLE IF NOT EXISTS"
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		typ := o.Type(c)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing type", name)
		}

		var sb strings.Builder
		sb.WriteString(o.Quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable && !c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		if c.PrimaryKey {
			sb.WriteString(" PRIMARY KEY")
		}
		cols = append(cols, sb.String())
	}

	return fmt.Sprintf("%s %s (%s)",
		o.Prefix,
		QuoteFQN(t.FQN, o.Quote),
		strings.Join(cols, ", "),
	), nil
}

// BuildCreateTableSQL renders the canonical statement for t.
func BuildCreateTableSQL(t TableDef) (string, error) {
	return RenderCreateTable(t, Options{})
}

// IsPlainIdent reports whether id can be emitted without quoting.
func IsPlainIdent(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// QuoteIdent double-quotes id unless it is plain, doubling embedded quotes.
func QuoteIdent(id string) string {
	if IsPlainIdent(id) {
		return id
	}
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// QuoteFQN splits fqn on dots and quotes each non-empty segment with quote.
func QuoteFQN(fqn string, quote func(string) string) string {
	parts := strings.Split(strings.TrimSpace(fqn), ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, quote(p))
	}
	return strings.Join(out, ".")
}
