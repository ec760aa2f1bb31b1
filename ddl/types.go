package ddl

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: column name (unquoted; quoting happens at render time)
//   - Kind: logical type (TEXT, INTEGER, REAL, BLOB); dialects map it to a native type
//   - SQLType: explicit native type; when set it wins over Kind
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is the primary key
//   - Default: raw default expression (e.g., 'anon', CURRENT_TIMESTAMP)
type ColumnDef struct {
	Name       string
	Kind       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the table name (FQN) and an ordered list of columns. The FQN
// may be dotted ("schema.table"); renderers quote each segment as needed.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// PrimaryKey returns the primary-key column, if any.
func (t TableDef) PrimaryKey() (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// ColumnNames returns the column names in order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
