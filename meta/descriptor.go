package meta

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// ColumnDescriptor describes one persisted column and the struct field bound
// to it.
type ColumnDescriptor struct {
	// Name is the resolved column name.
	Name string
	// Type is the declared storage type.
	Type Type
	// FieldName is the Go identifier of the bound field.
	FieldName string
	// PrimaryKey marks the entity's key column.
	PrimaryKey bool

	index []int
}

// Field returns the bound field of v, which must be an addressable value of
// the descriptor's struct type.
func (c ColumnDescriptor) Field(v reflect.Value) reflect.Value {
	return v.FieldByIndex(c.index)
}

// EntityDescriptor is the resolved, immutable metadata of one entity type.
// Descriptors are created by a Registry and shared by every caller.
type EntityDescriptor struct {
	goType      reflect.Type
	table       string
	columns     []ColumnDescriptor
	byName      map[string]int
	pk          int
	fingerprint uint64
}

func newEntityDescriptor(t reflect.Type, table string, cols []ColumnDescriptor) *EntityDescriptor {
	d := &EntityDescriptor{
		goType:  t,
		table:   table,
		columns: cols,
		byName:  make(map[string]int, len(cols)),
		pk:      -1,
	}
	var sig strings.Builder
	sig.WriteString(table)
	for i, c := range cols {
		d.byName[c.Name] = i
		if c.PrimaryKey {
			d.pk = i
		}
		sig.WriteString("\x00" + c.Name + ":" + string(c.Type) + ":" + strconv.FormatBool(c.PrimaryKey))
	}
	d.fingerprint = xxh3.HashString(sig.String())
	return d
}

// GoType returns the struct type the descriptor was built from.
func (d *EntityDescriptor) GoType() reflect.Type { return d.goType }

// Table returns the table name.
func (d *EntityDescriptor) Table() string { return d.table }

// Columns returns the column descriptors in declaration order. The returned
// slice is a copy.
func (d *EntityDescriptor) Columns() []ColumnDescriptor {
	out := make([]ColumnDescriptor, len(d.columns))
	copy(out, d.columns)
	return out
}

// ColumnNames returns the column names in declaration order.
func (d *EntityDescriptor) ColumnNames() []string {
	out := make([]string, len(d.columns))
	for i, c := range d.columns {
		out[i] = c.Name
	}
	return out
}

// NumColumns returns the number of columns.
func (d *EntityDescriptor) NumColumns() int { return len(d.columns) }

// ColumnAt returns the i-th column.
func (d *EntityDescriptor) ColumnAt(i int) ColumnDescriptor { return d.columns[i] }

// Column looks up a column by resolved name.
func (d *EntityDescriptor) Column(name string) (ColumnDescriptor, bool) {
	i, ok := d.byName[name]
	if !ok {
		return ColumnDescriptor{}, false
	}
	return d.columns[i], true
}

// PrimaryKey returns the primary-key column, if one is declared.
func (d *EntityDescriptor) PrimaryKey() (ColumnDescriptor, bool) {
	if d.pk < 0 {
		return ColumnDescriptor{}, false
	}
	return d.columns[d.pk], true
}

// Fingerprint is a hash of the table name and column layout. Two descriptors
// with equal fingerprints produce the same DDL.
func (d *EntityDescriptor) Fingerprint() uint64 { return d.fingerprint }

func (d *EntityDescriptor) String() string {
	return d.goType.String() + "(" + d.table + ")"
}
