// Package row defines the flat, ordered row representation exchanged between
// the row mapper and storage engines.
//
// A Row is a sequence of (column, value) pairs. Values are restricted to the
// storage representations int64, float64, string, []byte and the Null marker.
// Storage engines may hand back other driver types (bool, time.Time, numeric
// text as []byte); the mapper coerces those on the way in.
package row

import "strings"

// nullMarker is the type of Null. It is unexported so Null is the only value.
type nullMarker struct{}

func (nullMarker) String() string { return "NULL" }

// Null marks an absent value. It is distinct from the string "null" and from
// an empty string.
var Null any = nullMarker{}

// IsNull reports whether v is the Null marker or a bare nil.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(nullMarker)
	return ok
}

// Pair is one column/value entry.
type Pair struct {
	Column string
	Value  any
}

// Row is an ordered sequence of pairs. Order is significant for positional
// binding.
type Row []Pair

// Columns returns the column names in order.
func (r Row) Columns() []string {
	out := make([]string, len(r))
	for i, p := range r {
		out[i] = p.Column
	}
	return out
}

// Values returns the values in order.
func (r Row) Values() []any {
	out := make([]any, len(r))
	for i, p := range r {
		out[i] = p.Value
	}
	return out
}

// Args returns the values in order with Null replaced by nil, ready to pass
// to database drivers.
func (r Row) Args() []any {
	out := make([]any, len(r))
	for i, p := range r {
		out[i] = DriverValue(p.Value)
	}
	return out
}

// Get returns the value for column and whether it was present.
func (r Row) Get(column string) (any, bool) {
	for _, p := range r {
		if p.Column == column {
			return p.Value, true
		}
	}
	return nil, false
}

// GetFold is like Get but matches the column name case-insensitively. Some
// engines fold unquoted identifiers to upper or lower case in result sets.
func (r Row) GetFold(column string) (any, bool) {
	if v, ok := r.Get(column); ok {
		return v, true
	}
	for _, p := range r {
		if strings.EqualFold(p.Column, column) {
			return p.Value, true
		}
	}
	return nil, false
}

// Without returns a copy of r omitting the named column.
func (r Row) Without(column string) Row {
	out := make(Row, 0, len(r))
	for _, p := range r {
		if p.Column != column {
			out = append(out, p)
		}
	}
	return out
}

// DriverValue maps Null to nil and passes every other value through.
func DriverValue(v any) any {
	if IsNull(v) {
		return nil
	}
	return v
}

// FromDriver maps a nil driver value to Null.
func FromDriver(v any) any {
	if v == nil {
		return Null
	}
	return v
}
