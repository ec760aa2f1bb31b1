// Package mapper converts entity values to rows and back using an entity
// descriptor for column order and type coercion.
//
// The mapper is stateless; every function is safe for concurrent use.
package mapper

import (
	"fmt"
	"reflect"

	emerrors "entitymap/errors"
	"entitymap/internal/metrics"
	"entitymap/meta"
	"entitymap/row"
)

// ToRow reads entity, a struct value or a non-nil pointer to one, and returns
// one pair per descriptor column in declaration order.
func ToRow(d *meta.EntityDescriptor, entity any) (r row.Row, err error) {
	defer func() { metrics.RecordMapping(d.Table(), "to_row", err) }()

	v, err := structValue(d, entity)
	if err != nil {
		return nil, err
	}

	out := make(row.Row, 0, d.NumColumns())
	for i := 0; i < d.NumColumns(); i++ {
		col := d.ColumnAt(i)
		val, err := toStorage(d.Table(), col, col.Field(v))
		if err != nil {
			return nil, err
		}
		out = append(out, row.Pair{Column: col.Name, Value: val})
	}
	return out, nil
}

// FromRow builds a new instance of the descriptor's type from r and returns a
// pointer to it. Pairs naming no column are ignored; columns missing from r
// keep their zero value.
func FromRow(d *meta.EntityDescriptor, r row.Row) (any, error) {
	ptr := reflect.New(d.GoType())
	if err := Scan(d, r, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Interface(), nil
}

// Scan is like FromRow but fills dst, a non-nil pointer to the descriptor's
// type. Fields whose columns are absent from r are left untouched.
func Scan(d *meta.EntityDescriptor, r row.Row, dst any) (err error) {
	defer func() { metrics.RecordMapping(d.Table(), "from_row", err) }()

	v, err := pointerValue(d, dst)
	if err != nil {
		return err
	}
	for _, p := range r {
		col, ok := d.Column(p.Column)
		if !ok {
			continue
		}
		if err := fromStorage(d.Table(), col, p.Value, col.Field(v)); err != nil {
			return err
		}
	}
	return nil
}

// Assign coerces value into the field bound to column on dst, a non-nil
// pointer to the descriptor's type.
func Assign(d *meta.EntityDescriptor, dst any, column string, value any) error {
	v, err := pointerValue(d, dst)
	if err != nil {
		return err
	}
	col, ok := d.Column(column)
	if !ok {
		return emerrors.NewConfigurationError(d.GoType().String(), "", fmt.Sprintf("no column %q", column))
	}
	return fromStorage(d.Table(), col, value, col.Field(v))
}

// Value coerces v to the storage representation of column, as ToRow would
// for a field holding v. A nil v is Null.
func Value(d *meta.EntityDescriptor, column string, v any) (any, error) {
	col, ok := d.Column(column)
	if !ok {
		return nil, emerrors.NewConfigurationError(d.GoType().String(), "", fmt.Sprintf("no column %q", column))
	}
	if v == nil {
		return row.Null, nil
	}
	return toStorage(d.Table(), col, reflect.ValueOf(v))
}

// structValue returns an addressable copy of entity so that pointer-receiver
// marshalers are reachable.
func structValue(d *meta.EntityDescriptor, entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, emerrors.NewTypeMismatchError(d.Table(), "*", entity, d.GoType().String())
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Type() != d.GoType() {
		return reflect.Value{}, emerrors.NewTypeMismatchError(d.Table(), "*", entity, d.GoType().String())
	}
	if v.CanAddr() {
		return v, nil
	}
	cp := reflect.New(v.Type()).Elem()
	cp.Set(v)
	return cp, nil
}

func pointerValue(d *meta.EntityDescriptor, dst any) (reflect.Value, error) {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Type().Elem() != d.GoType() {
		return reflect.Value{}, emerrors.NewTypeMismatchError(d.Table(), "*", dst, "*"+d.GoType().String())
	}
	return v.Elem(), nil
}
