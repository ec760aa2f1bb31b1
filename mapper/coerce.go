package mapper

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	emerrors "entitymap/errors"
	"entitymap/meta"
	"entitymap/row"
)

var (
	timeType            = reflect.TypeOf(time.Time{})
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// Bounds of the float64 range that converts to int64 without overflow.
// 2^63 itself is not representable as int64.
const (
	minInt64Float = -9223372036854775808.0
	maxInt64Float = 9223372036854775808.0
)

func valueOf(v reflect.Value) any {
	if v.IsValid() && v.CanInterface() {
		return v.Interface()
	}
	return fmt.Sprintf("<%s>", v.Type())
}

// toStorage coerces a field value to the representation of col.Type.
func toStorage(table string, col meta.ColumnDescriptor, fv reflect.Value) (any, error) {
	for fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return row.Null, nil
		}
		fv = fv.Elem()
	}
	if fv.Kind() == reflect.Slice && fv.IsNil() {
		return row.Null, nil
	}

	mismatch := func() error {
		return emerrors.NewTypeMismatchError(table, col.Name, valueOf(fv), string(col.Type))
	}

	switch col.Type {
	case meta.TypeInteger:
		switch fv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return fv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			u := fv.Uint()
			if u > math.MaxInt64 {
				return nil, mismatch()
			}
			return int64(u), nil
		case reflect.Float32, reflect.Float64:
			f := math.Trunc(fv.Float())
			if math.IsNaN(f) || f < minInt64Float || f >= maxInt64Float {
				return nil, mismatch()
			}
			return int64(f), nil
		}
		return nil, mismatch()

	case meta.TypeReal:
		switch fv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(fv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return float64(fv.Uint()), nil
		case reflect.Float32, reflect.Float64:
			return fv.Float(), nil
		}
		return nil, mismatch()

	case meta.TypeBlob:
		// Raw bytes only: a marshaler is not consulted here.
		if isByteSlice(fv.Type()) {
			b := make([]byte, fv.Len())
			reflect.Copy(reflect.ValueOf(b), fv)
			return b, nil
		}
		return nil, mismatch()

	default:
		s, ok, err := toText(fv)
		if err != nil {
			return nil, emerrors.NewTypeMismatchError(table, col.Name, valueOf(fv), string(col.Type)+" ("+err.Error()+")")
		}
		if !ok {
			return nil, mismatch()
		}
		return s, nil
	}
}

// toText renders fv as TEXT. Only forms fromText can parse back are
// accepted, so a type that merely implements fmt.Stringer is a mismatch.
func toText(fv reflect.Value) (string, bool, error) {
	if fv.Type() == timeType {
		return fv.Interface().(time.Time).Format(time.RFC3339Nano), true, nil
	}
	if m, ok := implementer(fv, textMarshalerType); ok {
		b, err := m.(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", false, err
		}
		return string(b), true, nil
	}
	switch fv.Kind() {
	case reflect.String:
		return fv.String(), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(fv.Int(), 10), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(fv.Uint(), 10), true, nil
	case reflect.Float32:
		return strconv.FormatFloat(fv.Float(), 'g', -1, 32), true, nil
	case reflect.Float64:
		return strconv.FormatFloat(fv.Float(), 'g', -1, 64), true, nil
	case reflect.Bool:
		return strconv.FormatBool(fv.Bool()), true, nil
	}
	return "", false, nil
}

// implementer returns fv, or its address, as iface when either implements it.
func implementer(fv reflect.Value, iface reflect.Type) (any, bool) {
	if !fv.CanInterface() {
		return nil, false
	}
	if fv.Type().Implements(iface) {
		return fv.Interface(), true
	}
	if fv.CanAddr() && reflect.PointerTo(fv.Type()).Implements(iface) {
		return fv.Addr().Interface(), true
	}
	return nil, false
}

func isByteSlice(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

// fromStorage coerces a stored value into the settable field fv.
func fromStorage(table string, col meta.ColumnDescriptor, src any, fv reflect.Value) error {
	if row.IsNull(src) {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	if fv.Kind() == reflect.Pointer {
		p := reflect.New(fv.Type().Elem())
		if err := fromStorage(table, col, src, p.Elem()); err != nil {
			return err
		}
		fv.Set(p)
		return nil
	}

	mismatch := func() error {
		return emerrors.NewTypeMismatchError(table, col.Name, src, fv.Type().String())
	}

	if fv.Type() == timeType {
		t, ok := parseTime(src)
		if !ok {
			return mismatch()
		}
		fv.Set(reflect.ValueOf(t))
		return nil
	}

	if u, ok := implementer(fv, textUnmarshalerType); ok && col.Type != meta.TypeBlob {
		text, ok := textOf(src)
		if !ok {
			return mismatch()
		}
		if err := u.(encoding.TextUnmarshaler).UnmarshalText([]byte(text)); err != nil {
			return emerrors.NewTypeMismatchError(table, col.Name, src, fv.Type().String()+" ("+err.Error()+")")
		}
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		s, ok := textOf(src)
		if !ok {
			return mismatch()
		}
		fv.SetString(s)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := intOf(src)
		if !ok || fv.OverflowInt(n) {
			return mismatch()
		}
		fv.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := uintOf(src)
		if !ok || fv.OverflowUint(n) {
			return mismatch()
		}
		fv.SetUint(n)

	case reflect.Float32, reflect.Float64:
		f, ok := floatOf(src)
		if !ok || fv.OverflowFloat(f) {
			return mismatch()
		}
		fv.SetFloat(f)

	case reflect.Bool:
		b, ok := boolOf(src)
		if !ok {
			return mismatch()
		}
		fv.SetBool(b)

	case reflect.Slice:
		if !isByteSlice(fv.Type()) {
			return mismatch()
		}
		var b []byte
		switch s := src.(type) {
		case []byte:
			b = append([]byte{}, s...)
		case string:
			b = []byte(s)
		default:
			return mismatch()
		}
		fv.Set(reflect.ValueOf(b).Convert(fv.Type()))

	default:
		return mismatch()
	}
	return nil
}

// textOf renders src as text. Engines may return TEXT columns as numbers,
// bools or times.
func textOf(src any) (string, bool) {
	switch s := src.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	case time.Time:
		return s.Format(time.RFC3339Nano), true
	}
	return "", false
}

func intOf(src any) (int64, bool) {
	switch s := src.(type) {
	case int64:
		return s, true
	case float64:
		if s != math.Trunc(s) || s < minInt64Float || s >= maxInt64Float {
			return 0, false
		}
		return int64(s), true
	case string, []byte:
		text, _ := textOf(s)
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		return n, err == nil
	}
	return intOfDriver(src)
}

// intOfDriver covers the narrower integer types some drivers return.
func intOfDriver(src any) (int64, bool) {
	v := reflect.ValueOf(src)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v.Uint() > math.MaxInt64 {
			return 0, false
		}
		return int64(v.Uint()), true
	}
	return 0, false
}

func uintOf(src any) (uint64, bool) {
	switch s := src.(type) {
	case string, []byte:
		text, _ := textOf(s)
		n, err := strconv.ParseUint(strings.TrimSpace(text), 10, 64)
		return n, err == nil
	case float64:
		if s != math.Trunc(s) || s < 0 || s >= 18446744073709551616.0 {
			return 0, false
		}
		return uint64(s), true
	}
	if v := reflect.ValueOf(src); v.Kind() >= reflect.Uint && v.Kind() <= reflect.Uint64 {
		return v.Uint(), true
	}
	n, ok := intOf(src)
	if !ok || n < 0 {
		return 0, false
	}
	return uint64(n), true
}

func floatOf(src any) (float64, bool) {
	switch s := src.(type) {
	case float64:
		return s, true
	case float32:
		return float64(s), true
	case string, []byte:
		text, _ := textOf(s)
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		return f, err == nil
	}
	n, ok := intOf(src)
	return float64(n), ok
}

func boolOf(src any) (bool, bool) {
	switch s := src.(type) {
	case bool:
		return s, true
	case string, []byte:
		text, _ := textOf(s)
		b, err := strconv.ParseBool(strings.TrimSpace(text))
		return b, err == nil
	}
	n, ok := intOf(src)
	return n != 0, ok
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseTime(src any) (time.Time, bool) {
	switch s := src.(type) {
	case time.Time:
		return s, true
	case string, []byte:
		text, _ := textOf(s)
		text = strings.TrimSpace(text)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
