package meta

import (
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/unicode/norm"

	emerrors "entitymap/errors"
)

// TagName is the struct tag read for column metadata.
const TagName = "column"

// Tabler is implemented by entity types to declare their table name. Either a
// value or a pointer receiver is accepted.
type Tabler interface {
	TableName() string
}

var tablerType = reflect.TypeOf((*Tabler)(nil)).Elem()

// build resolves the descriptor for struct type t. It performs no caching.
func build(t reflect.Type) (*EntityDescriptor, error) {
	if t.Kind() != reflect.Struct {
		return nil, emerrors.NewConfigurationError(t.String(), "",
			fmt.Sprintf("entity must be a struct, got %s", t.Kind()))
	}

	table, err := tableName(t)
	if err != nil {
		return nil, err
	}

	b := columnBuilder{typ: t, seen: map[string]string{}}
	if err := b.collect(t, nil); err != nil {
		return nil, err
	}
	if len(b.cols) == 0 {
		return nil, emerrors.NewConfigurationError(t.String(), "",
			fmt.Sprintf("no fields carry a %q tag", TagName))
	}

	return newEntityDescriptor(t, table, b.cols), nil
}

func tableName(t reflect.Type) (string, error) {
	if !reflect.PointerTo(t).Implements(tablerType) {
		return "", emerrors.NewConfigurationError(t.String(), "", "missing table name: type does not implement TableName() string")
	}
	name := reflect.New(t).Interface().(Tabler).TableName()
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", emerrors.NewConfigurationError(t.String(), "", "table name is empty")
	}
	return name, nil
}

type columnBuilder struct {
	typ  reflect.Type
	cols []ColumnDescriptor
	seen map[string]string // column name -> field name
	pk   string
}

// collect walks the fields of st in declaration order. Untagged embedded
// structs are flattened; untagged embedded pointers are ignored.
func (b *columnBuilder) collect(st reflect.Type, prefix []int) error {
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		index := append(append([]int(nil), prefix...), i)

		tag, tagged := f.Tag.Lookup(TagName)
		if tag == "-" {
			continue
		}
		if f.Anonymous && !tagged {
			if f.Type.Kind() == reflect.Struct {
				if err := b.collect(f.Type, index); err != nil {
					return err
				}
			}
			continue
		}
		if !tagged {
			continue
		}
		if !f.IsExported() {
			return emerrors.NewConfigurationError(b.typ.String(), f.Name, "column tag on unexported field")
		}
		if isInterface(f.Type) {
			return emerrors.NewConfigurationError(b.typ.String(), f.Name,
				fmt.Sprintf("interface field type %s cannot be read back", f.Type))
		}

		col, err := b.parseTag(f, tag)
		if err != nil {
			return err
		}
		col.index = index

		if prev, dup := b.seen[col.Name]; dup {
			return emerrors.NewConfigurationError(b.typ.String(), f.Name,
				fmt.Sprintf("duplicate column name %q (already used by field %s)", col.Name, prev))
		}
		b.seen[col.Name] = f.Name

		if col.PrimaryKey {
			if b.pk != "" {
				return emerrors.NewConfigurationError(b.typ.String(), f.Name,
					fmt.Sprintf("second primary key column (already declared on field %s)", b.pk))
			}
			b.pk = f.Name
		}
		b.cols = append(b.cols, col)
	}
	return nil
}

// isInterface reports whether t, after pointer indirection, is an interface.
// Stored values carry no Go type, so such a field would not survive a round
// trip.
func isInterface(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Interface
}

// parseTag reads `column:"[name][,TYPE][,pk]"`.
func (b *columnBuilder) parseTag(f reflect.StructField, tag string) (ColumnDescriptor, error) {
	parts := strings.Split(tag, ",")

	name := strings.TrimSpace(parts[0])
	if name == "" {
		name = f.Name
	}
	col := ColumnDescriptor{
		Name:      norm.NFC.String(name),
		Type:      TypeText,
		FieldName: f.Name,
	}

	typeSet := false
	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "":
			continue
		case strings.EqualFold(opt, "pk"):
			col.PrimaryKey = true
		default:
			typ, ok := ParseType(opt)
			if !ok {
				return col, emerrors.NewConfigurationError(b.typ.String(), f.Name,
					fmt.Sprintf("unknown column type %q", opt))
			}
			if typeSet {
				return col, emerrors.NewConfigurationError(b.typ.String(), f.Name, "more than one column type declared")
			}
			col.Type = typ
			typeSet = true
		}
	}
	return col, nil
}
