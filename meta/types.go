package meta

import "strings"

// Type is the declared storage type of a column.
type Type string

// Recognized declared types. Anything else is rejected while a descriptor is
// built.
const (
	TypeText    Type = "TEXT"
	TypeInteger Type = "INTEGER"
	TypeReal    Type = "REAL"
	TypeBlob    Type = "BLOB"
)

// Types lists the recognized declared types in a stable order.
var Types = []Type{TypeText, TypeInteger, TypeReal, TypeBlob}

// ParseType resolves a type tag. Matching is case-insensitive and ignores
// surrounding whitespace; an empty tag resolves to TypeText.
func ParseType(s string) (Type, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "TEXT":
		return TypeText, true
	case "INTEGER":
		return TypeInteger, true
	case "REAL":
		return TypeReal, true
	case "BLOB":
		return TypeBlob, true
	default:
		return "", false
	}
}

// Valid reports whether t is one of the recognized types.
func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeInteger, TypeReal, TypeBlob:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }
