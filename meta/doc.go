// Package meta builds entity descriptors from struct tags.
//
// An entity is a struct whose persisted fields carry a `column` tag and whose
// table name comes from a TableName() string method:
//
//	type User struct {
//		ID   int64   `column:"id,INTEGER,pk"`
//		Name *string `column:"name"`
//	}
//
//	func (User) TableName() string { return "users" }
//
// The tag holds an optional column name (defaulting to the Go field name),
// an optional declared type (TEXT, INTEGER, REAL or BLOB; TEXT when omitted)
// and the optional pk flag. A tag of "-" excludes a field. Untagged embedded
// structs are flattened into the parent. Interface-typed fields are rejected
// because a stored value carries no Go type to restore.
//
// TEXT columns accept strings, numbers, bools, time.Time and
// encoding.TextMarshaler values; a type that only implements fmt.Stringer is
// a type mismatch. REAL columns hold float64, so integers wider than 2^53
// lose precision there.
//
// Descriptors are cached per Registry and shared between callers.
package meta
