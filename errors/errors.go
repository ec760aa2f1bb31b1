// Package errors defines the error taxonomy shared by every entitymap layer.
//
// Three failure classes exist:
//
//   - ConfigurationError: declared entity metadata is missing or malformed.
//     Raised while a descriptor is built and never retried.
//   - TypeMismatchError: a value cannot be coerced between an entity field and
//     its stored representation. Raised per field by the row mapper.
//   - StorageError: the underlying storage engine rejected an operation.
//     Surfaced as-is; retry policy belongs to the caller.
//
// Each typed error matches its sentinel through errors.Is, so callers can
// branch without type assertions:
//
//	if errors.Is(err, emerrors.ErrTypeMismatch) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("invalid entity configuration")

	// ErrTypeMismatch is matched by every TypeMismatchError.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrStorage is matched by every StorageError.
	ErrStorage = errors.New("storage failure")

	// ErrNotFound is returned when a lookup by primary key finds no row.
	ErrNotFound = errors.New("entity not found")

	// ErrNoPrimaryKey is returned when an operation needs a primary-key column
	// the entity does not declare.
	ErrNoPrimaryKey = errors.New("entity declares no primary key")
)

// ConfigurationError reports bad or missing declared metadata for an entity
// type. Field is empty for type-level problems such as a missing table name.
type ConfigurationError struct {
	Type   string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("entity %s: field %s: %s", e.Type, e.Field, e.Reason)
	}
	return fmt.Sprintf("entity %s: %s", e.Type, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// TypeMismatchError reports a value that cannot be coerced to the type a
// column or field expects.
type TypeMismatchError struct {
	Table    string
	Column   string
	Value    any
	Expected string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch in %s.%s: cannot use %T (%v) as %s",
		e.Table, e.Column, e.Value, e.Value, e.Expected)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// StorageError wraps an error returned by a storage engine.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(typeName, field, reason string) error {
	return &ConfigurationError{Type: typeName, Field: field, Reason: reason}
}

// NewTypeMismatchError creates a new TypeMismatchError.
func NewTypeMismatchError(table, column string, value any, expected string) error {
	return &TypeMismatchError{Table: table, Column: column, Value: value, Expected: expected}
}

// NewStorageError wraps err as a StorageError. A nil err yields nil so call
// sites can wrap unconditionally.
func NewStorageError(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Table: table, Err: err}
}

// IsConfiguration checks if an error is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsTypeMismatch checks if an error is a type mismatch error.
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}

// IsStorage checks if an error is a storage error.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
