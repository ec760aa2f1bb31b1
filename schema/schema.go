// Package schema turns entity descriptors into table definitions and applies
// them through a storage engine.
//
// Schema work is limited to initial creation: tables are created when absent
// (or dropped and re-created when forced) and never altered.
package schema

import (
	"context"
	"time"

	"entitymap/ddl"
	emerrors "entitymap/errors"
	"entitymap/internal/metrics"
	"entitymap/meta"
	"entitymap/storage"
)

// TableDef converts d into a backend-agnostic table definition. Every column
// is nullable except the primary key, so a Null field always maps to NULL.
func TableDef(d *meta.EntityDescriptor) ddl.TableDef {
	cols := make([]ddl.ColumnDef, 0, d.NumColumns())
	for _, c := range d.Columns() {
		cols = append(cols, ddl.ColumnDef{
			Name:       c.Name,
			Kind:       string(c.Type),
			Nullable:   !c.PrimaryKey,
			PrimaryKey: c.PrimaryKey,
		})
	}
	return ddl.TableDef{FQN: d.Table(), Columns: cols}
}

// CreateTableSQL renders the canonical create-if-absent statement for d.
func CreateTableSQL(d *meta.EntityDescriptor) (string, error) {
	return ddl.BuildCreateTableSQL(TableDef(d))
}

// EnsureTable creates d's table through eng when it is absent. With force set
// the table is dropped first. Engine failures are returned as a StorageError
// with op "ensure_table".
func EnsureTable(ctx context.Context, eng storage.Engine, d *meta.EntityDescriptor, force bool) (err error) {
	start := time.Now()
	defer func() { metrics.RecordEnsure(eng.Kind(), d.Table(), err, time.Since(start)) }()

	if err := eng.EnsureTable(ctx, TableDef(d), force); err != nil {
		return emerrors.NewStorageError("ensure_table", d.Table(), err)
	}
	return nil
}
