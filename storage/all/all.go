// Package all wires every built-in storage backend into the storage factory.
//
// It exists purely for side effects: importing it runs the init function of
// each backend, which registers its factory with package storage. The kinds
// made available are:
//
//   - "sqlite"   (entitymap/storage/sqlite)
//   - "postgres" (entitymap/storage/postgres)
//   - "mssql"    (entitymap/storage/mssql)
//   - "mysql"    (entitymap/storage/mysql)
//   - "dynamo"   (entitymap/storage/dynamo)
//
// Typical usage:
//
//	import _ "entitymap/storage/all"
//
//	eng, err := storage.New(ctx, storage.Config{Kind: "postgres", DSN: dsn})
//
// A binary that needs only some backends can blank-import those packages
// directly instead.
package all

import (
	_ "entitymap/storage/dynamo"
	_ "entitymap/storage/mssql"
	_ "entitymap/storage/mysql"
	_ "entitymap/storage/postgres"
	_ "entitymap/storage/sqlite"
)
