// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic, allowing the pipeline to remain
// independent of specific database technologies or persistence details.
//
// The memstore subpackage holds an in-memory implementation; the Postgres
// implementation lives in internal/platform/postgres.
package store
