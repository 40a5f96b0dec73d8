// Package postgres provides the PostgreSQL implementations of the request
// record store and the durable job queue, together with the embedded goose
// migrations that create their tables.
//
// Connections are opened through database/sql with the pgx stdlib driver;
// driver errors are translated into the internal/store error values by
// MapError.
package postgres
