// Package postgres implements the store interfaces against PostgreSQL,
// using database/sql over the pgx stdlib driver. The queue stores implement
// the claiming protocol with FOR UPDATE SKIP LOCKED locking reads so any
// number of workers can poll concurrently without double-claiming rows.
package postgres
