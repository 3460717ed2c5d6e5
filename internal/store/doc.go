// Package store defines the persistence interfaces and shared database
// helpers used by the generation pipeline. Implementations live in
// internal/platform/postgres.
package store
