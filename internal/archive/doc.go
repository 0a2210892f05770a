// Package archive keeps a durable SQLite history of finished jobs.
//
// The live job store is in-memory; the archive receives one row per terminal
// transition (completed, failed or cancelled) so operators can review past
// runs after a restart. Rows are append-only. A retried job therefore shows
// one row per attempt that reached a terminal status.
//
// The schema is embedded from schema.sql and versioned in schema.go. Bump
// schemaVersion when the table changes; older databases must be removed.
package archive
