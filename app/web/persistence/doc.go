// Package persistence keeps build history. SQLite in WAL mode via sqlx, records are
// created when a build starts and completed when it ends.
package persistence
