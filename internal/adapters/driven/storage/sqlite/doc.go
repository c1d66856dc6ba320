// Package sqlite provides durable SQLite-backed implementations of the
// cache and index store ports, sharing one database file.
package sqlite
