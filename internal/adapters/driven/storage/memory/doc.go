// Package memory provides in-memory implementations of the storage ports.
// Used for tests and for ephemeral runs without a data directory.
package memory
