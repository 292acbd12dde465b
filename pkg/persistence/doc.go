// Package persistence provides the durable key-value storage used to keep
// relay state across process restarts.
//
// Values are encoded with deterministic CBOR before they reach a backend, so
// every Storage implementation stores opaque bytes and round-trips the same
// Go values. Backends:
//   - MemoryStore: process-local, for tests and ephemeral clients
//   - FileStore: a single CBOR file, rewritten atomically on each change
//   - SQLiteStore: a key/value table in an SQLite database
//   - RedisStore: string keys on a Redis server
//
// GetItem reports found=false (and no error) for keys that were never set,
// mirroring an "undefined" result.
package persistence
