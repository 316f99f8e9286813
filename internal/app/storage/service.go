/*
Package storage provides the durable client-side storage used by the chat client.

The session record and the presence history are persisted as small values under
fixed keys. The store is a key/value table in a local SQLite file whose schema is
managed by embedded goose migrations.
*/
package storage

import (
	"context"
)

// KeyValueStore is the durable key/value storage consumed by the session store
// and the presence history. Get returns (nil, nil) for an absent key.
type KeyValueStore interface {
	// Get returns the value stored under key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// SetMany stores every entry atomically.
	SetMany(ctx context.Context, entries map[string][]byte) error

	// Delete removes the given keys. Absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// Open is the factory for the durable store backing the client.
// path is a SQLite file path (or ":memory:").
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	return openSQLite(ctx, path)
}
