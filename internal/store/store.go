// Package store defines the shared counter store the quota ledger and the
// AI session history run against. Increments are atomic per key; a
// read-modify-write split across calls is exactly what this interface is
// meant to prevent.
package store

import (
	"context"
	"time"
)

// Store is the external counter/value store collaborator.
type Store interface {
	// IncrementWithExpiry atomically increments the counter at key and
	// returns the new count. The first increment creates the counter with
	// the given time-to-live; later increments leave the expiry untouched.
	// An expired counter restarts at 1 with a fresh expiry.
	IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the current count for key, reporting absence for keys
	// that were never incremented or have expired.
	Get(ctx context.Context, key string) (int64, bool, error)

	// PutJSON stores a JSON-encoded value with a time-to-live. Used for
	// session-scoped chat history.
	PutJSON(ctx context.Context, key string, value any, ttl time.Duration) error

	// GetJSON decodes the value at key into out, reporting absence for
	// missing or expired keys.
	GetJSON(ctx context.Context, key string, out any) (bool, error)

	// Delete removes the value at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
}
