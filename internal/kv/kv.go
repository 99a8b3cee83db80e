// Package kv provides a small key-value abstraction with expiry and an
// atomic increment primitive, backing the search result cache and the
// rate-limit counters. Two implementations exist: an in-process map for
// development and tests, and NATS JetStream KV for deployments.
package kv

import (
	"context"
	"time"
)

// Store is a key-value store with per-key expiry. Values are opaque
// bytes; callers own serialization.
type Store interface {
	// Get returns the value for key, or found=false if the key is
	// missing or expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key with the given time-to-live.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// IncrementWithExpiry atomically increments the counter at key and
	// returns the new count. A counter that did not exist (or had
	// expired) restarts at 1 with the given window as its lifetime.
	// The increment must not be subject to read-modify-write races
	// between concurrent callers.
	IncrementWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
