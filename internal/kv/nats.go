package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// casAttempts bounds the compare-and-swap retry loop on counter updates.
const casAttempts = 10

// NATSStore backs Store with a JetStream KV bucket. JetStream expiry is
// per bucket, not per key, so each NATSStore owns one bucket whose TTL
// was fixed at creation; the per-call ttl/window arguments are accepted
// for interface compatibility and the bucket TTL governs.
type NATSStore struct {
	bucket nats.KeyValue
}

// NewNATSStore opens (or creates) the named KV bucket with the given TTL.
func NewNATSStore(js nats.JetStreamContext, bucket string, ttl time.Duration) (*NATSStore, error) {
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: bucket,
			TTL:    ttl,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("opening KV bucket %s: %w", bucket, err)
	}
	return &NATSStore{bucket: kv}, nil
}

// Get returns the value for key.
func (s *NATSStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, err := s.bucket.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

// Set stores value under key. The bucket TTL governs expiry.
func (s *NATSStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := s.bucket.Put(key, value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// IncrementWithExpiry increments the counter under key using a
// Create-then-Update CAS loop, so two concurrent callers can never both
// observe the same count. Retries on revision conflicts.
func (s *NATSStore) IncrementWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, err := s.bucket.Get(key)
		if errors.Is(err, nats.ErrKeyNotFound) {
			if _, err := s.bucket.Create(key, []byte("1")); err != nil {
				if errors.Is(err, nats.ErrKeyExists) {
					continue // lost the create race, retry
				}
				return 0, fmt.Errorf("kv create %s: %w", key, err)
			}
			return 1, nil
		}
		if err != nil {
			return 0, fmt.Errorf("kv get %s: %w", key, err)
		}

		n, _ := strconv.ParseInt(string(entry.Value()), 10, 64)
		n++
		if _, err := s.bucket.Update(key, []byte(strconv.FormatInt(n, 10)), entry.Revision()); err != nil {
			continue // revision conflict, retry
		}
		return n, nil
	}
	return 0, fmt.Errorf("kv increment %s: too many CAS conflicts", key)
}

// Delete removes a key.
func (s *NATSStore) Delete(_ context.Context, key string) error {
	err := s.bucket.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}
