package kv

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Expiry is lazy: entries past their
// deadline are treated as absent and dropped on the next touch.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is swappable for expiry tests.
	now func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) live(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

// Get returns the live value for key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key with the given TTL.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = s.now().Add(ttl)
	}
	s.entries[key] = memoryEntry{value: value, expires: expires}
	return nil
}

// IncrementWithExpiry increments the counter under key, restarting an
// expired or missing counter at 1. Atomic under the store mutex.
func (s *MemoryStore) IncrementWithExpiry(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(0)
	e, ok := s.live(key)
	if ok {
		n, _ = strconv.ParseInt(string(e.value), 10, 64)
	}
	n++

	expires := e.expires
	if !ok {
		expires = s.now().Add(window)
	}
	s.entries[key] = memoryEntry{value: []byte(strconv.FormatInt(n, 10)), expires: expires}
	return n, nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
