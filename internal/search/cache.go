package search

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pictura-dev/pictura/internal/kv"
)

// Cache memoizes search result pages in a KV store under content
// fingerprints. Entries are idempotently overwritten on recomputation,
// so concurrent misses cost duplicate work at worst, never corruption.
type Cache struct {
	store kv.Store
	ttl   time.Duration
}

// NewCache creates a Cache with the given TTL.
func NewCache(store kv.Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

// TextKey fingerprints a text query plus its page number.
func TextKey(query string, page int) string {
	sum := sha256.Sum256([]byte(normalizeQuery(query)))
	return fmt.Sprintf("search:text:%x:p%d", sum, page)
}

// ImageKey fingerprints raw query-image bytes plus a page number.
func ImageKey(data []byte, page int) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("search:image:%x:p%d", sum, page)
}

// normalizeQuery lowercases and collapses whitespace so trivially
// different spellings of the same query share a cache entry.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Get returns the cached result for key, if present and fresh.
func (c *Cache) Get(ctx context.Context, key string) (*Result, bool) {
	data, found, err := c.store.Get(ctx, key)
	if err != nil || !found {
		return nil, false
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false
	}
	return &r, true
}

// Set stores a result under key. Failures are ignored; the cache is a
// performance layer, not a source of truth.
func (c *Cache) Set(ctx context.Context, key string, r *Result) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	_ = c.store.Set(ctx, key, data, c.ttl)
}
