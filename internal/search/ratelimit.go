package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/pictura-dev/pictura/internal/kv"
)

// Limiter throttles search requests per client identity using the KV
// store's atomic increment-with-expiry, so two concurrent requests can
// never both read a stale count and slip under the threshold.
type Limiter struct {
	store  kv.Store
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewLimiter creates a Limiter allowing limit requests per window.
func NewLimiter(store kv.Store, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{store: store, limit: limit, window: window, logger: logger}
}

// Allow records one request for clientKey and returns ErrRateLimited
// once the window's budget is exceeded. A failing counter store fails
// open: throttling is protection, not a correctness guarantee.
func (l *Limiter) Allow(ctx context.Context, clientKey string) error {
	n, err := l.store.IncrementWithExpiry(ctx, "ratelimit:"+clientKey, l.window)
	if err != nil {
		l.logger.Warn("rate limit counter unavailable", "client", clientKey, "error", err)
		return nil
	}
	if n > int64(l.limit) {
		return ErrRateLimited
	}
	return nil
}
