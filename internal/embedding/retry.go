package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryConfig bounds the retry behavior around a provider call. The
// whole call, retries and backoff included, runs under Timeout; past it
// the caller gets ErrProviderTimeout.
type RetryConfig struct {
	MaxRetries   int           // retries after the first attempt
	InitialDelay time.Duration // backoff start, doubles per attempt
	Timeout      time.Duration // hard cap on the whole call
}

// DefaultRetryConfig returns the standard provider call budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		Timeout:      10 * time.Second,
	}
}

// permanentError marks an error as not worth retrying.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return fmt.Sprintf("permanent: %v", e.err) }
func (e *permanentError) Unwrap() error { return e.err }

// permanent wraps an error so the retry loop surfaces it immediately.
func permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// withRetry runs fn under the configured budget. Transient failures are
// retried with exponential backoff; permanent failures surface at once.
// Exhausting the overall timeout yields ErrProviderTimeout, exhausting
// the retry budget yields the last error wrapped in ErrProvider.
func withRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 200 * time.Millisecond
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var lastErr error
	delay := cfg.InitialDelay
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrProviderTimeout, lastErr)
			case <-time.After(delay):
			}
			delay *= 2
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return fmt.Errorf("%w: %v", ErrProvider, errors.Unwrap(err))
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
		}
		lastErr = err
	}

	return fmt.Errorf("%w: retries exhausted: %v", ErrProvider, lastErr)
}
