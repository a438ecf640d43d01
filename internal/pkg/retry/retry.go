// Package retry provides a small bounded-retry helper with exponential
// backoff, used by the core when it decides a failed remote call is worth
// one more attempt before recording the failure.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Policy controls how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	// Attempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	Attempts int

	// Backoff is the wait before the second attempt; it doubles after
	// every failed attempt up to MaxBackoff.
	Backoff time.Duration

	// MaxBackoff caps the exponential growth. Zero means no cap.
	MaxBackoff time.Duration

	// Jitter adds rand(0, backoff) to each wait to spread out retries.
	Jitter bool

	// Retryable decides whether an error is worth another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool
}

// DefaultPolicy retries once after a short wait.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   2,
		Backoff:    250 * time.Millisecond,
		MaxBackoff: 2 * time.Second,
		Jitter:     true,
	}
}

// Do runs fn until it succeeds, the policy is exhausted, a non-retryable
// error occurs, or the context is cancelled. The last error is returned
// wrapped with the attempt count when all attempts fail.
func Do(ctx context.Context, p Policy, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := backoff
			if p.Jitter && wait > 0 {
				wait += time.Duration(rand.Int63n(int64(wait)))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			backoff *= 2
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
