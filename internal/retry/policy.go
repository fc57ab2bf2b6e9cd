// Package retry provides a bounded retry policy with jittered exponential
// backoff, shared by stream reconnects and storage write retries.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
)

// Policy describes a bounded retry schedule.
type Policy struct {
	MaxAttempts int           // Total attempts including the first (>= 1)
	MinDelay    time.Duration // Backoff floor
	MaxDelay    time.Duration // Backoff ceiling
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		MinDelay:    time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Backoff returns a fresh jittered exponential backoff for this policy.
// Callers that outlive a single Do (e.g. reconnect loops) hold one of
// these and Reset it after a stable period.
func (p Policy) Backoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    p.MinDelay,
		Max:    p.MaxDelay,
		Factor: 2,
		Jitter: true,
	}
}

// Do invokes fn until it succeeds, attempts are exhausted, or ctx is done.
// The delay between attempts follows the policy's backoff schedule.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := p.Backoff()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.Duration()):
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("%d attempts: %w", attempts, lastErr)
}
