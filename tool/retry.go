package tool

import (
	"context"
	"time"

	"github.com/frameiq/queryflow/core"
)

// RetryPolicy bounds the retries applied to transient tool failures.
// Attempts beyond the first wait BaseDelay doubled per attempt, capped at
// MaxDelay. Non-transient errors abort immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy allows three attempts total before the failure is
// recorded.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Retry runs fn until it succeeds, fails non-transiently, exhausts the
// attempt budget, or ctx is cancelled. The last error is returned
// unwrapped so callers can classify it.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !core.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := p.BaseDelay << (attempt - 1)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
