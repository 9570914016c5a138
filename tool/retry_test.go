package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frameiq/queryflow/core"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return core.NewTimeoutError("search", errors.New("timeout"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	transient := core.NewUnavailableError("search", errors.New("conn refused"))
	err := Retry(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return transient
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "exactly MaxAttempts calls")
	assert.True(t, core.IsTransient(err), "last transient error is returned as-is")
}

func TestRetry_NonTransientAbortsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return ErrNotFound
	})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, calls, "non-transient errors are never retried")
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return core.NewTimeoutError("search", errors.New("timeout"))
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation must abort the backoff wait")
}
