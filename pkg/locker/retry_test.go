package locker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contendedUntil returns an attempt that reports contention for the first
// n calls and succeeds afterwards.
func contendedUntil(n int, calls *int) Attempt {
	return func(context.Context) error {
		*calls++
		if *calls <= n {
			return ErrLockAlreadyHeld
		}
		return nil
	}
}

func TestNoRetry_SingleAttempt(t *testing.T) {
	calls := 0
	err := NoRetry().Run(context.Background(), contendedUntil(1, &calls))

	assert.ErrorIs(t, err, ErrAcquisitionTimeout)
	assert.ErrorIs(t, err, ErrLockAlreadyHeld)
	assert.Equal(t, 1, calls)
}

func TestFixedRetry_SucceedsAfterContention(t *testing.T) {
	calls := 0
	err := FixedRetry(time.Millisecond, 5).Run(context.Background(), contendedUntil(3, &calls))

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestFixedRetry_Exhausted(t *testing.T) {
	calls := 0
	err := FixedRetry(time.Millisecond, 3).Run(context.Background(), contendedUntil(10, &calls))

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 3, timeout.Attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestBackoffPolicy_BackendErrorNotRetried(t *testing.T) {
	errDown := Unavailable("test", "acquire", errors.New("connection refused"))
	calls := 0

	err := FixedRetry(time.Millisecond, 10).Run(context.Background(), func(context.Context) error {
		calls++
		return errDown
	})

	assert.Same(t, errDown, err)
	assert.NotErrorIs(t, err, ErrAcquisitionTimeout)
	assert.Equal(t, 1, calls)
}

func TestTimedRetry_StopsAtDeadline(t *testing.T) {
	calls := 0
	start := time.Now()

	err := TimedRetry(50*time.Millisecond, 10*time.Millisecond).Run(context.Background(), contendedUntil(1000, &calls))

	elapsed := time.Since(start)
	assert.ErrorIs(t, err, ErrAcquisitionTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Greater(t, calls, 2)
}

func TestExponentialRetry_SucceedsAfterContention(t *testing.T) {
	calls := 0
	err := ExponentialRetry(time.Millisecond, 10*time.Millisecond, time.Second).
		Run(context.Background(), contendedUntil(4, &calls))

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
}

func TestBackoffPolicy_StopFromSchedule(t *testing.T) {
	policy := BackoffPolicy{
		NewBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
		},
	}

	calls := 0
	err := policy.Run(context.Background(), contendedUntil(10, &calls))

	assert.ErrorIs(t, err, ErrAcquisitionTimeout)
	assert.Equal(t, 3, calls)
}

func TestBackoffPolicy_CancelWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Unbounded policy: only the context ends it
	policy := BackoffPolicy{
		NewBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(5 * time.Millisecond)
		},
	}

	calls := 0
	err := policy.Run(ctx, contendedUntil(1000, &calls))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrAcquisitionTimeout)
	assert.Equal(t, KindCanceled, KindOf(err))
}

func TestBackoffPolicy_DefaultSchedule(t *testing.T) {
	policy := BackoffPolicy{MaxAttempts: 2}

	calls := 0
	start := time.Now()
	err := policy.Run(context.Background(), contendedUntil(1, &calls))

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), defaultRetryInterval)
}

func TestRetryPolicyFunc(t *testing.T) {
	var seen bool
	policy := RetryPolicyFunc(func(ctx context.Context, attempt Attempt) error {
		seen = true
		return attempt(ctx)
	})

	calls := 0
	require.NoError(t, policy.Run(context.Background(), contendedUntil(0, &calls)))
	assert.True(t, seen)
}
