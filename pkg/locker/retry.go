package locker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Attempt is a single, non-blocking acquisition attempt.
type Attempt func(ctx context.Context) error

// RetryPolicy decides how long and how often an Attempt is repeated.
//
// Run returns nil once an attempt succeeds. Only ErrLockAlreadyHeld is
// retried; any other attempt error is returned unchanged. When the policy
// gives up it returns a *TimeoutError. If ctx ends while waiting between
// attempts, ctx.Err() is returned. In every failure case nothing is held.
type RetryPolicy interface {
	Run(ctx context.Context, attempt Attempt) error
}

// RetryPolicyFunc adapts a function to RetryPolicy.
type RetryPolicyFunc func(ctx context.Context, attempt Attempt) error

// Run calls f(ctx, attempt).
func (f RetryPolicyFunc) Run(ctx context.Context, attempt Attempt) error {
	return f(ctx, attempt)
}

// BackoffPolicy retries contention using a backoff.BackOff schedule, bounded
// by MaxAttempts, Timeout, or the schedule returning backoff.Stop. With no
// bound at all it retries until ctx ends.
type BackoffPolicy struct {
	// NewBackOff returns a fresh schedule for each Run. Nil means a constant
	// 100ms interval.
	NewBackOff func() backoff.BackOff

	// MaxAttempts caps the number of attempts, the first one included.
	// Zero means unlimited.
	MaxAttempts int

	// Timeout caps the total time spent in Run. Zero means no cap. The last
	// wait is shortened so one final attempt is made at the deadline.
	Timeout time.Duration
}

const defaultRetryInterval = 100 * time.Millisecond

// NoRetry makes exactly one attempt.
func NoRetry() BackoffPolicy {
	return BackoffPolicy{MaxAttempts: 1}
}

// FixedRetry makes up to maxAttempts attempts, interval apart.
func FixedRetry(interval time.Duration, maxAttempts int) BackoffPolicy {
	return BackoffPolicy{
		NewBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(interval)
		},
		MaxAttempts: maxAttempts,
	}
}

// TimedRetry retries every delay until timeout has elapsed.
func TimedRetry(timeout, delay time.Duration) BackoffPolicy {
	return BackoffPolicy{
		NewBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(delay)
		},
		Timeout: timeout,
	}
}

// ExponentialRetry retries with jittered exponential delays, growing by a
// factor of 1.6 from initial up to maxInterval, until timeout has elapsed.
func ExponentialRetry(initial, maxInterval, timeout time.Duration) BackoffPolicy {
	return BackoffPolicy{
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = maxInterval
			b.Multiplier = 1.6
			b.RandomizationFactor = 0.5
			// Timeout is enforced by the policy, not the schedule.
			b.MaxElapsedTime = 0
			b.Reset()
			return b
		},
		Timeout: timeout,
	}
}

// Run implements RetryPolicy.
func (p BackoffPolicy) Run(ctx context.Context, attempt Attempt) error {
	schedule := p.schedule()

	start := time.Now()
	var deadline time.Time
	if p.Timeout > 0 {
		deadline = start.Add(p.Timeout)
	}

	for n := 1; ; n++ {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrLockAlreadyHeld) {
			return err
		}

		exhausted := func() error {
			return &TimeoutError{Attempts: n, Elapsed: time.Since(start), Last: err}
		}

		if p.MaxAttempts > 0 && n >= p.MaxAttempts {
			return exhausted()
		}

		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			return exhausted()
		}
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return exhausted()
			}
			if wait > remaining {
				wait = remaining
			}
		}

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (p BackoffPolicy) schedule() backoff.BackOff {
	if p.NewBackOff == nil {
		return backoff.NewConstantBackOff(defaultRetryInterval)
	}
	return p.NewBackOff()
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
