// Package locker provides named, process-external mutual exclusion for
// coordinating work across multiple service instances.
//
// The package separates mechanism from policy. A Backend performs single,
// non-blocking attempts against a shared coordination medium. A Lock wraps a
// Backend with a key, a duration and a RetryPolicy and offers scoped
// acquisition on top of it.
//
// Typical usage:
//
//	lock, err := manager.Get("integration-sync:42", 30*time.Second,
//	    locker.WithRetryPolicy(locker.TimedRetry(5*time.Second, 100*time.Millisecond)),
//	)
//	if err != nil {
//	    return err
//	}
//	err = lock.Run(ctx, func(ctx context.Context) error {
//	    // Perform work while holding the lock
//	    return nil
//	})
//
// A critical section that outlives the lock duration silently loses its
// mutual-exclusion guarantee. Locks are advisory and there is no renewal.
package locker

import (
	"context"
	"time"
)

// Backend is the minimal contract a coordination medium must satisfy.
// Implementations must be safe for concurrent use and must not block or
// retry internally; waiting belongs to the RetryPolicy.
//
// An empty routingKey means no routing key was given. How, or if, a backend
// uses the routing key is up to the implementation.
type Backend interface {
	// Acquire makes a single attempt to create the lock record for key,
	// valid for duration. If two callers race, exactly one succeeds.
	// Returns ErrLockAlreadyHeld when a live record exists, an error
	// matching ErrInvalidParameters for a non-positive duration and an
	// error matching ErrBackendUnavailable when the medium cannot be reached.
	Acquire(ctx context.Context, key string, duration time.Duration, routingKey string) error

	// Release deletes the lock record for key. Releasing a key that is not
	// held, or has already expired, is a no-op.
	Release(ctx context.Context, key, routingKey string) error

	// Locked reports whether a live record exists for key. It is meant for
	// diagnostics only: Locked followed by Acquire is racy.
	Locked(ctx context.Context, key, routingKey string) (bool, error)
}

// Pinger is implemented by backends that can report the health of their
// coordination medium.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sweeper is implemented by backends that keep expired records around until
// they are read. Sweep deletes them and returns how many were removed.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}
