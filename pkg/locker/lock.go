package locker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultLockName = "default"

// Lock is a caller-owned handle on a named critical section. It is cheap to
// create and holds no state between acquisitions: it does not remember
// whether it currently holds the lock.
type Lock struct {
	backend    Backend
	key        string
	duration   time.Duration
	routingKey string
	name       string
	policy     RetryPolicy
	logger     *zap.Logger
	metrics    *Metrics
}

// Option configures a Lock.
type Option func(*Lock)

// WithRoutingKey sets the key used to select a backend shard.
func WithRoutingKey(routingKey string) Option {
	return func(l *Lock) {
		l.routingKey = routingKey
	}
}

// WithRetryPolicy sets the policy used by Acquire and Run.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(l *Lock) {
		if policy != nil {
			l.policy = policy
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Lock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the collectors the lock records into.
func WithMetrics(m *Metrics) Option {
	return func(l *Lock) {
		l.metrics = m
	}
}

// WithName sets a low-cardinality name used as the metrics label. Keys are
// never used as labels.
func WithName(name string) Option {
	return func(l *Lock) {
		if name != "" {
			l.name = name
		}
	}
}

// New creates a Lock for key on backend. It fails with an error matching
// ErrInvalidParameters when key, routing key or duration are malformed; the
// backend is never contacted in that case.
//
// The default retry policy is NoRetry.
func New(backend Backend, key string, duration time.Duration, opts ...Option) (*Lock, error) {
	l := &Lock{
		backend:  backend,
		key:      key,
		duration: duration,
		name:     defaultLockName,
		policy:   NoRetry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := validateParams(l.key, l.routingKey, l.duration); err != nil {
		return nil, err
	}

	return l, nil
}

// Key returns the lock key.
func (l *Lock) Key() string {
	return l.key
}

// Duration returns how long an acquired lock stays valid.
func (l *Lock) Duration() time.Duration {
	return l.duration
}

// RoutingKey returns the routing key, empty if none was set.
func (l *Lock) RoutingKey() string {
	return l.routingKey
}

// TryAcquire makes one attempt to acquire the lock. It returns
// ErrLockAlreadyHeld when another holder owns it.
func (l *Lock) TryAcquire(ctx context.Context) error {
	start := time.Now()
	err := l.attempt(ctx)
	l.metrics.acquired(l.name, time.Since(start), err)
	l.logAcquire(err, 1)

	return err
}

// Acquire acquires the lock using the lock's retry policy. It returns an
// error matching ErrAcquisitionTimeout when the policy is exhausted and
// backend errors unchanged.
func (l *Lock) Acquire(ctx context.Context) error {
	start := time.Now()
	attempts := 0
	err := l.policy.Run(ctx, func(ctx context.Context) error {
		attempts++
		return l.attempt(ctx)
	})
	l.metrics.acquired(l.name, time.Since(start), err)
	l.logAcquire(err, attempts)

	return err
}

// Release releases the lock. Releasing a lock that is not held is not an
// error.
func (l *Lock) Release(ctx context.Context) error {
	err := l.backend.Release(ctx, l.key, l.routingKey)
	l.metrics.released(l.name, err)
	if err != nil {
		return err
	}

	l.logger.Debug("lock released", zap.String("key", l.key))

	return nil
}

// Locked reports whether any holder currently owns the lock.
func (l *Lock) Locked(ctx context.Context) (bool, error) {
	return l.backend.Locked(ctx, l.key, l.routingKey)
}

// Run acquires the lock, calls fn while holding it, and releases it on every
// exit path including a panic in fn. If the lock cannot be acquired, fn is
// not called and nothing is released.
//
// Release runs even if ctx has been cancelled. A release failure is logged
// and never replaces the result of fn.
func (l *Lock) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		held := time.Since(start)
		l.metrics.held(l.name, held)
		if held > l.duration {
			l.logger.Warn("critical section outlived lock duration",
				zap.String("key", l.key),
				zap.Duration("duration", l.duration),
				zap.Duration("held", held),
			)
		}

		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn("failed to release lock",
				zap.String("key", l.key),
				zap.Error(err),
			)
		}
	}()

	return fn(ctx)
}

func (l *Lock) attempt(ctx context.Context) error {
	return l.backend.Acquire(ctx, l.key, l.duration, l.routingKey)
}

func (l *Lock) logAcquire(err error, attempts int) {
	switch KindOf(err) {
	case KindNone:
		l.logger.Debug("lock acquired",
			zap.String("key", l.key),
			zap.Duration("duration", l.duration),
			zap.Int("attempts", attempts),
		)
	case KindAlreadyHeld, KindTimeout, KindCanceled:
		l.logger.Debug("lock not acquired",
			zap.String("key", l.key),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	default:
		l.logger.Warn("lock acquisition failed",
			zap.String("key", l.key),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}
}
