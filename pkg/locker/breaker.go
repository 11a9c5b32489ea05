package locker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// BreakerBackend decorates a Backend with a circuit breaker. Only medium
// failures count against the breaker; contention, invalid parameters and
// caller cancellation are normal outcomes. While the circuit is open, calls
// fail fast with an error matching ErrBackendUnavailable.
type BreakerBackend struct {
	name    string
	backend Backend
	cb      *gobreaker.CircuitBreaker[bool]
}

// NewBreakerBackend wraps backend with a circuit breaker named name.
func NewBreakerBackend(name string, backend Backend, cfg BreakerConfig, logger *zap.Logger) *BreakerBackend {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 3
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)

			return counts.Requests >= minRequests && failureRatio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrBackendUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("lock backend circuit breaker state changed",
				zap.String("backend", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerBackend{
		name:    name,
		backend: backend,
		cb:      gobreaker.NewCircuitBreaker[bool](settings),
	}
}

// Acquire implements Backend.
func (b *BreakerBackend) Acquire(ctx context.Context, key string, duration time.Duration, routingKey string) error {
	_, err := b.cb.Execute(func() (bool, error) {
		return true, b.backend.Acquire(ctx, key, duration, routingKey)
	})
	return b.translate("acquire", err)
}

// Release implements Backend.
func (b *BreakerBackend) Release(ctx context.Context, key, routingKey string) error {
	_, err := b.cb.Execute(func() (bool, error) {
		return true, b.backend.Release(ctx, key, routingKey)
	})
	return b.translate("release", err)
}

// Locked implements Backend.
func (b *BreakerBackend) Locked(ctx context.Context, key, routingKey string) (bool, error) {
	locked, err := b.cb.Execute(func() (bool, error) {
		return b.backend.Locked(ctx, key, routingKey)
	})
	return locked, b.translate("locked", err)
}

// Ping implements Pinger. Pings bypass the breaker so readiness reflects the
// medium itself.
func (b *BreakerBackend) Ping(ctx context.Context) error {
	if p, ok := b.backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Sweep implements Sweeper when the wrapped backend does.
func (b *BreakerBackend) Sweep(ctx context.Context) (int64, error) {
	s, ok := b.backend.(Sweeper)
	if !ok {
		return 0, nil
	}
	var removed int64
	_, err := b.cb.Execute(func() (bool, error) {
		n, err := s.Sweep(ctx)
		removed = n
		return true, err
	})
	return removed, b.translate("sweep", err)
}

// State returns the breaker state, for diagnostics.
func (b *BreakerBackend) State() gobreaker.State {
	return b.cb.State()
}

// Unwrap returns the decorated backend.
func (b *BreakerBackend) Unwrap() Backend {
	return b.backend
}

func (b *BreakerBackend) translate(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Unavailable(b.name, op, err)
	}
	return err
}
