package locker

import (
	"time"

	"go.uber.org/zap"
)

// Manager hands out Lock handles bound to one backend, usually a Routed
// backend, with shared logging, metrics and a default retry policy. It
// replaces a process-wide default backend: callers receive the Manager as a
// dependency.
type Manager struct {
	backend Backend
	policy  RetryPolicy
	logger  *zap.Logger
	metrics *Metrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaultRetryPolicy sets the policy given to every Lock unless the
// caller overrides it.
func WithDefaultRetryPolicy(policy RetryPolicy) ManagerOption {
	return func(m *Manager) {
		m.policy = policy
	}
}

// WithManagerLogger sets the logger given to every Lock.
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerMetrics sets the collectors given to every Lock.
func WithManagerMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a Manager for backend.
func NewManager(backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend: backend,
		policy:  NoRetry(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a Lock for key. Options given here override the manager's
// defaults.
func (m *Manager) Get(key string, duration time.Duration, opts ...Option) (*Lock, error) {
	base := []Option{
		WithRetryPolicy(m.policy),
		WithLogger(m.logger),
		WithMetrics(m.metrics),
	}
	return New(m.backend, key, duration, append(base, opts...)...)
}

// Backend returns the manager's backend.
func (m *Manager) Backend() Backend {
	return m.backend
}
