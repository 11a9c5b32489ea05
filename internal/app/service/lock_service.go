// Package service provides application use cases.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lock-service/pkg/locker"
)

// Shards exposes the configured lock shards.
type Shards interface {
	Router() *locker.ShardedRouter
	ShardType(name string) string
}

// LockService serves lock operations over the routed shards.
type LockService struct {
	shards  Shards
	manager *locker.Manager
	logger  *zap.Logger
}

// AcquireParams describes a lock request.
type AcquireParams struct {
	Key        string
	RoutingKey string
	Duration   time.Duration

	// Wait retries contention through the service's retry policy instead of
	// failing on the first attempt.
	Wait bool
}

// AcquireResult describes an acquired lock.
type AcquireResult struct {
	Key        string
	RoutingKey string
	Shard      string
	Duration   time.Duration
	ExpiresAt  time.Time
}

// LockStatus is a point-in-time observation of a key.
type LockStatus struct {
	Key        string
	RoutingKey string
	Shard      string
	Locked     bool
}

// ShardInfo describes one shard.
type ShardInfo struct {
	Name    string
	Type    string
	Breaker string
}

// SweepResult holds the outcome of sweeping one shard.
type SweepResult struct {
	Shard   string
	Removed int64
	Error   error
}

// NewLockService creates a new LockService.
func NewLockService(shards Shards, policy locker.RetryPolicy, metrics *locker.Metrics, logger *zap.Logger) *LockService {
	manager := locker.NewManager(
		locker.Routed(shards.Router()),
		locker.WithDefaultRetryPolicy(policy),
		locker.WithManagerLogger(logger),
		locker.WithManagerMetrics(metrics),
	)

	return &LockService{
		shards:  shards,
		manager: manager,
		logger:  logger,
	}
}

// Manager returns the lock manager backing the service.
func (s *LockService) Manager() *locker.Manager {
	return s.manager
}

// Acquire takes a lock for a remote caller.
func (s *LockService) Acquire(ctx context.Context, params AcquireParams) (*AcquireResult, error) {
	lock, err := s.manager.Get(params.Key, params.Duration,
		locker.WithRoutingKey(params.RoutingKey),
		locker.WithName("api"),
	)
	if err != nil {
		return nil, err
	}

	if params.Wait {
		err = lock.Acquire(ctx)
	} else {
		err = lock.TryAcquire(ctx)
	}
	if err != nil {
		return nil, err
	}

	return &AcquireResult{
		Key:        params.Key,
		RoutingKey: params.RoutingKey,
		Shard:      s.shards.Router().ShardFor(params.RoutingKey),
		Duration:   params.Duration,
		ExpiresAt:  time.Now().Add(params.Duration),
	}, nil
}

// Release releases a lock. Releasing a key that is not held is not an error.
func (s *LockService) Release(ctx context.Context, key, routingKey string) error {
	if err := locker.ValidateKey(key, routingKey); err != nil {
		return err
	}

	return s.manager.Backend().Release(ctx, key, routingKey)
}

// Status reports whether key is currently held.
func (s *LockService) Status(ctx context.Context, key, routingKey string) (*LockStatus, error) {
	if err := locker.ValidateKey(key, routingKey); err != nil {
		return nil, err
	}

	locked, err := s.manager.Backend().Locked(ctx, key, routingKey)
	if err != nil {
		return nil, err
	}

	return &LockStatus{
		Key:        key,
		RoutingKey: routingKey,
		Shard:      s.shards.Router().ShardFor(routingKey),
		Locked:     locked,
	}, nil
}

// Shards lists the configured shards sorted by name, and the default shard.
func (s *LockService) Shards() (string, []ShardInfo) {
	router := s.shards.Router()

	infos := make([]ShardInfo, 0, len(router.Shards()))
	for name, backend := range router.Shards() {
		info := ShardInfo{
			Name: name,
			Type: s.shards.ShardType(name),
		}
		if b, ok := backend.(*locker.BreakerBackend); ok {
			info.Breaker = b.State().String()
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	return router.DefaultShard(), infos
}

// Ready pings every shard concurrently and fails on the first unreachable
// one.
func (s *LockService) Ready(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for name, backend := range s.shards.Router().Shards() {
		pinger, ok := backend.(locker.Pinger)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := pinger.Ping(gctx); err != nil {
				return fmt.Errorf("shard %s: %w", name, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// Sweep purges expired records from every shard that supports it.
// A failing shard does not stop the others; all errors are joined.
func (s *LockService) Sweep(ctx context.Context) ([]SweepResult, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		results []SweepResult
	)

	for name, backend := range s.shards.Router().Shards() {
		sweeper, ok := backend.(locker.Sweeper)
		if !ok {
			continue
		}
		g.Go(func() error {
			removed, err := sweeper.Sweep(ctx)

			mu.Lock()
			results = append(results, SweepResult{Shard: name, Removed: removed, Error: err})
			mu.Unlock()

			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Shard < results[j].Shard
	})

	var errs []error
	for _, r := range results {
		if r.Error != nil {
			s.logger.Warn("shard sweep failed",
				zap.String("shard", r.Shard),
				zap.Error(r.Error),
			)
			errs = append(errs, fmt.Errorf("shard %s: %w", r.Shard, r.Error))
		}
	}

	return results, errors.Join(errs...)
}
