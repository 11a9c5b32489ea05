// Package registry builds the configured lock shards and the router over
// them.
package registry

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lock-service/internal/config"
	"lock-service/internal/infra/postgres"
	"lock-service/internal/infra/postgres/migrations"
	redisinfra "lock-service/internal/infra/redis"
	"lock-service/internal/infra/remote"
	"lock-service/pkg/locker"
)

// Registry owns the shard backends and the connections behind them.
type Registry struct {
	router  *locker.ShardedRouter
	types   map[string]string
	closers []func() error
	logger  *zap.Logger
}

// Build creates every configured shard and a router over them.
// Connections are verified up front; if any shard fails, the shards already
// built are closed and the error is returned.
//
// Parameters:
//   - cfg: validated configuration; only Shards, Router and Breaker are read
//   - logger: Zap logger, scoped per shard with a "shard" field
func Build(cfg *config.Config, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		types:  make(map[string]string, len(cfg.Shards)),
		logger: logger,
	}

	backends := make(map[string]locker.Backend, len(cfg.Shards))
	for _, shard := range cfg.Shards {
		shardLogger := logger.With(zap.String("shard", shard.Name))

		backend, err := r.newShard(shard, shardLogger)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("building shard %q: %w", shard.Name, err)
		}

		if cfg.Breaker.Enabled {
			backend = locker.NewBreakerBackend(shard.Name, backend, locker.BreakerConfig{
				MaxRequests:  cfg.Breaker.MaxRequests,
				Interval:     cfg.Breaker.Interval,
				Timeout:      cfg.Breaker.Timeout,
				FailureRatio: cfg.Breaker.FailureRatio,
				MinRequests:  cfg.Breaker.MinRequests,
			}, shardLogger)
		}

		backends[shard.Name] = backend
		r.types[shard.Name] = shard.Type

		shardLogger.Info("lock shard ready", zap.String("type", shard.Type))
	}

	r.router = locker.NewShardedRouter(cfg.Router.DefaultShard, backends)

	return r, nil
}

func (r *Registry) newShard(shard config.ShardConfig, logger *zap.Logger) (locker.Backend, error) {
	switch shard.Type {
	case config.ShardTypeMemory:
		return locker.NewMemoryBackend(), nil

	case config.ShardTypeRedis:
		client, err := redisinfra.NewClient(redisinfra.Config{
			Addr:     shard.Redis.Addr(),
			Password: shard.Redis.Password,
			DB:       shard.Redis.DB,
		}, logger)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, client.Close)

		return locker.NewRedisBackend(client, logger, locker.WithKeyPrefix(shard.Redis.KeyPrefix)), nil

	case config.ShardTypePostgres:
		db, err := postgres.NewConnection(postgres.Config{
			Host:         shard.Database.Host,
			Port:         shard.Database.Port,
			Name:         shard.Database.Name,
			User:         shard.Database.User,
			Password:     shard.Database.Password,
			SSLMode:      shard.Database.SSLMode,
			MaxOpenConns: shard.Database.MaxOpenConns,
			MaxIdleConns: shard.Database.MaxIdleConns,
			MaxLifetime:  shard.Database.MaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, func() error { return postgres.Close(db) })

		if shard.Database.ShouldMigrate() {
			if err := migrations.Run(db); err != nil {
				return nil, fmt.Errorf("running migrations: %w", err)
			}
			logger.Info("lock table migrations applied")
		}

		return postgres.NewBackend(db, logger), nil

	case config.ShardTypeRemote:
		return remote.New(remote.ClientConfig{
			BaseURL: shard.Remote.BaseURL,
			Timeout: shard.Remote.Timeout,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unknown shard type %q", shard.Type)
	}
}

// Router returns the shard router.
func (r *Registry) Router() *locker.ShardedRouter {
	return r.router
}

// Backend returns a Backend that routes every call to its shard.
func (r *Registry) Backend() locker.Backend {
	return locker.Routed(r.router)
}

// ShardType returns the configured type of the named shard.
func (r *Registry) ShardType(name string) string {
	return r.types[name]
}

// Close releases every connection held by the shards.
func (r *Registry) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil

	return errors.Join(errs...)
}

// NewRetryPolicy builds the default acquisition retry policy from config.
// MaxAttempts and Timeout bound every strategy when set.
func NewRetryPolicy(cfg config.RetryConfig) locker.RetryPolicy {
	var policy locker.BackoffPolicy

	switch cfg.Strategy {
	case config.RetryFixed:
		policy = locker.FixedRetry(cfg.Interval, cfg.MaxAttempts)
	case config.RetryTimed:
		policy = locker.TimedRetry(cfg.Timeout, cfg.Interval)
	case config.RetryExponential:
		policy = locker.ExponentialRetry(cfg.Interval, cfg.MaxInterval, cfg.Timeout)
	default:
		return locker.NoRetry()
	}

	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Timeout > 0 {
		policy.Timeout = cfg.Timeout
	}

	return policy
}
