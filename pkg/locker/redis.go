package locker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRedisPrefix = "l:"

// releaseScript deletes the key only if it still holds our value, so a lock
// that expired and was taken by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// pruneThreshold is the number of remembered locks above which expired
// entries are dropped on the next acquire.
const pruneThreshold = 1024

// RedisBackend implements Backend on a single Redis instance.
//
// Acquisition goes through a Redsync mutex limited to one try, which sets
// the key with NX and a PX expiry, so Redis enforces both atomicity and TTL.
// Each attempt writes its own random value. The backend remembers the value
// of every lock it took, and Release deletes the key only while it still
// holds that value.
type RedisBackend struct {
	client *redis.Client
	rs     *redsync.Redsync
	prefix string
	logger *zap.Logger

	mu   sync.Mutex
	held map[string]heldLock
}

type heldLock struct {
	value string
	until time.Time
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithKeyPrefix namespaces lock keys. The default is "l:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisBackend) {
		r.prefix = prefix
	}
}

// NewRedisBackend creates a Redis-based backend using Redsync.
func NewRedisBackend(client *redis.Client, logger *zap.Logger, opts ...RedisOption) *RedisBackend {
	pool := goredis.NewPool(client)

	r := &RedisBackend{
		client: client,
		rs:     redsync.New(pool),
		prefix: defaultRedisPrefix,
		logger: logger,
		held:   make(map[string]heldLock),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Acquire implements Backend.
//
// Redsync reports contention as ErrFailed, as an ErrTaken, or as an
// ErrNodeTaken per node; all map to ErrLockAlreadyHeld. Anything else is a
// problem with Redis itself.
func (r *RedisBackend) Acquire(ctx context.Context, key string, duration time.Duration, _ string) error {
	if err := CheckDuration(duration); err != nil {
		return err
	}

	name := r.buildKey(key)
	mutex := r.rs.NewMutex(
		name,
		redsync.WithExpiry(duration),
		redsync.WithTries(1), // Don't retry, return immediately
		redsync.WithGenValueFunc(func() (string, error) {
			return uuid.NewString(), nil
		}),
	)

	err := mutex.LockContext(ctx)
	if err == nil {
		r.remember(name, heldLock{value: mutex.Value(), until: mutex.Until()})
		r.logger.Debug("lock acquired",
			zap.String("key", key),
			zap.Duration("ttl", duration),
		)
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if isContention(err) {
		return ErrLockAlreadyHeld
	}

	return Unavailable("redis", "acquire", err)
}

func isContention(err error) bool {
	var (
		taken     *redsync.ErrTaken
		nodeTaken *redsync.ErrNodeTaken
	)
	return errors.Is(err, redsync.ErrFailed) ||
		errors.As(err, &taken) ||
		errors.As(err, &nodeTaken)
}

// Release implements Backend.
func (r *RedisBackend) Release(ctx context.Context, key, _ string) error {
	name := r.buildKey(key)

	lock, ok := r.forget(name)
	if !ok {
		r.logger.Debug("lock not held through this backend", zap.String("key", key))
		return nil
	}

	n, err := releaseScript.Run(ctx, r.client, []string{name}, lock.value).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		// Keep the value so the release can be retried
		r.remember(name, lock)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return Unavailable("redis", "release", err)
	}

	if n == 0 {
		r.logger.Debug("lock already expired", zap.String("key", key))
	}

	return nil
}

func (r *RedisBackend) remember(name string, lock heldLock) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.held) >= pruneThreshold {
		now := time.Now()
		for k, l := range r.held {
			if now.After(l.until) {
				delete(r.held, k)
			}
		}
	}
	r.held[name] = lock
}

func (r *RedisBackend) forget(name string) (heldLock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.held[name]
	delete(r.held, name)
	return lock, ok
}

// Locked implements Backend.
func (r *RedisBackend) Locked(ctx context.Context, key, _ string) (bool, error) {
	n, err := r.client.Exists(ctx, r.buildKey(key)).Result()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, Unavailable("redis", "locked", err)
	}
	return n > 0, nil
}

// Ping implements Pinger.
func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return Unavailable("redis", "ping", err)
	}
	return nil
}

// buildKey creates a fully-qualified key by prefixing with the configured prefix.
func (r *RedisBackend) buildKey(key string) string {
	return r.prefix + key
}
