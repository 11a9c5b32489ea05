package registry

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lock-service/internal/config"
	"lock-service/pkg/locker"
)

func redisShard(t *testing.T, name string, mr *miniredis.Miniredis) config.ShardConfig {
	t.Helper()

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	return config.ShardConfig{
		Name: name,
		Type: config.ShardTypeRedis,
		Redis: config.RedisConfig{
			Host:      mr.Host(),
			Port:      port,
			KeyPrefix: "l:",
		},
	}
}

func TestBuild_MixedShards(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		Shards: []config.ShardConfig{
			{Name: "mem", Type: config.ShardTypeMemory},
			redisShard(t, "cache", mr),
			{Name: "peer", Type: config.ShardTypeRemote, Remote: config.RemoteConfig{BaseURL: "http://lockd-b:8080", Timeout: time.Second}},
		},
		Router:  config.RouterConfig{DefaultShard: "mem"},
		Breaker: config.BreakerConfig{Enabled: true, MaxRequests: 1, Timeout: time.Second, FailureRatio: 0.5},
	}

	reg, err := Build(cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, reg.Close()) }()

	router := reg.Router()
	assert.Equal(t, "mem", router.DefaultShard())
	assert.Len(t, router.Shards(), 3)
	assert.Equal(t, config.ShardTypeRedis, reg.ShardType("cache"))

	for name, backend := range router.Shards() {
		_, ok := backend.(*locker.BreakerBackend)
		assert.True(t, ok, "shard %s should be wrapped in a breaker", name)
	}

	// A routing key that lands on the redis shard stores its key there
	ctx := context.Background()
	var routingKey string
	for i := 0; i < 1000; i++ {
		candidate := "org:" + strconv.Itoa(i)
		if router.ShardFor(candidate) == "cache" {
			routingKey = candidate
			break
		}
	}
	require.NotEmpty(t, routingKey)

	require.NoError(t, reg.Backend().Acquire(ctx, "job:7", time.Minute, routingKey))
	assert.True(t, mr.Exists("l:job:7"))
}

func TestBuild_FailingShardClosesOthers(t *testing.T) {
	good := miniredis.RunT(t)
	bad := miniredis.RunT(t)
	badShard := redisShard(t, "bad", bad)
	bad.Close()

	cfg := &config.Config{
		Shards: []config.ShardConfig{
			redisShard(t, "good", good),
			badShard,
		},
		Router: config.RouterConfig{DefaultShard: "good"},
	}

	reg, err := Build(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, reg)
	assert.Contains(t, err.Error(), `building shard "bad"`)

	assert.Eventually(t, func() bool {
		return good.CurrentConnectionCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestNewRetryPolicy(t *testing.T) {
	tests := []struct {
		name         string
		cfg          config.RetryConfig
		wantAttempts int
		wantTimeout  time.Duration
	}{
		{
			name:         "none",
			cfg:          config.RetryConfig{Strategy: config.RetryNone, Timeout: time.Second},
			wantAttempts: 1,
		},
		{
			name:         "fixed",
			cfg:          config.RetryConfig{Strategy: config.RetryFixed, Interval: time.Millisecond, MaxAttempts: 4},
			wantAttempts: 4,
		},
		{
			name:        "timed",
			cfg:         config.RetryConfig{Strategy: config.RetryTimed, Interval: time.Millisecond, Timeout: 2 * time.Second},
			wantTimeout: 2 * time.Second,
		},
		{
			name:         "exponential bounded by both",
			cfg:          config.RetryConfig{Strategy: config.RetryExponential, Interval: time.Millisecond, MaxInterval: time.Second, MaxAttempts: 6, Timeout: 3 * time.Second},
			wantAttempts: 6,
			wantTimeout:  3 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, ok := NewRetryPolicy(tt.cfg).(locker.BackoffPolicy)
			require.True(t, ok)

			assert.Equal(t, tt.wantAttempts, policy.MaxAttempts)
			assert.Equal(t, tt.wantTimeout, policy.Timeout)
		})
	}
}

func TestNewRetryPolicy_RetriesContention(t *testing.T) {
	policy := NewRetryPolicy(config.RetryConfig{
		Strategy:    config.RetryFixed,
		Interval:    time.Millisecond,
		MaxAttempts: 3,
	})

	calls := 0
	err := policy.Run(context.Background(), func(context.Context) error {
		calls++
		return locker.ErrLockAlreadyHeld
	})

	assert.ErrorIs(t, err, locker.ErrAcquisitionTimeout)
	assert.Equal(t, 3, calls)
}
