package locker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_InvalidParameters(t *testing.T) {
	backend := new(mockBackend)

	tests := []struct {
		name     string
		key      string
		duration time.Duration
		opts     []Option
	}{
		{name: "empty key", key: "", duration: time.Second},
		{name: "zero duration", key: "job:7", duration: 0},
		{name: "negative duration", key: "job:7", duration: -time.Second},
		{name: "sub-second duration", key: "job:7", duration: time.Millisecond},
		{name: "fractional seconds", key: "job:7", duration: 1500 * time.Millisecond},
		{name: "whitespace in key", key: "job 7", duration: time.Second},
		{name: "control character in key", key: "job:\x007", duration: time.Second},
		{name: "key too long", key: strings.Repeat("k", 513), duration: time.Second},
		{name: "malformed routing key", key: "job:7", duration: time.Second, opts: []Option{WithRoutingKey("org 1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lock, err := New(backend, tt.key, tt.duration, tt.opts...)
			assert.Nil(t, lock)
			assert.ErrorIs(t, err, ErrInvalidParameters)
			assert.Equal(t, KindInvalidParameters, KindOf(err))
		})
	}

	// The backend is never reached
	backend.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNew_Accessors(t *testing.T) {
	lock, err := New(NewMemoryBackend(), "integration-sync:42", 30*time.Second, WithRoutingKey("org:1"))
	require.NoError(t, err)

	assert.Equal(t, "integration-sync:42", lock.Key())
	assert.Equal(t, 30*time.Second, lock.Duration())
	assert.Equal(t, "org:1", lock.RoutingKey())
}

func TestLock_AcquireReleaseExample(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	first, err := New(backend, "job:7", 30*time.Second)
	require.NoError(t, err)
	second, err := New(backend, "job:7", 30*time.Second)
	require.NoError(t, err)

	require.NoError(t, first.Acquire(ctx))

	err = second.TryAcquire(ctx)
	assert.ErrorIs(t, err, ErrLockAlreadyHeld)

	// Through the default NoRetry policy the failure is also a timeout
	err = second.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLockAlreadyHeld)
	assert.ErrorIs(t, err, ErrAcquisitionTimeout)

	require.NoError(t, first.Release(ctx))
	assert.NoError(t, second.Acquire(ctx))
}

func TestLock_Locked(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	lock, err := New(backend, "job:7", time.Minute)
	require.NoError(t, err)

	locked, err := lock.Locked(ctx)
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, lock.TryAcquire(ctx))

	locked, err = lock.Locked(ctx)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestLock_Run_ReleasesAfterSuccess(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	lock, err := New(backend, "job:7", time.Minute)
	require.NoError(t, err)

	called := false
	err = lock.Run(ctx, func(ctx context.Context) error {
		called = true
		locked, err := backend.Locked(ctx, "job:7", "")
		require.NoError(t, err)
		assert.True(t, locked, "lock must be held inside the critical section")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	locked, err := lock.Locked(ctx)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLock_Run_ReleasesAfterError(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	errBoom := errors.New("boom")

	lock, err := New(backend, "job:7", time.Minute)
	require.NoError(t, err)

	err = lock.Run(ctx, func(context.Context) error {
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	locked, err := lock.Locked(ctx)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLock_Run_ReleasesAfterPanic(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	lock, err := New(backend, "job:7", time.Minute)
	require.NoError(t, err)

	assert.PanicsWithValue(t, "boom", func() {
		_ = lock.Run(ctx, func(context.Context) error {
			panic("boom")
		})
	})

	locked, err := lock.Locked(ctx)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLock_Run_ReleasesAfterCancellation(t *testing.T) {
	backend := NewMemoryBackend()
	ctx, cancel := context.WithCancel(context.Background())

	lock, err := New(backend, "job:7", time.Minute)
	require.NoError(t, err)

	err = lock.Run(ctx, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	locked, err := backend.Locked(context.Background(), "job:7", "")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLock_Run_NotEnteredWhenHeld(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	holder, err := New(backend, "job:7", time.Minute)
	require.NoError(t, err)
	require.NoError(t, holder.TryAcquire(ctx))

	contender, err := New(backend, "job:7", time.Minute,
		WithRetryPolicy(FixedRetry(5*time.Millisecond, 3)),
	)
	require.NoError(t, err)

	called := false
	err = contender.Run(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.ErrorIs(t, err, ErrAcquisitionTimeout)

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 3, timeout.Attempts)

	// The failing contender never touched the holder's lock
	locked, err := backend.Locked(ctx, "job:7", "")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestLock_Run_ReleaseErrorDoesNotMaskResult(t *testing.T) {
	backend := new(mockBackend)
	errRelease := Unavailable("mock", "release", errors.New("connection reset"))
	errWork := errors.New("work failed")

	backend.On("Acquire", mock.Anything, "job:7", time.Minute, "").Return(nil)
	backend.On("Release", mock.Anything, "job:7", "").Return(errRelease)

	lock, err := New(backend, "job:7", time.Minute, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	err = lock.Run(context.Background(), func(context.Context) error {
		return errWork
	})
	assert.ErrorIs(t, err, errWork)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)

	err = lock.Run(context.Background(), func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)

	backend.AssertNumberOfCalls(t, "Release", 2)
}

func TestLock_Run_BackendErrorPropagates(t *testing.T) {
	backend := new(mockBackend)
	errDown := Unavailable("mock", "acquire", errors.New("connection refused"))

	backend.On("Acquire", mock.Anything, "job:7", time.Minute, "").Return(errDown)

	lock, err := New(backend, "job:7", time.Minute,
		WithRetryPolicy(FixedRetry(time.Millisecond, 5)),
	)
	require.NoError(t, err)

	err = lock.Run(context.Background(), func(context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.NotErrorIs(t, err, ErrAcquisitionTimeout)

	// Not retried, not released
	backend.AssertNumberOfCalls(t, "Acquire", 1)
	backend.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestLock_PassesRoutingKey(t *testing.T) {
	backend := new(mockBackend)
	ctx := context.Background()

	backend.On("Acquire", mock.Anything, "job:7", time.Minute, "org:1").Return(nil)
	backend.On("Release", mock.Anything, "job:7", "org:1").Return(nil)
	backend.On("Locked", mock.Anything, "job:7", "org:1").Return(true, nil)

	lock, err := New(backend, "job:7", time.Minute, WithRoutingKey("org:1"))
	require.NoError(t, err)

	require.NoError(t, lock.TryAcquire(ctx))
	locked, err := lock.Locked(ctx)
	require.NoError(t, err)
	assert.True(t, locked)
	require.NoError(t, lock.Release(ctx))

	backend.AssertExpectations(t)
}

func TestLock_Metrics(t *testing.T) {
	backend := NewMemoryBackend()
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))
	ctx := context.Background()

	lock, err := New(backend, "job:7", time.Minute, WithMetrics(metrics), WithName("sync"))
	require.NoError(t, err)

	require.NoError(t, lock.Run(ctx, func(context.Context) error { return nil }))
	require.NoError(t, lock.TryAcquire(ctx))
	assert.Error(t, lock.TryAcquire(ctx))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Acquisitions.WithLabelValues("sync", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Acquisitions.WithLabelValues("sync", "LOCK_ALREADY_HELD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Releases.WithLabelValues("sync", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.HeldSeconds))
}
