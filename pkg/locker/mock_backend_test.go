package locker

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Acquire(ctx context.Context, key string, duration time.Duration, routingKey string) error {
	args := m.Called(ctx, key, duration, routingKey)
	return args.Error(0)
}

func (m *mockBackend) Release(ctx context.Context, key, routingKey string) error {
	args := m.Called(ctx, key, routingKey)
	return args.Error(0)
}

func (m *mockBackend) Locked(ctx context.Context, key, routingKey string) (bool, error) {
	args := m.Called(ctx, key, routingKey)
	return args.Bool(0), args.Error(1)
}
