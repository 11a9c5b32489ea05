package locker

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	expiresAt time.Time
}

// MemoryBackend implements Backend in process memory. It coordinates
// goroutines of one process only and is intended for tests, development and
// single-instance deployments. Expired records are treated as absent on
// read and removed by Sweep.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	now     func() time.Time
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) {
		b.now = now
	}
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		records: make(map[string]memoryRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Acquire implements Backend.
func (b *MemoryBackend) Acquire(ctx context.Context, key string, duration time.Duration, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckDuration(duration); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if rec, ok := b.records[key]; ok && now.Before(rec.expiresAt) {
		return ErrLockAlreadyHeld
	}

	b.records[key] = memoryRecord{expiresAt: now.Add(duration)}

	return nil
}

// Release implements Backend.
func (b *MemoryBackend) Release(ctx context.Context, key, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.records, key)
	b.mu.Unlock()

	return nil
}

// Locked implements Backend.
func (b *MemoryBackend) Locked(ctx context.Context, key, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[key]
	return ok && b.now().Before(rec.expiresAt), nil
}

// Sweep implements Sweeper.
func (b *MemoryBackend) Sweep(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var removed int64
	for key, rec := range b.records {
		if !now.Before(rec.expiresAt) {
			delete(b.records, key)
			removed++
		}
	}

	return removed, nil
}

// Ping implements Pinger. Memory is always reachable.
func (b *MemoryBackend) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored records, live or expired.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}
