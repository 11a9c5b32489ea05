package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lock-service/pkg/locker"
)

// acquireSQL inserts the lock row, or takes over an existing row only if it
// has expired. The conflict check and the update happen under the row lock
// Postgres takes for ON CONFLICT, so concurrent callers cannot both win.
// Expiry uses the database clock so instances with skewed clocks agree.
const acquireSQL = `
INSERT INTO locks (lock_key, holder, acquired_at, expires_at)
VALUES (?, ?, now(), now() + make_interval(secs => ?))
ON CONFLICT (lock_key) DO UPDATE
SET holder = EXCLUDED.holder,
    acquired_at = EXCLUDED.acquired_at,
    expires_at = EXCLUDED.expires_at
WHERE locks.expires_at <= now()`

// Backend implements locker.Backend using a PostgreSQL table.
// Every lock taken through one Backend carries the same holder id; Release
// only deletes rows holding it.
type Backend struct {
	db     *gorm.DB
	holder string
	logger *zap.Logger
}

// NewBackend creates a new PostgreSQL lock backend.
func NewBackend(db *gorm.DB, logger *zap.Logger) *Backend {
	return &Backend{
		db:     db,
		holder: uuid.NewString(),
		logger: logger,
	}
}

// Acquire implements locker.Backend.
func (b *Backend) Acquire(ctx context.Context, key string, duration time.Duration, _ string) error {
	if err := locker.CheckDuration(duration); err != nil {
		return err
	}

	result := b.db.WithContext(ctx).Exec(acquireSQL, key, b.holder, duration.Seconds())
	if result.Error != nil {
		return b.unavailable(ctx, "acquire", result.Error)
	}

	if result.RowsAffected == 0 {
		return locker.ErrLockAlreadyHeld
	}

	b.logger.Debug("lock acquired",
		zap.String("key", key),
		zap.Duration("ttl", duration),
	)

	return nil
}

// Release implements locker.Backend.
func (b *Backend) Release(ctx context.Context, key, _ string) error {
	result := b.db.WithContext(ctx).
		Where("lock_key = ? AND holder = ?", key, b.holder).
		Delete(&LockModel{})
	if result.Error != nil {
		return b.unavailable(ctx, "release", result.Error)
	}

	if result.RowsAffected == 0 {
		b.logger.Debug("lock not owned by this backend or already released",
			zap.String("key", key),
		)
	}

	return nil
}

// Locked implements locker.Backend.
func (b *Backend) Locked(ctx context.Context, key, _ string) (bool, error) {
	var count int64
	err := b.db.WithContext(ctx).
		Model(&LockModel{}).
		Where("lock_key = ? AND expires_at > now()", key).
		Count(&count).Error
	if err != nil {
		return false, b.unavailable(ctx, "locked", err)
	}

	return count > 0, nil
}

// Sweep implements locker.Sweeper by deleting expired rows.
func (b *Backend) Sweep(ctx context.Context) (int64, error) {
	result := b.db.WithContext(ctx).
		Where("expires_at <= now()").
		Delete(&LockModel{})
	if result.Error != nil {
		return 0, b.unavailable(ctx, "sweep", result.Error)
	}

	return result.RowsAffected, nil
}

// Ping implements locker.Pinger.
func (b *Backend) Ping(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return locker.Unavailable("postgres", "ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return b.unavailable(ctx, "ping", err)
	}
	return nil
}

func (b *Backend) unavailable(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return locker.Unavailable("postgres", op, err)
}
