// Package job provides background job schedulers.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"lock-service/internal/app/service"
	"lock-service/pkg/locker"
)

// SweepLockKey is the lock that keeps sweeps from overlapping across lockd
// instances sharing a default shard.
const SweepLockKey = "lockd:sweeper"

// scheduleParser accepts standard five-field expressions and descriptors
// such as "@every 1m".
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// SweepConfig holds sweep scheduler configuration.
type SweepConfig struct {
	Schedule string
	LockTTL  time.Duration
	Timeout  time.Duration
}

// SweepScheduler periodically purges expired lock records from every shard
// that supports it. Each run holds SweepLockKey, so only one instance
// sweeps at a time.
type SweepScheduler struct {
	service  *service.LockService
	lock     *locker.Lock
	schedule cron.Schedule
	timeout  time.Duration
	logger   *zap.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSweepScheduler creates a new SweepScheduler.
//
// Parameters:
//   - svc: Service owning the shards to sweep
//   - cfg: Schedule expression, guard lock TTL and per-run timeout
//   - logger: Structured logger for operational visibility
func NewSweepScheduler(svc *service.LockService, cfg SweepConfig, logger *zap.Logger) (*SweepScheduler, error) {
	schedule, err := scheduleParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing sweep schedule %q: %w", cfg.Schedule, err)
	}

	lock, err := svc.Manager().Get(SweepLockKey, cfg.LockTTL,
		locker.WithRetryPolicy(locker.NoRetry()),
		locker.WithName("sweeper"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sweep lock: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 || timeout > cfg.LockTTL {
		timeout = cfg.LockTTL
	}

	cl := cronLogger{logger.Sugar()}

	return &SweepScheduler{
		service:  svc,
		lock:     lock,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
	}, nil
}

// Start begins the background sweep job.
func (s *SweepScheduler) Start() {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		_, _ = s.RunOnce(s.ctx)
	}))
	s.cron.Start()

	s.logger.Info("sweep scheduler started",
		zap.Time("next_run", s.schedule.Next(time.Now())),
	)
}

// Stop gracefully stops the scheduler, waiting for a running sweep.
func (s *SweepScheduler) Stop() {
	s.logger.Info("stopping sweep scheduler")
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.logger.Info("sweep scheduler stopped")
}

// RunOnce performs a single sweep if no other instance is sweeping.
// It reports whether this instance swept.
func (s *SweepScheduler) RunOnce(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	swept := false
	err := s.lock.Run(ctx, func(ctx context.Context) error {
		swept = true

		results, err := s.service.Sweep(ctx)

		var total int64
		for _, r := range results {
			total += r.Removed
		}
		s.logger.Info("sweep completed",
			zap.Int("shards", len(results)),
			zap.Int64("removed", total),
			zap.Bool("partial", err != nil),
		)

		return err
	})

	switch {
	case err == nil:
		return true, nil
	case !swept && errors.Is(err, locker.ErrLockAlreadyHeld):
		s.logger.Debug("another instance is sweeping, skipping execution")
		return false, nil
	default:
		s.logger.Error("sweep failed", zap.Error(err))
		return swept, err
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
