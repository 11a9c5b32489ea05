// Package main is the entry point for lockd, the distributed lock service.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"lock-service/internal/app/service"
	"lock-service/internal/config"
	"lock-service/internal/infra/registry"
	"lock-service/internal/job"
	"lock-service/internal/logger"
	"lock-service/internal/transport/httpserver"
	"lock-service/internal/validator"
	"lock-service/pkg/locker"
)

func main() {
	// Load configuration; APP_CONFIG_FILE overrides the search path
	cfg, err := config.Load(os.Getenv("APP_CONFIG_FILE"))
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}

	// Initialize logger
	log, err := logger.New(
		logger.Config{
			Level:      cfg.Logger.Level,
			Format:     cfg.Logger.Format,
			Output:     cfg.Logger.Output,
			MaxSizeMB:  cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
			MaxAgeDays: cfg.Logger.MaxAgeDays,
			Compress:   cfg.Logger.Compress,
		},
		logger.SentryConfig{
			Enabled:     cfg.Sentry.Enabled,
			DSN:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
		},
	)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Close() }()

	log.Info("starting lockd",
		zap.String("env", cfg.App.Env),
		zap.Int("port", cfg.App.Port),
		zap.Int("shards", len(cfg.Shards)),
	)

	// Build shards and router
	shards, err := registry.Build(cfg, log.Logger)
	if err != nil {
		log.Fatal("failed to build lock shards", zap.Error(err))
	}
	defer func() {
		if err := shards.Close(); err != nil {
			log.Error("closing shards", zap.Error(err))
		}
	}()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	lockMetrics := locker.NewMetrics()
	if err := lockMetrics.Register(reg); err != nil {
		log.Fatal("failed to register lock metrics", zap.Error(err))
	}

	// Create service
	lockSvc := service.NewLockService(shards, registry.NewRetryPolicy(cfg.Retry), lockMetrics, log.Logger)

	// Create HTTP server
	server, err := httpserver.NewServer(
		httpserver.ServerConfig{
			Name:      cfg.App.Name,
			BodyLimit: cfg.App.BodyLimit,
		},
		lockSvc,
		validator.Default(),
		reg,
		log.Logger,
	)
	if err != nil {
		log.Fatal("failed to create HTTP server", zap.Error(err))
	}

	// Start sweeper guarded by a lock on the default shard
	var scheduler *job.SweepScheduler
	if cfg.Sweep.Enabled {
		scheduler, err = job.NewSweepScheduler(lockSvc, job.SweepConfig{
			Schedule: cfg.Sweep.Schedule,
			LockTTL:  cfg.Sweep.LockTTL,
			Timeout:  cfg.Sweep.Timeout,
		}, log.Logger)
		if err != nil {
			log.Fatal("failed to create sweep scheduler", zap.Error(err))
		}
		scheduler.Start()
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutdown signal received")

		// Stop scheduler
		if scheduler != nil {
			scheduler.Stop()
		}

		if err := server.Shutdown(cfg.App.ShutdownTimeout); err != nil {
			log.Error("server shutdown error", zap.Error(err))
		}
	}()

	// Start server
	if err := server.Start(cfg.App.Port); err != nil {
		log.Error("server error", zap.Error(err))
	}
}
