// Package config provides application configuration management using Viper.
// Configuration is loaded from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"lock-service/internal/validator"
)

// Shard backend types.
const (
	ShardTypeMemory   = "memory"
	ShardTypeRedis    = "redis"
	ShardTypePostgres = "postgres"
	ShardTypeRemote   = "remote"
)

// Retry strategies.
const (
	RetryNone        = "none"
	RetryFixed       = "fixed"
	RetryTimed       = "timed"
	RetryExponential = "exponential"
)

// Config holds all application configuration.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Sentry  SentryConfig  `mapstructure:"sentry"`
	Shards  []ShardConfig `mapstructure:"shards" validate:"required,min=1,dive"`
	Router  RouterConfig  `mapstructure:"router"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Sweep   SweepConfig   `mapstructure:"sweep"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"` // development, staging, production
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	Debug           bool          `mapstructure:"debug"`
	BodyLimit       int           `mapstructure:"body_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ShardConfig describes one named lock backend.
type ShardConfig struct {
	Name     string         `mapstructure:"name" validate:"required,max=64"`
	Type     string         `mapstructure:"type" validate:"required,oneof=memory redis postgres remote"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Remote   RemoteConfig   `mapstructure:"remote"`
}

// RedisConfig holds Redis connection settings for a redis shard.
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr returns the host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database connection settings for a postgres shard.
type DatabaseConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Name         string        `mapstructure:"name"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	SSLMode      string        `mapstructure:"ssl_mode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	AutoMigrate  *bool         `mapstructure:"auto_migrate"`
}

// ShouldMigrate reports whether migrations run at startup. Defaults to true.
func (c *DatabaseConfig) ShouldMigrate() bool {
	return c.AutoMigrate == nil || *c.AutoMigrate
}

// RemoteConfig holds settings for a shard served by another lockd.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RouterConfig holds shard routing settings.
type RouterConfig struct {
	DefaultShard string `mapstructure:"default_shard"`
}

// BreakerConfig holds circuit breaker settings applied to every shard.
type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio" validate:"gte=0,lte=1"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

// RetryConfig holds the default acquisition retry policy.
type RetryConfig struct {
	Strategy    string        `mapstructure:"strategy" validate:"oneof=none fixed timed exponential"`
	Interval    time.Duration `mapstructure:"interval"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=0"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SweepConfig holds expired-lock sweeper settings.
type SweepConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
	Output string `mapstructure:"output"` // stdout, stderr, file path

	// Rotation settings, used when Output is a file path
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// SentryConfig holds Sentry error tracking settings.
type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Load reads configuration from file and environment variables.
// Priority: env vars > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found, continue with defaults + env vars
	}

	// Environment variable settings
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Viper defaults do not reach into list elements
	for i := range cfg.Shards {
		cfg.Shards[i].applyDefaults()
	}
	if cfg.Router.DefaultShard == "" && len(cfg.Shards) > 0 {
		cfg.Router.DefaultShard = cfg.Shards[0].Name
	}

	return &cfg, nil
}

// Validate checks the loaded configuration for consistency.
func (c *Config) Validate() error {
	if err := validator.Default().Validate(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Shards))
	for _, s := range c.Shards {
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("invalid config: duplicate shard name %q", s.Name)
		}
		seen[s.Name] = struct{}{}

		if s.Type == ShardTypeRemote && s.Remote.BaseURL == "" {
			return fmt.Errorf("invalid config: shard %q: remote.base_url is required", s.Name)
		}
	}

	if _, ok := seen[c.Router.DefaultShard]; !ok {
		return fmt.Errorf("invalid config: router.default_shard %q is not a configured shard", c.Router.DefaultShard)
	}

	if c.Sweep.Enabled && c.Sweep.Schedule == "" {
		return errors.New("invalid config: sweep.schedule is required when sweep is enabled")
	}

	return nil
}

// applyDefaults fills connection settings left empty in the config file.
func (s *ShardConfig) applyDefaults() {
	switch s.Type {
	case ShardTypeRedis:
		if s.Redis.Host == "" {
			s.Redis.Host = "localhost"
		}
		if s.Redis.Port == 0 {
			s.Redis.Port = 6379
		}
		if s.Redis.KeyPrefix == "" {
			s.Redis.KeyPrefix = "l:"
		}
	case ShardTypePostgres:
		if s.Database.Host == "" {
			s.Database.Host = "localhost"
		}
		if s.Database.Port == 0 {
			s.Database.Port = 5432
		}
		if s.Database.Name == "" {
			s.Database.Name = "locks"
		}
		if s.Database.SSLMode == "" {
			s.Database.SSLMode = "disable"
		}
		if s.Database.MaxOpenConns == 0 {
			s.Database.MaxOpenConns = 25
		}
		if s.Database.MaxIdleConns == 0 {
			s.Database.MaxIdleConns = 5
		}
		if s.Database.MaxLifetime == 0 {
			s.Database.MaxLifetime = 5 * time.Minute
		}
	case ShardTypeRemote:
		if s.Remote.Timeout == 0 {
			s.Remote.Timeout = 5 * time.Second
		}
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "lockd")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.debug", false)
	v.SetDefault("app.body_limit", 64*1024)
	v.SetDefault("app.shutdown_timeout", "10s")

	// A single in-process shard so lockd starts without infrastructure
	v.SetDefault("shards", []map[string]any{
		{"name": "default", "type": ShardTypeMemory},
	})
	v.SetDefault("router.default_shard", "")

	// Breaker defaults
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_requests", 3)
	v.SetDefault("breaker.interval", "60s")
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.failure_ratio", 0.5)
	v.SetDefault("breaker.min_requests", 3)

	// Retry defaults
	v.SetDefault("retry.strategy", RetryNone)
	v.SetDefault("retry.interval", "100ms")
	v.SetDefault("retry.max_interval", "2s")
	v.SetDefault("retry.max_attempts", 0)
	v.SetDefault("retry.timeout", "10s")

	// Sweep defaults
	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.schedule", "@every 1m")
	v.SetDefault("sweep.lock_ttl", "30s")
	v.SetDefault("sweep.timeout", "20s")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age_days", 28)
	v.SetDefault("logger.compress", false)

	// Sentry defaults
	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.sample_rate", 1.0)
}
