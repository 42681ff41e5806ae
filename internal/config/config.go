package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/taskline/taskline/internal/backoff"
	"github.com/taskline/taskline/internal/queue"
	"github.com/taskline/taskline/internal/ratelimit"
	"github.com/taskline/taskline/internal/store"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TASKLINE_"

// Config represents the application configuration
type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Storage    StorageConfig             `yaml:"storage"`
	Queue      QueueConfig               `yaml:"queue"`
	Monitoring MonitoringConfig          `yaml:"monitoring"`
	Logging    LoggingConfig             `yaml:"logging"`
	RateLimit  map[string]ratelimit.Rate `yaml:"rate_limit"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the snapshot backend
type StorageConfig struct {
	Backend string `yaml:"backend"` // pebble, sqlite, postgres, redis or memory
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
}

// QueueConfig holds queue settings
type QueueConfig struct {
	MaxConcurrent      int           `yaml:"max_concurrent"`
	TickInterval       time.Duration `yaml:"tick_interval"`
	DefaultMaxAttempts int           `yaml:"default_max_attempts"`
	CompletedRetention time.Duration `yaml:"completed_retention"`
	CleanupSchedule    string        `yaml:"cleanup_schedule"` // cron expression, empty disables
	DeadLetterCap      int           `yaml:"dead_letter_cap"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	Backoff            BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds the retry delay schedule
type BackoffConfig struct {
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`
}

// MonitoringConfig holds the error reporting settings. An empty SentryDSN
// reports dead jobs to the log instead.
type MonitoringConfig struct {
	SentryDSN   string `yaml:"sentry_dsn"`
	Environment string `yaml:"environment"`
	Release     string `yaml:"release"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Default returns default configuration
func Default() *Config {
	q := queue.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend: store.BackendPebble,
			Path:    "./data",
		},
		Queue: QueueConfig{
			MaxConcurrent:      q.MaxConcurrent,
			TickInterval:       q.TickInterval,
			DefaultMaxAttempts: q.DefaultMaxAttempts,
			CompletedRetention: q.CompletedRetention,
			CleanupSchedule:    "@every 10m",
			DeadLetterCap:      q.DeadLetterCap,
			ShutdownTimeout:    q.ShutdownTimeout,
			Backoff: BackoffConfig{
				BaseDelay:  q.Backoff.BaseDelay,
				MaxDelay:   q.Backoff.MaxDelay,
				Multiplier: q.Backoff.Multiplier,
				Jitter:     q.Backoff.Jitter,
			},
		},
		Monitoring: MonitoringConfig{
			Environment: "production",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimit: map[string]ratelimit.Rate{},
	}
}

// Load loads configuration from file, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads config from file or returns default
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		fmt.Printf("Warning: failed to load config: %v, using defaults\n", err)
		return Default()
	}
	return cfg
}

// ApplyEnv overrides fields from TASKLINE_* variables. DATABASE_URL,
// REDIS_URL and SENTRY_DSN are honoured when the prefixed form is unset.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(names ...string) (string, bool) {
		for _, n := range names {
			if v, ok := lookup(n); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := get(EnvPrefix + "HTTP_ADDR"); ok {
		c.Server.HTTPAddr = v
	}
	if v, ok := get(EnvPrefix + "STORAGE_BACKEND"); ok {
		c.Storage.Backend = v
	}
	if v, ok := get(EnvPrefix + "STORAGE_PATH"); ok {
		c.Storage.Path = v
	}
	if v, ok := get(EnvPrefix+"STORAGE_DSN", "DATABASE_URL", "REDIS_URL"); ok {
		c.Storage.DSN = v
	}
	if v, ok := get(EnvPrefix+"SENTRY_DSN", "SENTRY_DSN"); ok {
		c.Monitoring.SentryDSN = v
	}
	if v, ok := get(EnvPrefix + "ENVIRONMENT"); ok {
		c.Monitoring.Environment = v
	}
	if v, ok := get(EnvPrefix + "LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := get(EnvPrefix + "LOG_FORMAT"); ok {
		c.Logging.Format = v
	}

	if v, ok := get(EnvPrefix + "MAX_CONCURRENT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_CONCURRENT %q: %w", EnvPrefix, v, err)
		}
		c.Queue.MaxConcurrent = n
	}
	if v, ok := get(EnvPrefix + "CLEANUP_SCHEDULE"); ok {
		c.Queue.CleanupSchedule = v
	}
	if v, ok := get(EnvPrefix + "TICK_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sTICK_INTERVAL %q: %w", EnvPrefix, v, err)
		}
		c.Queue.TickInterval = d
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case store.BackendPebble, store.BackendSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
		}
	case store.BackendPostgres, store.BackendRedis:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the %s backend", c.Storage.Backend)
		}
	case store.BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Queue.MaxConcurrent < 1 {
		return fmt.Errorf("queue.max_concurrent must be at least 1")
	}
	if c.Queue.Backoff.BaseDelay <= 0 || c.Queue.Backoff.MaxDelay <= 0 {
		return fmt.Errorf("queue.backoff.base_delay and queue.backoff.max_delay must be positive")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	return nil
}

// StoreOptions converts the storage section for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend: c.Storage.Backend,
		Path:    c.Storage.Path,
		DSN:     c.Storage.DSN,
	}
}

// QueueConfig converts the queue section for queue.New.
func (c *Config) QueueConfig() queue.Config {
	qc := queue.DefaultConfig()
	qc.MaxConcurrent = c.Queue.MaxConcurrent
	qc.TickInterval = c.Queue.TickInterval
	qc.DefaultMaxAttempts = c.Queue.DefaultMaxAttempts
	qc.CompletedRetention = c.Queue.CompletedRetention
	qc.DeadLetterCap = c.Queue.DeadLetterCap
	qc.ShutdownTimeout = c.Queue.ShutdownTimeout
	qc.Backoff = backoff.Config{
		BaseDelay:  c.Queue.Backoff.BaseDelay,
		MaxDelay:   c.Queue.Backoff.MaxDelay,
		Multiplier: c.Queue.Backoff.Multiplier,
		Jitter:     c.Queue.Backoff.Jitter,
	}
	return qc
}
