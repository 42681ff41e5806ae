package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskline/taskline/internal/queue"
	"github.com/taskline/taskline/internal/ratelimit"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultMatchesQueueDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, queue.DefaultConfig(), cfg.QueueConfig())
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "pebble", cfg.Storage.Backend)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":9000"
storage:
  backend: sqlite
  path: /var/lib/taskline/queue.db
queue:
  max_concurrent: 8
  tick_interval: 250ms
  completed_retention: 2h
  cleanup_schedule: "*/5 * * * *"
  backoff:
    base_delay: 500ms
    max_delay: 30s
    multiplier: 3
monitoring:
  sentry_dsn: https://key@sentry.example.com/1
logging:
  level: debug
  format: json
rate_limit:
  image_upload:
    burst: 20
    per_second: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/taskline/queue.db", cfg.Storage.Path)
	assert.Equal(t, "https://key@sentry.example.com/1", cfg.Monitoring.SentryDSN)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ratelimit.Rate{Burst: 20, PerSecond: 5}, cfg.RateLimit["image_upload"])

	qc := cfg.QueueConfig()
	assert.Equal(t, 8, qc.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, qc.TickInterval)
	assert.Equal(t, 2*time.Hour, qc.CompletedRetention)
	assert.Equal(t, "*/5 * * * *", cfg.Queue.CleanupSchedule)
	assert.Equal(t, 500*time.Millisecond, qc.Backoff.BaseDelay)
	assert.Equal(t, 30*time.Second, qc.Backoff.MaxDelay)
	assert.Equal(t, 3.0, qc.Backoff.Multiplier)

	// Untouched fields keep their defaults
	assert.Equal(t, 3, qc.DefaultMaxAttempts)
	assert.Equal(t, 100, qc.DeadLetterCap)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Queue, cfg.Queue)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "queue: [unclosed"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  backend: postgres\n"))
	assert.ErrorContains(t, err, "dsn is required")

	_, err = Load(writeConfig(t, "storage:\n  backend: redis\n"))
	assert.ErrorContains(t, err, "dsn is required for the redis backend")

	_, err = Load(writeConfig(t, "storage:\n  backend: etcd\n"))
	assert.ErrorContains(t, err, "unknown storage backend")

	_, err = Load(writeConfig(t, "logging:\n  format: xml\n"))
	assert.ErrorContains(t, err, "unknown logging format")
}

func TestLoadRejectsNonPositiveBackoff(t *testing.T) {
	_, err := Load(writeConfig(t, "queue:\n  backoff:\n    max_delay: 0s\n"))
	assert.ErrorContains(t, err, "max_delay must be positive")

	_, err = Load(writeConfig(t, "queue:\n  backoff:\n    base_delay: -1s\n"))
	assert.ErrorContains(t, err, "must be positive")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TASKLINE_HTTP_ADDR", "127.0.0.1:7070")
	t.Setenv("TASKLINE_STORAGE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/taskline?sslmode=disable")
	t.Setenv("TASKLINE_MAX_CONCURRENT", "6")
	t.Setenv("TASKLINE_TICK_INTERVAL", "2s")
	t.Setenv("SENTRY_DSN", "https://key@sentry.example.com/2")
	t.Setenv("TASKLINE_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "server:\n  http_addr: \":9000\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7070", cfg.Server.HTTPAddr)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/taskline?sslmode=disable", cfg.Storage.DSN)
	assert.Equal(t, 6, cfg.Queue.MaxConcurrent)
	assert.Equal(t, 2*time.Second, cfg.Queue.TickInterval)
	assert.Equal(t, "https://key@sentry.example.com/2", cfg.Monitoring.SentryDSN)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestEnvPrefixedFormWins(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"TASKLINE_STORAGE_DSN": "postgres://primary",
		"DATABASE_URL":         "postgres://fallback",
	}
	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	assert.Equal(t, "postgres://primary", cfg.Storage.DSN)
}

func TestEnvRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "TASKLINE_MAX_CONCURRENT" {
			return "lots", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "MAX_CONCURRENT")
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	cfg := LoadOrDefault(writeConfig(t, "queue: [unclosed"))
	assert.Equal(t, Default(), cfg)
}
