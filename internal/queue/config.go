package queue

import (
	"time"

	"github.com/taskline/taskline/internal/backoff"
	"github.com/taskline/taskline/internal/monitor"
)

// Config holds the scheduling and retention knobs of a JobQueue.
type Config struct {
	MaxConcurrent      int
	TickInterval       time.Duration
	DefaultMaxAttempts int
	CompletedRetention time.Duration
	DeadLetterCap      int
	ShutdownTimeout    time.Duration
	ShutdownPoll       time.Duration
	Backoff            backoff.Config
}

// DefaultConfig returns the default queue configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:      3,
		TickInterval:       1 * time.Second,
		DefaultMaxAttempts: 3,
		CompletedRetention: 1 * time.Hour,
		DeadLetterCap:      100,
		ShutdownTimeout:    5 * time.Second,
		ShutdownPoll:       100 * time.Millisecond,
		Backoff:            backoff.DefaultConfig(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.DefaultMaxAttempts <= 0 {
		c.DefaultMaxAttempts = d.DefaultMaxAttempts
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = d.CompletedRetention
	}
	if c.DeadLetterCap <= 0 {
		c.DeadLetterCap = d.DeadLetterCap
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.ShutdownPoll <= 0 {
		c.ShutdownPoll = d.ShutdownPoll
	}
	if c.Backoff.BaseDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

// Option configures collaborators of a JobQueue.
type Option func(*JobQueue)

// WithReporter sets the sink for permanently failed jobs.
func WithReporter(r monitor.Reporter) Option {
	return func(q *JobQueue) {
		if r != nil {
			q.reporter = r
		}
	}
}

// WithClock replaces time.Now for scheduling decisions.
func WithClock(now func() time.Time) Option {
	return func(q *JobQueue) {
		if now != nil {
			q.now = now
		}
	}
}
