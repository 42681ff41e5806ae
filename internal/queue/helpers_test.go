package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/taskline/taskline/internal/monitor"
	"github.com/taskline/taskline/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type captured struct {
	err error
	ev  monitor.Event
}

type recordingReporter struct {
	mu     sync.Mutex
	events []captured
}

func (r *recordingReporter) CaptureError(err error, ev monitor.Event) {
	r.mu.Lock()
	r.events = append(r.events, captured{err: err, ev: ev})
	r.mu.Unlock()
}

func (r *recordingReporter) all() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]captured(nil), r.events...)
}

// failingStore rejects every write.
type failingStore struct {
	*store.MemoryStore
}

func (failingStore) Set(key, value []byte) error {
	return errors.New("disk full")
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond
	cfg.ShutdownTimeout = time.Second
	cfg.ShutdownPoll = 5 * time.Millisecond
	return cfg
}

func newTestQueue(t *testing.T, s Storage, cfg Config, clock *fakeClock, opts ...Option) *JobQueue {
	t.Helper()
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	q := New(s, cfg, opts...)
	t.Cleanup(func() { q.Shutdown() })
	return q
}

func succeed(context.Context, []byte, *Job) error { return nil }

func fail(context.Context, []byte, *Job) error { return errors.New("upstream unavailable") }
