package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/taskline/taskline/internal/backoff"
	"github.com/taskline/taskline/internal/metrics"
	"github.com/taskline/taskline/internal/monitor"
	"golang.org/x/sync/semaphore"
)

// JobQueue is an in-process, persistent, priority-ordered job queue.
// A host creates one with New, registers handlers, calls Start and
// finally Shutdown.
type JobQueue struct {
	mu sync.Mutex

	jobs     map[string]*Job // live table, jobID -> job
	dead     []*Job          // dead letter list, oldest first
	inFlight map[string]struct{}
	counters counters

	cfg      Config
	store    Storage
	handlers *registry
	reporter monitor.Reporter
	now      func() time.Time

	// tickSem admits one scheduling pass at a time.
	tickSem *semaphore.Weighted

	// Handler contexts derive from ctx; cancel fires when shutdown gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc

	started        bool
	closed         bool
	persistStopped bool

	// Background ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type counters struct {
	totalProcessed    int64
	totalCompleted    int64
	totalFailed       int64
	processingTimeSum time.Duration
}

// New creates a queue backed by store and loads any state persisted by a
// previous process. Jobs that were processing when that process stopped
// are reset to pending.
func New(store Storage, cfg Config, opts ...Option) *JobQueue {
	ctx, cancel := context.WithCancel(context.Background())

	q := &JobQueue{
		jobs:     make(map[string]*Job),
		inFlight: make(map[string]struct{}),
		cfg:      cfg.withDefaults(),
		store:    store,
		handlers: newRegistry(),
		reporter: monitor.NopReporter{},
		now:      time.Now,
		tickSem:  semaphore.NewWeighted(1),
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.load()
	return q
}

// load restores both durable records.
func (q *JobQueue) load() {
	q.mu.Lock()
	defer q.mu.Unlock()

	recovered := 0
	for _, job := range readSnapshot(q.store, jobsKey) {
		if job.Status == StatusProcessing {
			job.Status = StatusPending
			// The interrupted attempt is retried once without passing the ceiling
			if job.Attempts >= job.MaxAttempts {
				job.Attempts = max(job.MaxAttempts-1, 0)
			}
			recovered++
		}
		q.jobs[job.ID] = job
	}
	q.dead = readSnapshot(q.store, deadLetterKey)

	if recovered > 0 {
		log.Warn().Int("count", recovered).Msg("requeued jobs interrupted by previous shutdown")
	}
	log.Info().Int("jobs", len(q.jobs)).Int("dead", len(q.dead)).Msg("job queue loaded")
	q.refreshGaugesLocked()
}

// Start starts the scheduling ticker
func (q *JobQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.started {
		return ErrAlreadyStarted
	}
	q.started = true

	q.wg.Add(1)
	go q.tickWorker()

	log.Info().
		Int("max_concurrent", q.cfg.MaxConcurrent).
		Dur("tick_interval", q.cfg.TickInterval).
		Strs("handlers", q.handlers.types()).
		Msg("job queue started")
	return nil
}

// tickWorker fires a scheduling pass every TickInterval. Passes run in their
// own goroutine so a slow pass makes the next ticks skip instead of queueing.
func (q *JobQueue) tickWorker() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			go q.tick()
		}
	}
}

// RegisterHandler binds a handler to a job type, replacing any previous one.
func (q *JobQueue) RegisterHandler(jobType string, h Handler) {
	q.handlers.set(jobType, h)
	log.Debug().Str("type", jobType).Msg("handler registered")
}

// RegisterFunc is RegisterHandler for plain functions.
func (q *JobQueue) RegisterFunc(jobType string, fn func(ctx context.Context, payload []byte, job *Job) error) {
	q.RegisterHandler(jobType, HandlerFunc(fn))
}

// AddJob enqueues a job and returns its id. It never fails; a persistence
// error is logged and the job stays queued in memory.
func (q *JobQueue) AddJob(jobType string, payload []byte, opts ...JobOption) string {
	now := q.now()

	job := &Job{
		ID:          newJobID(),
		Type:        jobType,
		Priority:    PriorityNormal,
		Payload:     payload,
		Status:      StatusPending,
		MaxAttempts: q.cfg.DefaultMaxAttempts,
		CreatedAt:   now,
	}
	for _, opt := range opts {
		opt(job)
	}
	if job.Priority == "" {
		job.Priority = PriorityNormal
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	closed := q.closed
	q.persistJobsLocked()
	q.mu.Unlock()

	if closed {
		log.Warn().Str("job_id", job.ID).Str("type", jobType).Msg("job added after shutdown will not be persisted or run")
	}

	metrics.JobsAddedTotal.WithLabelValues(jobType).Inc()
	log.Debug().Str("job_id", job.ID).Str("type", jobType).Str("priority", string(job.Priority)).Msg("job added")
	return job.ID
}

// GetJob returns a copy of a live job.
func (q *JobQueue) GetJob(jobID string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// ClearCompleted removes completed jobs older than the retention window
// and returns how many were removed.
func (q *JobQueue) ClearCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-q.cfg.CompletedRetention)
	removed := 0
	for id, job := range q.jobs {
		if job.Status == StatusCompleted && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		q.persistJobsLocked()
		log.Info().Int("removed", removed).Msg("cleared completed jobs")
	}
	return removed
}

// tick runs one scheduling pass and returns after every job it dispatched
// has settled. It returns immediately if another pass is running.
func (q *JobQueue) tick() {
	if !q.tickSem.TryAcquire(1) {
		metrics.TicksSkipped.Inc()
		return
	}
	defer q.tickSem.Release(1)

	batch := q.claimReady()
	if len(batch) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, jobID := range batch {
		wg.Add(1)
		go func(jobID string) {
			defer wg.Done()
			q.execute(jobID)
		}(jobID)
	}
	wg.Wait()
}

// claimReady selects the jobs to dispatch this pass and marks them in flight.
func (q *JobQueue) claimReady() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	budget := q.cfg.MaxConcurrent - len(q.inFlight)
	if budget <= 0 {
		return nil
	}

	now := q.now()
	ready := make([]*Job, 0)
	for id, job := range q.jobs {
		if _, busy := q.inFlight[id]; busy {
			continue
		}
		if job.IsReady(now) {
			ready = append(ready, job)
		}
	}

	selected := takeInOrder(ready, budget)
	ids := make([]string, len(selected))
	for i, job := range selected {
		q.inFlight[job.ID] = struct{}{}
		ids[i] = job.ID
	}
	return ids
}

// execute runs one attempt of a claimed job and records the outcome.
func (q *JobQueue) execute(jobID string) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok {
		delete(q.inFlight, jobID)
		q.mu.Unlock()
		return
	}

	handler, ok := q.handlers.get(job.Type)
	if !ok {
		// A missing handler is a configuration error; retrying cannot help.
		job.Status = StatusFailed
		job.Error = NoHandlerMessage
		delete(q.inFlight, jobID)
		q.persistJobsLocked()
		q.mu.Unlock()

		metrics.JobsFailedTotal.WithLabelValues(job.Type).Inc()
		log.Error().Str("job_id", jobID).Str("type", job.Type).Msg("no handler registered for job type")
		return
	}

	startedAt := q.now()
	job.Status = StatusProcessing
	job.ProcessedAt = &startedAt
	job.Attempts++
	q.persistJobsLocked()
	snapshot := job.clone()
	q.mu.Unlock()

	metrics.JobsDispatchedTotal.WithLabelValues(snapshot.Type).Inc()
	log.Debug().Str("job_id", jobID).Str("type", snapshot.Type).Int("attempt", snapshot.Attempts).Msg("job dispatched")

	runStart := time.Now()
	handlerErr := q.invoke(handler, snapshot)
	elapsed := time.Since(runStart)

	var deadJob *Job

	q.mu.Lock()
	delete(q.inFlight, jobID)
	now := q.now()

	if handlerErr == nil {
		job.Status = StatusCompleted
		job.CompletedAt = &now
		job.Error = ""

		q.counters.totalCompleted++
		q.counters.totalProcessed++
		q.counters.processingTimeSum += now.Sub(startedAt)

		metrics.JobsCompletedTotal.WithLabelValues(job.Type).Inc()
		metrics.JobDuration.WithLabelValues(job.Type).Observe(elapsed.Seconds())
		log.Debug().Str("job_id", jobID).Str("type", job.Type).Dur("elapsed", elapsed).Msg("job completed")
	} else {
		job.Error = handlerErr.Error()
		q.counters.totalFailed++
		q.counters.totalProcessed++
		metrics.JobsFailedTotal.WithLabelValues(job.Type).Inc()

		if job.Exhausted() {
			q.moveToDeadLetterLocked(job)
			deadJob = job.clone()
		} else {
			job.Status = StatusPending
			eta := now.Add(backoff.Calculate(q.cfg.Backoff, job.Attempts))
			job.NextRetryAt = &eta

			metrics.JobsRetriedTotal.WithLabelValues(job.Type).Inc()
			log.Warn().Err(handlerErr).
				Str("job_id", jobID).
				Str("type", job.Type).
				Int("attempts", job.Attempts).
				Time("next_retry_at", eta).
				Msg("job failed, scheduled for retry")
		}
	}

	q.persistJobsLocked()
	q.mu.Unlock()

	if deadJob != nil {
		q.reportDead(deadJob, handlerErr)
	}
}

// invoke calls the handler, converting a panic into an error.
func (q *JobQueue) invoke(h Handler, job *Job) (err error) {
	ctx := q.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("job_id", job.ID).
				Str("type", job.Type).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("job handler panicked")
			err = fmt.Errorf("panic in job %s: %v", job.Type, r)
		}
	}()

	return h.Handle(ctx, job.Payload, job)
}

// reportDead forwards a permanently failed job to the monitoring sink.
func (q *JobQueue) reportDead(job *Job, cause error) {
	q.reporter.CaptureError(cause, monitor.Event{
		Tags: map[string]string{
			"job_type": job.Type,
			"job_id":   job.ID,
		},
		Extra: map[string]any{
			"payload":  string(job.Payload),
			"attempts": job.Attempts,
		},
		Level: monitor.LevelError,
	})
}

// Shutdown stops scheduling, waits up to ShutdownTimeout for running jobs
// and persists the live table one last time. Jobs still running when the
// wait expires stay "processing" in storage and are retried after restart.
func (q *JobQueue) Shutdown() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	started := q.started
	q.mu.Unlock()

	if started {
		close(q.stopCh)
		q.wg.Wait()
	}

	deadline := time.Now().Add(q.cfg.ShutdownTimeout)
	for q.inFlightCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(q.cfg.ShutdownPoll)
	}

	if n := q.inFlightCount(); n > 0 {
		log.Warn().Int("in_flight", n).Msg("shutdown timed out with jobs still running")
	}
	q.cancel()

	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.persistJobsLocked()
	q.persistStopped = true

	log.Info().Int("jobs", len(q.jobs)).Msg("job queue shut down")
	return err
}

func (q *JobQueue) inFlightCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// persistJobsLocked writes the live table. Failures are logged and returned
// but never undo the in-memory change. Caller holds q.mu.
func (q *JobQueue) persistJobsLocked() error {
	q.refreshGaugesLocked()
	return q.writeSnapshotLocked(jobsKey, sortedJobs(q.jobs))
}

// persistDeadLetterLocked writes the dead letter list. Caller holds q.mu.
func (q *JobQueue) persistDeadLetterLocked() error {
	return q.writeSnapshotLocked(deadLetterKey, q.dead)
}

func (q *JobQueue) writeSnapshotLocked(key []byte, jobs []*Job) error {
	if q.persistStopped {
		return nil
	}

	data, err := encodeSnapshot(jobs)
	if err == nil {
		err = q.store.Set(key, data)
	}
	if err != nil {
		metrics.PersistErrors.WithLabelValues(string(key)).Inc()
		log.Error().Err(err).Str("key", string(key)).Msg("failed to persist job queue")
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}

func (q *JobQueue) refreshGaugesLocked() {
	counts := map[Status]int{
		StatusPending:    0,
		StatusProcessing: 0,
		StatusCompleted:  0,
		StatusFailed:     0,
	}
	for _, job := range q.jobs {
		counts[job.Status]++
	}
	for status, n := range counts {
		metrics.Jobs.WithLabelValues(string(status)).Set(float64(n))
	}
	metrics.Jobs.WithLabelValues(string(StatusDead)).Set(float64(len(q.dead)))
}

// newJobID returns a UUIDv7: millisecond timestamp prefix plus random bits.
func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
