package queue

import (
	"github.com/rs/zerolog/log"
	"github.com/taskline/taskline/internal/metrics"
)

// moveToDeadLetterLocked takes an exhausted job out of the live table and
// appends it to the dead letter list, evicting the oldest entries past
// DeadLetterCap. Both records are persisted. Caller holds q.mu.
func (q *JobQueue) moveToDeadLetterLocked(job *Job) {
	job.Status = StatusDead
	job.NextRetryAt = nil
	delete(q.jobs, job.ID)

	q.dead = append(q.dead, job)
	if over := len(q.dead) - q.cfg.DeadLetterCap; over > 0 {
		trimmed := make([]*Job, q.cfg.DeadLetterCap)
		copy(trimmed, q.dead[over:])
		q.dead = trimmed
	}

	// Dead letter first: a crash in between leaves a duplicate, never a loss
	q.persistDeadLetterLocked()
	q.persistJobsLocked()

	metrics.JobsDeadTotal.WithLabelValues(job.Type).Inc()
	log.Error().
		Str("job_id", job.ID).
		Str("type", job.Type).
		Int("attempts", job.Attempts).
		Str("error", job.Error).
		Msg("job moved to dead letter queue")
}

// DeadLetterQueue returns copies of the dead jobs, most recent last.
func (q *JobQueue) DeadLetterQueue() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Job, len(q.dead))
	for i, job := range q.dead {
		out[i] = job.clone()
	}
	return out
}

// RetryDeadJob moves a dead job back into the live table with a fresh
// attempt budget. It returns false if jobID is not in the dead letter list.
func (q *JobQueue) RetryDeadJob(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i, job := range q.dead {
		if job.ID == jobID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	job := q.dead[idx]
	q.dead = append(q.dead[:idx], q.dead[idx+1:]...)

	job.Status = StatusPending
	job.Attempts = 0
	job.Error = ""
	job.NextRetryAt = nil
	q.jobs[job.ID] = job

	q.persistJobsLocked()
	q.persistDeadLetterLocked()

	log.Info().Str("job_id", jobID).Str("type", job.Type).Msg("dead job requeued")
	return true
}
