package queue

import (
	"fmt"
	"strings"
	"time"
)

// Priority is fixed when a job is created.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// rank orders priorities for dispatch; lower runs first.
// Unknown values rank as normal.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// ParsePriority converts a case-insensitive name into a Priority.
// The empty string parses as normal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityNormal, nil
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// Status represents the current status of a job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDead       Status = "dead"
)

// Job represents a queued job
type Job struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Priority    Priority      `json:"priority"`
	Payload     []byte        `json:"payload"`
	Status      Status        `json:"status"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	CreatedAt   time.Time     `json:"created_at"`
	ProcessedAt *time.Time    `json:"processed_at"`
	CompletedAt *time.Time    `json:"completed_at"`
	Error       string        `json:"error,omitempty"`
	NextRetryAt *time.Time    `json:"next_retry_at"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// IsReady returns true if the job may be dispatched at now.
func (j *Job) IsReady(now time.Time) bool {
	return j.Status == StatusPending && (j.NextRetryAt == nil || !j.NextRetryAt.After(now))
}

// Exhausted returns true once the job has used all of its attempts.
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// clone returns a deep copy safe to hand out of the queue lock.
func (j *Job) clone() *Job {
	c := *j
	if j.Payload != nil {
		c.Payload = append([]byte(nil), j.Payload...)
	}
	c.ProcessedAt = cloneTime(j.ProcessedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.NextRetryAt = cloneTime(j.NextRetryAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// JobOption customizes a job at AddJob time.
type JobOption func(*Job)

// WithPriority sets the job priority (default normal).
func WithPriority(p Priority) JobOption {
	return func(j *Job) { j.Priority = p }
}

// WithMaxAttempts overrides the attempt ceiling. Values below 1 keep the
// queue default.
func WithMaxAttempts(n int) JobOption {
	return func(j *Job) {
		if n > 0 {
			j.MaxAttempts = n
		}
	}
}

// WithDelay holds the job back for d after creation.
func WithDelay(d time.Duration) JobOption {
	return func(j *Job) {
		if d > 0 {
			eta := j.CreatedAt.Add(d)
			j.NextRetryAt = &eta
		}
	}
}

// WithTimeout sets a deadline on the context handed to the handler.
func WithTimeout(d time.Duration) JobOption {
	return func(j *Job) {
		if d > 0 {
			j.Timeout = d
		}
	}
}
