package taskline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the server has no such job.
var ErrNotFound = errors.New("taskline: not found")

// ErrRateLimited is returned when the server rejects an enqueue with 429.
var ErrRateLimited = errors.New("taskline: rate limited")

// Client is a taskline HTTP client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new taskline client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Job represents a job
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Priority    string          `json:"priority"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	TimeoutMs   int64           `json:"timeout_ms,omitempty"`
}

// Stats is the queue summary
type Stats struct {
	Pending             int     `json:"pending"`
	Processing          int     `json:"processing"`
	Completed           int     `json:"completed"`
	Failed              int     `json:"failed"`
	Dead                int     `json:"dead"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	TotalProcessed      int64   `json:"total_processed"`
	TotalCompleted      int64   `json:"total_completed"`
	TotalFailed         int64   `json:"total_failed"`
}

// RateLimit is the enqueue limit of one job type
type RateLimit struct {
	Type      string  `json:"type"`
	Burst     float64 `json:"burst"`
	PerSecond float64 `json:"per_second"`
	Tokens    float64 `json:"tokens"`
	Exists    bool    `json:"exists"`
}

// EnqueueOptions for enqueuing jobs
type EnqueueOptions struct {
	Priority    string // critical, high, normal or low
	MaxAttempts int
	Delay       time.Duration
	Timeout     time.Duration
}

// Enqueue adds a job of jobType. payload is marshalled to JSON.
func (c *Client) Enqueue(ctx context.Context, jobType string, payload interface{}, opts *EnqueueOptions) (string, error) {
	if opts == nil {
		opts = &EnqueueOptions{}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req := map[string]interface{}{
		"type":    jobType,
		"payload": json.RawMessage(payloadBytes),
	}
	if opts.Priority != "" {
		req["priority"] = opts.Priority
	}
	if opts.MaxAttempts > 0 {
		req["max_attempts"] = opts.MaxAttempts
	}
	if opts.Delay > 0 {
		req["delay_ms"] = opts.Delay.Milliseconds()
	}
	if opts.Timeout > 0 {
		req["timeout_ms"] = opts.Timeout.Milliseconds()
	}

	var resp struct {
		JobID string `json:"job_id"`
	}

	if err := c.doRequest(ctx, "POST", "/v1/jobs", req, &resp); err != nil {
		return "", err
	}

	return resp.JobID, nil
}

// GetJob fetches a live job
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.doRequest(ctx, "GET", "/v1/jobs/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Stats returns queue statistics
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.doRequest(ctx, "GET", "/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// DeadLetter lists dead jobs, most recent last
func (c *Client) DeadLetter(ctx context.Context) ([]*Job, error) {
	var resp struct {
		Jobs []*Job `json:"jobs"`
	}
	if err := c.doRequest(ctx, "GET", "/v1/dead", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// RetryDead requeues a dead job
func (c *Client) RetryDead(ctx context.Context, jobID string) error {
	return c.doRequest(ctx, "POST", "/v1/dead/"+url.PathEscape(jobID)+"/retry", nil, nil)
}

// ClearCompleted removes completed jobs past retention and returns the count
func (c *Client) ClearCompleted(ctx context.Context) (int, error) {
	var resp struct {
		Removed int `json:"removed"`
	}
	if err := c.doRequest(ctx, "POST", "/v1/completed/clear", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

// GetRateLimit returns the enqueue limit for jobType
func (c *Client) GetRateLimit(ctx context.Context, jobType string) (*RateLimit, error) {
	var rl RateLimit
	if err := c.doRequest(ctx, "GET", "/v1/rate_limit/"+url.PathEscape(jobType), nil, &rl); err != nil {
		return nil, err
	}
	return &rl, nil
}

// SetRateLimit sets the enqueue limit for jobType; zero values remove it
func (c *Client) SetRateLimit(ctx context.Context, jobType string, burst, perSecond float64) (*RateLimit, error) {
	req := map[string]interface{}{
		"burst":      burst,
		"per_second": perSecond,
	}
	var rl RateLimit
	if err := c.doRequest(ctx, "POST", "/v1/rate_limit/"+url.PathEscape(jobType), req, &rl); err != nil {
		return nil, err
	}
	return &rl, nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, errorMessage(respBody))
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, errorMessage(respBody))
	case resp.StatusCode >= 400:
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, errorMessage(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// errorMessage extracts the "error" field of a JSON error body.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
