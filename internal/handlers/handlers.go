// Package handlers contains the job handlers the taskline server
// registers out of the box.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/taskline/taskline/internal/queue"
)

// Job types served by this package.
const (
	TypeWebhook = "webhook"
	TypeLog     = "log"
)

// WebhookPayload is the payload of a webhook job.
type WebhookPayload struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// Webhook delivers a request described by a WebhookPayload. Any response
// outside 2xx is a failure so the queue retries it.
type Webhook struct {
	client *http.Client
}

// NewWebhook creates a Webhook. A nil client uses one with a 30s timeout.
func NewWebhook(client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Webhook{client: client}
}

// Handle implements queue.Handler.
func (w *Webhook) Handle(ctx context.Context, payload []byte, job *queue.Job) error {
	var p WebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("invalid webhook payload: %w", err)
	}
	if p.URL == "" {
		return fmt.Errorf("invalid webhook payload: url is required")
	}

	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if len(p.Body) > 0 {
		body = bytes.NewReader(p.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.URL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Taskline-Job-ID", job.ID)
	req.Header.Set("X-Taskline-Attempt", fmt.Sprint(job.Attempts))
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	io.Copy(io.Discard, resp.Body)

	log.Debug().Str("job_id", job.ID).Str("url", p.URL).Int("status", resp.StatusCode).Msg("webhook delivered")
	return nil
}

// Log writes the payload to the log and always succeeds.
func Log(ctx context.Context, payload []byte, job *queue.Job) error {
	ev := log.Info().Str("job_id", job.ID).Int("attempt", job.Attempts)
	if json.Valid(payload) {
		ev = ev.RawJSON("payload", payload)
	} else {
		ev = ev.Str("payload", string(payload))
	}
	ev.Msg("log job")
	return nil
}

// Register installs the built-in handlers on q.
func Register(q *queue.JobQueue, client *http.Client) {
	q.RegisterHandler(TypeWebhook, NewWebhook(client))
	q.RegisterFunc(TypeLog, Log)
}
