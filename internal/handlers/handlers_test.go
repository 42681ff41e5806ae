package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskline/taskline/internal/queue"
	"github.com/taskline/taskline/internal/store"
)

func webhookPayload(t *testing.T, p WebhookPayload) []byte {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return data
}

func TestWebhookDelivers(t *testing.T) {
	var (
		gotMethod string
		gotBody   []byte
		gotHeader http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	job := &queue.Job{ID: "job-1", Attempts: 2}
	payload := webhookPayload(t, WebhookPayload{
		URL:     srv.URL + "/hooks/upload",
		Method:  "put",
		Headers: map[string]string{"Authorization": "Bearer token"},
		Body:    json.RawMessage(`{"file":"a.jpg"}`),
	})

	err := NewWebhook(srv.Client()).Handle(context.Background(), payload, job)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.JSONEq(t, `{"file":"a.jpg"}`, string(gotBody))
	assert.Equal(t, "Bearer token", gotHeader.Get("Authorization"))
	assert.Equal(t, "job-1", gotHeader.Get("X-Taskline-Job-ID"))
	assert.Equal(t, "2", gotHeader.Get("X-Taskline-Attempt"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
}

func TestWebhookNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	payload := webhookPayload(t, WebhookPayload{URL: srv.URL})
	err := NewWebhook(nil).Handle(context.Background(), payload, &queue.Job{ID: "job-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "bucket unavailable")
}

func TestWebhookRejectsBadPayload(t *testing.T) {
	w := NewWebhook(nil)
	job := &queue.Job{ID: "job-3"}

	assert.ErrorContains(t, w.Handle(context.Background(), []byte("not json"), job), "invalid webhook payload")
	assert.ErrorContains(t, w.Handle(context.Background(), []byte(`{"method":"POST"}`), job), "url is required")
}

func TestWebhookHonoursContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewWebhook(nil).Handle(ctx, webhookPayload(t, WebhookPayload{URL: srv.URL}), &queue.Job{ID: "job-4"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = orig }()

	require.NoError(t, Log(context.Background(), []byte(`{"event":"signup"}`), &queue.Job{ID: "job-5", Attempts: 1}))
	require.NoError(t, Log(context.Background(), []byte("plain"), &queue.Job{ID: "job-6", Attempts: 1}))

	out := buf.String()
	assert.Contains(t, out, `"payload":{"event":"signup"}`)
	assert.Contains(t, out, `"payload":"plain"`)
	assert.Contains(t, out, `"job_id":"job-5"`)
}

func TestRegisterServesBuiltins(t *testing.T) {
	hits := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
	}))
	defer srv.Close()

	cfg := queue.DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond
	q := queue.New(store.NewMemory(), cfg)
	defer q.Shutdown()

	Register(q, srv.Client())
	require.NoError(t, q.Start())

	jobID := q.AddJob(TypeWebhook, webhookPayload(t, WebhookPayload{URL: srv.URL}))
	logID := q.AddJob(TypeLog, []byte(`{"ok":true}`))

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not called")
	}

	require.Eventually(t, func() bool {
		a, _ := q.GetJob(jobID)
		b, _ := q.GetJob(logID)
		return a.Status == queue.StatusCompleted && b.Status == queue.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}
