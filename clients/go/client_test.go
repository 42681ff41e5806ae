package taskline_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	taskline "github.com/taskline/taskline/clients/go"
	"github.com/taskline/taskline/internal/queue"
	"github.com/taskline/taskline/internal/ratelimit"
	"github.com/taskline/taskline/internal/rest"
	"github.com/taskline/taskline/internal/store"
)

func newServer(t *testing.T) (*taskline.Client, *queue.JobQueue) {
	t.Helper()
	cfg := queue.DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond
	q := queue.New(store.NewMemory(), cfg)
	t.Cleanup(func() { q.Shutdown() })

	srv := httptest.NewServer(rest.NewServer(q, ratelimit.NewLimiter(nil)).Handler())
	t.Cleanup(srv.Close)

	return taskline.NewClient(srv.URL + "/"), q
}

func TestClientEnqueueAndGet(t *testing.T) {
	client, _ := newServer(t)
	ctx := context.Background()

	jobID, err := client.Enqueue(ctx, "image_upload", map[string]string{"uri": "file:///a.jpg"}, &taskline.EnqueueOptions{
		Priority:    "critical",
		MaxAttempts: 4,
		Delay:       time.Minute,
	})
	require.NoError(t, err)

	job, err := client.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "image_upload", job.Type)
	assert.Equal(t, "critical", job.Priority)
	assert.Equal(t, "pending", job.Status)
	assert.Equal(t, 4, job.MaxAttempts)
	assert.JSONEq(t, `{"uri":"file:///a.jpg"}`, string(job.Payload))

	_, err = client.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, taskline.ErrNotFound)

	_, err = client.Enqueue(ctx, "x", nil, &taskline.EnqueueOptions{Priority: "urgent"})
	assert.ErrorContains(t, err, "unknown priority")
}

func TestClientStatsAndClear(t *testing.T) {
	client, _ := newServer(t)
	ctx := context.Background()

	_, err := client.Enqueue(ctx, "analytics", map[string]int{"n": 1}, nil)
	require.NoError(t, err)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	removed, err := client.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestClientDeadLetterRetry(t *testing.T) {
	client, q := newServer(t)
	ctx := context.Background()

	q.RegisterFunc("upload", func(context.Context, []byte, *queue.Job) error {
		return assert.AnError
	})
	require.NoError(t, q.Start())

	jobID, err := client.Enqueue(ctx, "upload", "payload", &taskline.EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		dead, err := client.DeadLetter(ctx)
		return err == nil && len(dead) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.RetryDead(ctx, jobID))
	assert.ErrorIs(t, client.RetryDead(ctx, jobID), taskline.ErrNotFound)
}

func TestClientRateLimit(t *testing.T) {
	client, _ := newServer(t)
	ctx := context.Background()

	rl, err := client.SetRateLimit(ctx, "analytics", 1, 0.001)
	require.NoError(t, err)
	assert.True(t, rl.Exists)

	_, err = client.Enqueue(ctx, "analytics", nil, nil)
	require.NoError(t, err)
	_, err = client.Enqueue(ctx, "analytics", nil, nil)
	assert.ErrorIs(t, err, taskline.ErrRateLimited)

	rl, err = client.GetRateLimit(ctx, "analytics")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rl.Burst)
}
