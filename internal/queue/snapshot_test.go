package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskline/taskline/internal/store"
	"github.com/taskline/taskline/internal/util"
)

func TestSnapshotCodec(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	retry := created.Add(4 * time.Second)

	in := []*Job{{
		ID:          "job-1",
		Type:        "upload",
		Priority:    PriorityHigh,
		Payload:     []byte(`{"uri":"file:///tmp/x.png"}`),
		Status:      StatusPending,
		Attempts:    2,
		MaxAttempts: 3,
		CreatedAt:   created,
		ProcessedAt: &created,
		Error:       "timeout",
		NextRetryAt: &retry,
	}}

	data, err := encodeSnapshot(in)
	require.NoError(t, err)

	out, err := decodeSnapshot(data)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in[0], out[0])
}

func TestEncodeEmptySnapshot(t *testing.T) {
	data, err := encodeSnapshot(nil)
	require.NoError(t, err)

	raw, ok := util.SplitChecksum(data)
	require.True(t, ok)
	assert.Equal(t, "[]", string(raw))
}

func TestReadSnapshotSkipsInvalidEntries(t *testing.T) {
	s := store.NewMemory()
	require.NoError(t, s.Set(jobsKey, util.AppendChecksum([]byte(`[{"id":"a","type":"x"},{"type":"no id"},null]`))))

	jobs := readSnapshot(s, jobsKey)
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].ID)
}

func TestReadSnapshotMissingKey(t *testing.T) {
	assert.Empty(t, readSnapshot(store.NewMemory(), jobsKey))
}

func TestReadSnapshotBadJSON(t *testing.T) {
	s := store.NewMemory()
	require.NoError(t, s.Set(jobsKey, util.AppendChecksum([]byte(`{"id":"a"}`))))
	assert.Empty(t, readSnapshot(s, jobsKey))
}
