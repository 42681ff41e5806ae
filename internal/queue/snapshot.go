package queue

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/taskline/taskline/internal/util"
)

// Keys of the two durable records.
var (
	jobsKey       = []byte("taskline:jobs")
	deadLetterKey = []byte("taskline:dead_letter")
)

// Storage is the durable key-value store the queue snapshots into.
// Get returns (nil, nil) for a missing key.
type Storage interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// encodeSnapshot serializes jobs as a JSON array followed by a CRC32C trailer.
func encodeSnapshot(jobs []*Job) ([]byte, error) {
	if jobs == nil {
		jobs = []*Job{}
	}
	data, err := json.Marshal(jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return util.AppendChecksum(data), nil
}

// decodeSnapshot is the inverse of encodeSnapshot.
func decodeSnapshot(buf []byte) ([]*Job, error) {
	data, ok := util.SplitChecksum(buf)
	if !ok {
		return nil, fmt.Errorf("snapshot checksum mismatch")
	}
	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return jobs, nil
}

// readSnapshot loads one record. Missing, unreadable or corrupt records
// all come back as an empty list.
func readSnapshot(s Storage, key []byte) []*Job {
	buf, err := s.Get(key)
	if err != nil {
		log.Error().Err(err).Str("key", string(key)).Msg("failed to read snapshot, starting empty")
		return nil
	}
	if buf == nil {
		return nil
	}

	jobs, err := decodeSnapshot(buf)
	if err != nil {
		log.Warn().Err(err).Str("key", string(key)).Msg("discarding malformed snapshot")
		return nil
	}

	valid := jobs[:0]
	for _, j := range jobs {
		if j == nil || j.ID == "" {
			continue
		}
		valid = append(valid, j)
	}
	return valid
}

// sortedJobs returns the live table ordered by creation for stable snapshots.
func sortedJobs(m map[string]*Job) []*Job {
	out := make([]*Job, 0, len(m))
	for _, j := range m {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out
}
