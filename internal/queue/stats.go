package queue

import "time"

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Dead       int

	// AvgProcessingTime is the summed run time of completed jobs divided
	// by every processed attempt, or zero before the first one.
	AvgProcessingTime time.Duration

	TotalProcessed int64
	TotalCompleted int64
	TotalFailed    int64
}

// Stats counts live jobs by status and reports the cumulative counters.
func (q *JobQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Stats
	for _, job := range q.jobs {
		switch job.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	s.Dead = len(q.dead)

	s.TotalProcessed = q.counters.totalProcessed
	s.TotalCompleted = q.counters.totalCompleted
	s.TotalFailed = q.counters.totalFailed
	if s.TotalProcessed > 0 {
		s.AvgProcessingTime = q.counters.processingTimeSum / time.Duration(s.TotalProcessed)
	}
	return s
}
