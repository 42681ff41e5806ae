package queue

import (
	"container/heap"
)

// jobHeap implements heap.Interface over the ready set.
// Jobs are ordered by: priority rank (ASC), created time (ASC), id (ASC)
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if ri, rj := h[i].Priority.rank(), h[j].Priority.rank(); ri != rj {
		return ri < rj
	}

	// Older job of the same priority comes first
	if !h[i].CreatedAt.Equal(h[j].CreatedAt) {
		return h[i].CreatedAt.Before(h[j].CreatedAt)
	}

	// Ids are time-ordered, which keeps FIFO within one clock tick
	return h[i].ID < h[j].ID
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(*Job))
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return job
}

// takeInOrder returns at most n jobs from ready in dispatch order.
// ready is reordered in place.
func takeInOrder(ready []*Job, n int) []*Job {
	if n <= 0 || len(ready) == 0 {
		return nil
	}

	h := jobHeap(ready)
	heap.Init(&h)

	if n > h.Len() {
		n = h.Len()
	}
	out := make([]*Job, 0, n)
	for len(out) < n {
		out = append(out, heap.Pop(&h).(*Job))
	}
	return out
}
