package queue

import (
	"context"
	"sync"
)

// Handler performs the work for one job type. A returned error counts as a
// failed attempt. The job passed in is a copy; changes to it are ignored.
type Handler interface {
	Handle(ctx context.Context, payload []byte, job *Job) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, payload []byte, job *Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, payload []byte, job *Job) error {
	return f(ctx, payload, job)
}

// registry maps job types to handlers; the last registration wins.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]Handler)}
}

func (r *registry) set(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

func (r *registry) get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

func (r *registry) types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
