package kestrelq

import (
	"context"
	"errors"
	"sync"

	"github.com/kestrelq/kestrelq/job"
)

// ErrNoHandler is returned by Registry.Lookup, and surfaced by
// Executor, when no Handler is registered for a job's JobType. A job
// hitting this is transitioned directly to Failed; it is not retried,
// since retrying cannot change which handlers are registered.
var ErrNoHandler = errors.New("kestrelq: no handler registered for job type")

// Handler processes a single job attempt. It receives the job's
// Payload and returns either a Result document (success) or an error
// (failure, subject to the job's retry policy).
//
// A Handler must be safe to call concurrently and must be idempotent:
// at-least-once delivery means the same payload may be handed to a
// Handler more than once.
type Handler func(ctx context.Context, payload job.Doc) (job.Doc, error)

// Registry maps a job's JobType to the Handler that processes it.
//
// A single Registry is typically shared by every Dispatcher and
// Executor in a process; it is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates jobType with h, replacing any handler
// previously registered for that type.
func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// Unregister removes the handler associated with jobType, if any.
func (r *Registry) Unregister(jobType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, jobType)
}

// Lookup returns the Handler registered for jobType, or ErrNoHandler
// if none is registered.
func (r *Registry) Lookup(jobType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	if !ok {
		return nil, ErrNoHandler
	}
	return h, nil
}
