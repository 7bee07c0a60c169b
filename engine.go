package kestrelq

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelq/kestrelq/job"
	"github.com/kestrelq/kestrelq/queue"
	"github.com/kestrelq/kestrelq/store"
)

// DefaultMaxRetries is applied to a JobCreate whose MaxRetries field is
// left nil. An explicit 0 means the job gets no retries at all and is
// never coerced to this default.
const DefaultMaxRetries = 3

// JobCreate is the caller-supplied description of a new job, the
// input to Engine.Submit and Engine.SubmitBulk. MaxRetries is a
// pointer so that an explicit 0 (no retries) is distinguishable from
// "unset" (DefaultMaxRetries applies); the zero value of an int
// cannot carry that distinction.
type JobCreate struct {
	Name        string
	JobType     string
	Priority    int
	Payload     job.Doc
	MaxRetries  *int
	ScheduledAt *time.Time
	CreatedBy   *string
}

func (jc JobCreate) toJob() *job.Job {
	status := job.Queued
	if jc.ScheduledAt != nil && jc.ScheduledAt.After(time.Now()) {
		status = job.Pending
	}
	maxRetries := DefaultMaxRetries
	if jc.MaxRetries != nil {
		maxRetries = *jc.MaxRetries
	}
	return &job.Job{
		ID:          uuid.New(),
		Name:        jc.Name,
		JobType:     jc.JobType,
		Status:      status,
		Priority:    jc.Priority,
		Payload:     jc.Payload,
		MaxRetries:  maxRetries,
		ScheduledAt: jc.ScheduledAt,
		CreatedAt:   time.Now(),
		CreatedBy:   jc.CreatedBy,
	}
}

// Engine is the seam an out-of-scope HTTP (or other front-end) layer
// attaches to: it owns a Store and a Queue and exposes the submit,
// cancel and retry operations a dispatch service needs to expose
// externally, without prescribing the transport.
type Engine struct {
	store store.Store
	queue queue.Queue
}

// NewEngine creates an Engine. q may be nil, in which case submitted
// jobs rely entirely on the Dispatcher's store-fallback poll.
func NewEngine(s store.Store, q queue.Queue) *Engine {
	return &Engine{store: s, queue: q}
}

// Submit persists a new job and, if it is immediately eligible for
// dispatch, hands it to the priority queue as a fast-path hint.
func (e *Engine) Submit(ctx context.Context, jc JobCreate) (*job.Job, error) {
	j := jc.toJob()
	if err := e.store.Insert(ctx, j); err != nil {
		return nil, fmt.Errorf("kestrelq: submit: %w", err)
	}
	e.enqueueIfReady(ctx, j)
	if e.queue != nil {
		_ = e.queue.IncrementStat(ctx, "enqueued", 1)
	}
	return j, nil
}

// SubmitBulk inserts every job in creates and enqueues each one that
// is immediately eligible. A failure partway through returns the jobs
// successfully inserted so far alongside the error.
func (e *Engine) SubmitBulk(ctx context.Context, creates []JobCreate) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(creates))
	for _, jc := range creates {
		j := jc.toJob()
		if err := e.store.Insert(ctx, j); err != nil {
			return jobs, fmt.Errorf("kestrelq: submit bulk: %w", err)
		}
		jobs = append(jobs, j)
	}
	for _, j := range jobs {
		e.enqueueIfReady(ctx, j)
	}
	if e.queue != nil {
		_ = e.queue.IncrementStat(ctx, "enqueued", int64(len(jobs)))
	}
	return jobs, nil
}

func (e *Engine) enqueueIfReady(ctx context.Context, j *job.Job) {
	if e.queue == nil || j.Status != job.Queued {
		return
	}
	if err := e.queue.Enqueue(ctx, j.ID.String(), j.Priority); err != nil {
		return
	}
	_ = e.queue.PublishEvent(ctx, "job.enqueued", map[string]any{"job_id": j.ID.String()})
}

// Cancel transitions id to Cancelled and best-effort removes it from
// the priority queue so it is not dispatched after all.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	j, err := e.store.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, store.ErrNotFound
	}
	if e.queue != nil {
		_ = e.queue.Remove(ctx, id.String())
	}
	return j, nil
}

// Retry explicitly re-queues a Failed or Cancelled job, resetting its
// attempt counter, and enqueues it as a fast-path hint.
func (e *Engine) Retry(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	j, err := e.store.ResetForRetry(ctx, id)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, store.ErrInvalidTransition
	}
	e.enqueueIfReady(ctx, j)
	return j, nil
}

// Get returns the job identified by id.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	return e.store.Get(ctx, id)
}

// List returns jobs matching filter.
func (e *Engine) List(ctx context.Context, filter store.Filter) ([]*job.Job, error) {
	return e.store.List(ctx, filter)
}
