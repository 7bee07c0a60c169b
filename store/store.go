// Package store defines and implements the durable job record: the
// source of truth for job lifecycle state, backed by a SQL database
// accessed through github.com/uptrace/bun.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelq/kestrelq/job"
)

var (
	// ErrNotFound is returned by Get when no job with the given id
	// exists.
	ErrNotFound = errors.New("store: job not found")

	// ErrInvalidTransition is returned when a requested state change
	// does not apply to the job's current status (for example,
	// cancelling an already-completed job, or retrying a job that is
	// not Failed or Cancelled).
	ErrInvalidTransition = errors.New("store: invalid status transition")
)

// Filter narrows Store.List to jobs matching the given status (zero
// value job.Unknown means no filter) with an optional row cap (zero
// or negative means unbounded, subject to storage-specific limits).
type Filter struct {
	Status job.Status
	Limit  int
}

// Store is the durable, transactional contract backing kestrelq's
// dispatch core. Implementations must ensure atomic state transitions
// under concurrent writers, including multiple kestrelq processes
// sharing the same database.
type Store interface {
	// Insert persists a new job row. The caller supplies all fields;
	// apart from setting a zero CreatedAt to the current time, Insert
	// does not set defaults beyond what the schema provides.
	Insert(ctx context.Context, j *job.Job) error

	// Claim atomically transitions the job identified by id from an
	// eligible status (Pending, Queued, Retrying) to Running,
	// incrementing Attempt, and setting StartedAt and WorkerID.
	//
	// Claim returns (nil, nil) if no eligible row exists for id —
	// covering races (another executor won), an already-terminal job,
	// or a stale queue entry. This is never reported as an error.
	Claim(ctx context.Context, id uuid.UUID, workerID string) (*job.Job, error)

	// Complete transitions a Running job to Completed, recording
	// result, CompletedAt and DurationSeconds, and clearing
	// ErrorMessage.
	Complete(ctx context.Context, id uuid.UUID, result job.Doc) (*job.Job, error)

	// Fail permanently transitions a job to Failed, recording
	// errMsg, CompletedAt and DurationSeconds. Used both when no
	// handler is registered and when the retry budget is exhausted.
	Fail(ctx context.Context, id uuid.UUID, errMsg string) (*job.Job, error)

	// Retry transitions a Running job to Retrying, recording errMsg
	// and nextRetryAt. The retry scheduler later promotes the job back
	// to Queued/Running once nextRetryAt elapses.
	Retry(ctx context.Context, id uuid.UUID, errMsg string, nextRetryAt time.Time) (*job.Job, error)

	// Cancel transitions a non-terminal job to Cancelled. It returns
	// ErrInvalidTransition if the job is already Completed, Failed or
	// Cancelled.
	Cancel(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// ResetForRetry implements the explicit retry API (distinct from
	// the internal Retry transition above): it requires the job to be
	// Failed or Cancelled, and resets it to Queued with Attempt=0,
	// clearing ErrorMessage, Result, NextRetryAt and timing fields.
	ResetForRetry(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// DueRetries returns up to limit jobs in Retrying status whose
	// NextRetryAt has elapsed, for the retry scheduler's periodic
	// sweep.
	DueRetries(ctx context.Context, limit int) ([]*job.Job, error)

	// PromoteRetryToQueued transitions a Retrying job directly to
	// Queued and clears NextRetryAt, for use when the priority queue
	// is unavailable (the retry scheduler's store-fallback path).
	PromoteRetryToQueued(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// PollEligible returns a single eligible job for store-fallback
	// dispatch: status in (Pending, Queued), ScheduledAt null or in
	// the past, ordered by (priority desc, created_at asc). It returns
	// (nil, nil) if none are eligible.
	PollEligible(ctx context.Context) (*job.Job, error)

	// Get returns the job identified by id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// List returns jobs matching filter.
	List(ctx context.Context, filter Filter) ([]*job.Job, error)
}
