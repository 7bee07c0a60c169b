// Package queue defines the priority-queue abstraction used by
// kestrelq's Dispatcher as a fast-path hint on top of the durable
// store.
//
// The queue is never the source of truth: it may be rebuilt by
// re-scanning the store, and a queue entry for an already-terminal
// job is silently dropped at claim time. Implementations must support
// atomic Dequeue — two concurrent dequeuers must never receive the
// same id.
package queue

import (
	"context"
	"time"
)

// Event is a fire-and-forget notification published by a Queue.
// Delivery is best-effort, at-most-once, and not ordered with respect
// to other queue operations.
type Event struct {
	Type    string
	JobID   string
	At      time.Time
	Payload map[string]any
}

// Queue is a bounded or unbounded priority-ordered handoff structure
// keyed by score, where a higher Priority dequeues first.
//
// Implementations must make Enqueue idempotent: re-enqueueing an
// already-present id updates its priority to the new value rather
// than creating a duplicate entry.
type Queue interface {
	// Enqueue inserts id with the given priority (0-20, higher sorts
	// first), or updates the priority of an already-present id.
	Enqueue(ctx context.Context, id string, priority int) error

	// Dequeue atomically removes and returns the id with the highest
	// priority, or ("", false, nil) if the queue is empty. Ties are
	// broken by insertion order where the backend supports it,
	// otherwise arbitrarily but deterministically.
	Dequeue(ctx context.Context) (id string, ok bool, err error)

	// Remove best-effort removes id from both the priority structure
	// and the processing set. It is not an error if id is absent.
	Remove(ctx context.Context, id string) error

	// MarkDone removes id from the processing set. It is idempotent.
	MarkDone(ctx context.Context, id string) error

	// Length reports the number of entries awaiting dequeue.
	Length(ctx context.Context) (int64, error)

	// ProcessingCount reports the number of ids currently dequeued and
	// not yet marked done.
	ProcessingCount(ctx context.Context) (int64, error)

	// PublishEvent fires a best-effort, at-most-once notification.
	PublishEvent(ctx context.Context, eventType string, payload map[string]any) error

	// IncrementStat adds delta to the named monotone counter.
	IncrementStat(ctx context.Context, name string, delta int64) error
}
