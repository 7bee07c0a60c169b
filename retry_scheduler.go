package kestrelq

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrelq/kestrelq/internal"
	"github.com/kestrelq/kestrelq/queue"
	"github.com/kestrelq/kestrelq/store"
)

// RetrySchedulerConfig controls the periodic sweep that promotes
// Retrying jobs back onto the queue once their backoff has elapsed.
//
// Interval defines how often the sweep runs. BatchSize caps how many
// due jobs are promoted per sweep, bounding the work done on any one
// tick.
type RetrySchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// RetryScheduler periodically hands jobs whose NextRetryAt has elapsed
// to the priority queue so the Dispatcher picks them up promptly. The
// store row stays Retrying; Store.Claim accepts Retrying directly.
//
// If there is no queue or the enqueue fails (for example, a Redis
// outage), the row is promoted from Retrying to Queued in the store
// instead, so the Dispatcher's store-fallback poll finds it, just with
// less dispatch latency.
//
// RetryScheduler has the same strict start-once lifecycle as
// Dispatcher.
type RetryScheduler struct {
	lcBase
	store     store.Store
	queue     queue.Queue
	task      internal.TimerTask
	log       *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewRetryScheduler creates a RetryScheduler. q may be nil, in which
// case promoted jobs rely entirely on the store-fallback poll.
func NewRetryScheduler(s store.Store, q queue.Queue, config RetrySchedulerConfig, log *slog.Logger) *RetryScheduler {
	return &RetryScheduler{
		store:     s,
		queue:     q,
		log:       log,
		interval:  config.Interval,
		batchSize: config.BatchSize,
	}
}

func (rs *RetryScheduler) sweep(ctx context.Context) {
	due, err := rs.store.DueRetries(ctx, rs.batchSize)
	if err != nil {
		rs.log.Error("due retries lookup failed", "err", err)
		return
	}
	for _, j := range due {
		if rs.queue != nil {
			if err := rs.queue.Enqueue(ctx, j.ID.String(), j.Priority); err == nil {
				// Claim accepts Retrying directly, so the row can stay
				// Retrying in the store; the queue is the dispatch hint.
				continue
			}
			rs.log.Warn("cannot enqueue due retry, falling back to store poll", "job_id", j.ID, "err", err)
		}
		if _, err := rs.store.PromoteRetryToQueued(ctx, j.ID); err != nil {
			rs.log.Error("cannot promote retry", "job_id", j.ID, "err", err)
		}
	}
}

// Start begins the periodic retry sweep.
//
// Start returns ErrDoubleStarted if the scheduler has already been
// started.
func (rs *RetryScheduler) Start(ctx context.Context) error {
	if err := rs.tryStart(); err != nil {
		return err
	}
	rs.task.Start(ctx, rs.sweep, rs.interval)
	return nil
}

// Stop terminates the periodic sweep, waiting up to timeout for the
// in-flight tick to finish.
//
// Stop returns ErrDoubleStopped if the scheduler is not running.
func (rs *RetryScheduler) Stop(timeout time.Duration) error {
	return rs.tryStop(timeout, rs.task.Stop)
}
