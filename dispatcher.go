package kestrelq

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelq/kestrelq/internal"
	"github.com/kestrelq/kestrelq/queue"
)

// DispatcherConfig controls a Dispatcher's concurrency and polling
// behavior.
//
// Concurrency bounds how many jobs run at once. QueueSize is the
// internal buffer between the pull loop and the worker pool, mirroring
// the same trade-off the teacher's worker pool makes: a deeper buffer
// smooths bursts at the cost of dequeued-but-not-yet-running jobs.
// PullInterval controls how often the dispatcher looks for new work
// when the queue is empty.
type DispatcherConfig struct {
	Concurrency  int
	QueueSize    int
	PullInterval time.Duration
}

// Dispatcher is the dispatch loop tying the priority queue, the
// durable store and an Executor together.
//
// On each tick, Dispatcher prefers the priority queue's Dequeue as a
// fast path; when the queue is empty (or absent, i.e. USE_REDIS is
// false and no in-process queue was wired in), it falls back to the
// store's PollEligible scan. Either way, the resulting id is handed to
// Executor.Execute, which performs the actual atomic claim — so a
// stale or duplicate queue entry is harmless: the claim simply finds
// no eligible row and Execute returns nil.
//
// Dispatcher has the same strict start-once lifecycle as
// RetryScheduler.
type Dispatcher struct {
	lcBase
	queue    queue.Queue
	executor *Executor
	pool     *internal.WorkerPool[string]
	pullTask internal.TimerTask
	log      *slog.Logger
	interval time.Duration
	workerID string
}

// NewDispatcher creates a Dispatcher. q may be nil, in which case
// every tick uses the store-fallback poll directly.
func NewDispatcher(q queue.Queue, executor *Executor, config DispatcherConfig, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:    q,
		executor: executor,
		pool:     internal.NewWorkerPool[string](config.Concurrency, config.QueueSize, log),
		log:      log,
		interval: config.PullInterval,
		workerID: uuid.New().String(),
	}
}

func (d *Dispatcher) pull(ctx context.Context) {
	if d.queue != nil {
		dispatched := false
		for ctx.Err() == nil {
			id, ok, err := d.queue.Dequeue(ctx)
			if err != nil {
				d.log.Error("dequeue failed", "err", err)
				break
			}
			if !ok {
				break
			}
			dispatched = true
			if !d.push(id) {
				return
			}
		}
		if dispatched {
			return
		}
	}
	j, err := d.executor.store.PollEligible(ctx)
	if err != nil {
		d.log.Error("poll eligible failed", "err", err)
		return
	}
	if j == nil {
		return
	}
	d.push(j.ID.String())
}

func (d *Dispatcher) push(id string) bool {
	if !d.pool.Push(id) {
		d.log.Debug("job push interrupted via shutdown", "job_id", id)
		return false
	}
	return true
}

func (d *Dispatcher) handle(ctx context.Context, idStr string) {
	ctx = context.WithoutCancel(ctx)
	id, err := uuid.Parse(idStr)
	if err != nil {
		d.log.Error("malformed job id from queue", "id", idStr, "err", err)
		return
	}
	outcome, err := d.executor.Execute(ctx, id, d.workerID)
	if err != nil {
		d.log.Error("execute failed", "job_id", id, "err", err)
	}
	d.reportOutcome(ctx, idStr, outcome)
	if d.queue != nil {
		if err := d.queue.MarkDone(ctx, idStr); err != nil {
			d.log.Warn("cannot mark queue entry done", "job_id", id, "err", err)
		}
	}
}

// reportOutcome publishes the stat increment and event named by
// outcome. The queue is a fast-path hint and never the system of
// record, so these calls are best-effort: a failure here does not
// affect the job's durable status.
func (d *Dispatcher) reportOutcome(ctx context.Context, idStr string, outcome Outcome) {
	if d.queue == nil || outcome == OutcomeSkipped {
		return
	}
	var stat, eventType string
	switch outcome {
	case OutcomeCompleted:
		stat, eventType = "completed", "job_completed"
	case OutcomeRetried:
		stat, eventType = "retries", "job_retrying"
	case OutcomeFailed:
		stat, eventType = "failed", "job_failed"
	default:
		return
	}
	if err := d.queue.IncrementStat(ctx, stat, 1); err != nil {
		d.log.Warn("cannot increment stat", "stat", stat, "job_id", idStr, "err", err)
	}
	if err := d.queue.PublishEvent(ctx, eventType, map[string]any{"job_id": idStr}); err != nil {
		d.log.Warn("cannot publish event", "event", eventType, "job_id", idStr, "err", err)
	}
}

// Start begins the dispatch loop.
//
// Start returns ErrDoubleStarted if the dispatcher has already been
// started.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.tryStart(); err != nil {
		return err
	}
	d.pool.Start(ctx, d.handle)
	d.pullTask.Start(ctx, d.pull, d.interval)
	return nil
}

func (d *Dispatcher) doStop() internal.DoneChan {
	first := d.pullTask.Stop()
	second := d.pool.Stop()
	return internal.Combine(first, second)
}

// Stop initiates graceful shutdown: it stops pulling new work, then
// waits for in-flight executions to finish or timeout to elapse.
//
// Stop returns ErrDoubleStopped if the dispatcher is not running.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	return d.tryStop(timeout, d.doStop)
}
