package kestrelq

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelq/kestrelq/job"
	"github.com/kestrelq/kestrelq/store"
)

// ExecutorConfig controls how an Executor runs a single job attempt.
//
// Timeout bounds how long Execute waits for a Handler: when it elapses
// the handler's context is canceled and Execute records the attempt as
// failed without waiting for the handler to return. That failure is
// treated the same as any other handler error and is subject to the
// retry policy below.
//
// Backoff shapes the delay before a recoverably-failed job becomes
// eligible again. MaxRetries on BackoffConfig is ignored by Executor:
// the retry budget is the claimed job's own MaxRetries field, since
// different jobs may carry different budgets.
type ExecutorConfig struct {
	Timeout time.Duration
	Backoff BackoffConfig
}

// Executor runs a single claimed job to completion: it looks up the
// registered Handler, runs it under a deadline, and applies the
// resulting store transition (Complete, Retry or Fail).
//
// Executor holds no queue reference; queue bookkeeping (marking an id
// done, removing a stale entry) is the caller's responsibility, since
// the queue is only ever a dispatch hint and never the system of
// record.
type Executor struct {
	store    store.Store
	registry *Registry
	timeout  time.Duration
	backoff  BackoffConfig
	log      *slog.Logger
}

// NewExecutor creates an Executor backed by s and registry.
func NewExecutor(s store.Store, registry *Registry, config ExecutorConfig, log *slog.Logger) *Executor {
	return &Executor{
		store:    s,
		registry: registry,
		timeout:  config.Timeout,
		backoff:  config.Backoff,
		log:      log,
	}
}

// safeInvoke calls h, recovering a panic into an error so that a
// misbehaving handler cannot take down the dispatching goroutine.
func (e *Executor) safeInvoke(ctx context.Context, h Handler, payload job.Doc) (result job.Doc, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("handler panic recovered", "err", r)
			err = errors.New("kestrelq: handler panicked")
		}
	}()
	return h(ctx, payload)
}

// Outcome reports what happened to a job passed to Executor.Execute,
// so a caller that also owns the priority queue (the Dispatcher) can
// publish stats and events without Executor itself needing a queue
// reference.
type Outcome int

const (
	// OutcomeSkipped means id was not eligible to be claimed (already
	// claimed elsewhere, already terminal, or absent) — a normal race,
	// not an error condition.
	OutcomeSkipped Outcome = iota
	OutcomeCompleted
	OutcomeRetried
	OutcomeFailed
)

// Execute claims id, runs its handler, and applies the resulting
// transition, reporting what happened via the returned Outcome.
func (e *Executor) Execute(ctx context.Context, id uuid.UUID, workerID string) (Outcome, error) {
	j, err := e.store.Claim(ctx, id, workerID)
	if err != nil {
		return OutcomeSkipped, err
	}
	if j == nil {
		return OutcomeSkipped, nil
	}

	h, err := e.registry.Lookup(j.JobType)
	if err != nil {
		e.log.Warn("no handler registered", "job_id", j.ID, "job_type", j.JobType)
		_, failErr := e.store.Fail(ctx, j.ID, err.Error())
		return OutcomeFailed, failErr
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type invokeResult struct {
		result job.Doc
		err    error
	}
	done := make(chan invokeResult, 1)
	go func() {
		r, err := e.safeInvoke(runCtx, h, j.Payload)
		done <- invokeResult{r, err}
	}()
	var result job.Doc
	var handlerErr error
	select {
	case r := <-done:
		result, handlerErr = r.result, r.err
	case <-runCtx.Done():
		handlerErr = runCtx.Err()
	}
	if handlerErr == nil {
		_, err := e.store.Complete(ctx, j.ID, result)
		if err != nil {
			e.log.Error("cannot complete job", "job_id", j.ID, "err", err)
		}
		return OutcomeCompleted, err
	}

	return e.handleFailure(ctx, j, handlerErr)
}

func (e *Executor) handleFailure(ctx context.Context, j *job.Job, handlerErr error) (Outcome, error) {
	bc := backoffCounter{e.backoff}
	bc.MaxRetries = uint32(j.MaxRetries)

	delay, ok := bc.next(j.Attempt)
	if !ok {
		e.log.Warn("retry budget exhausted", "job_id", j.ID, "attempt", j.Attempt, "err", handlerErr)
		_, err := e.store.Fail(ctx, j.ID, handlerErr.Error())
		return OutcomeFailed, err
	}

	e.log.Info("job failed, scheduling retry", "job_id", j.ID, "attempt", j.Attempt, "delay", delay, "err", handlerErr)
	_, err := e.store.Retry(ctx, j.ID, handlerErr.Error(), time.Now().Add(delay))
	return OutcomeRetried, err
}
