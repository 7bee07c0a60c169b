// Package kestrelq provides a durable, priority-ordered asynchronous
// job dispatch engine with at-least-once execution semantics.
//
// # Overview
//
// kestrelq accepts typed work items (job.Job), persists their
// lifecycle in a relational store (store.Store), coordinates
// distribution through an in-memory or Redis-backed priority queue
// (queue.Queue), and executes them concurrently under a bounded
// worker pool with exponential-backoff retries and per-attempt
// timeout enforcement.
//
// The store is the source of truth. The queue is a fast-path hint:
// it may be lost, rebuilt, or skipped entirely (store-fallback
// dispatch), and the executor always re-verifies job state in the
// store via the claim protocol before running a handler.
//
// # Delivery Semantics
//
// kestrelq provides at-least-once execution guarantees. A job may be
// executed more than once if an executor crashes after claiming but
// before recording an outcome, or if the same id is concurrently
// claimed by a race that the store resolves in another executor's
// favor. Handlers should be idempotent where practical; kestrelq does
// not itself deduplicate results.
//
// # State Machine
//
// Jobs follow this lifecycle (see job.Status):
//
//	Pending | Queued | Retrying -> Running
//	Running                     -> Completed  (terminal)
//	Running                     -> Failed     (terminal)
//	Running                     -> Retrying   -> Queued
//	any non-terminal            -> Cancelled  (terminal, external)
//	Failed | Cancelled          -> Queued     (via explicit retry)
//
// # Retry Policy
//
// Retry behavior is controlled by BackoffConfig. When a handler
// returns an error or a job's timeout fires, the Executor checks the
// job's attempt count against its MaxRetries: if budget remains, the
// job is moved to Retrying with NextRetryAt set to
// RetryBackoffBase^attempt seconds in the future; otherwise it is
// permanently Failed.
//
// # Components
//
//	Registry       — maps a job type to a handler function
//	Executor       — claims, runs and records the outcome of one job
//	RetryScheduler — periodically promotes due retries back to the queue
//	Dispatcher     — bounded worker pool; pulls from queue, falls back to store
//	Engine         — Submit/Cancel/Retry facade wiring a Store and Queue together
//
// # Concurrency Model
//
// Dispatcher bounds concurrent executors to MaxWorkers via a fixed
// worker pool. The per-job row lock enforced by store.Store's claim
// operation is the true serialization point: multiple Dispatcher
// processes may run concurrently against the same store and queue,
// and at most one of them will ever observe a given job as Running at
// a time.
//
// Shutdown is graceful: in-flight handlers run to completion, subject
// to a caller-supplied timeout; kestrelq never forcibly kills a
// handler goroutine.
package kestrelq
