package kestrelq_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelq/kestrelq"
	"github.com/kestrelq/kestrelq/job"
	"github.com/kestrelq/kestrelq/queue/heapqueue"
)

// When the queue is reachable, a due retry is handed straight to it
// and the store row stays Retrying: Store.Claim accepts Retrying
// directly, so there is no need to flip the row to Queued first.
func TestRetrySchedulerEnqueuesDueJobWithoutPromoting(t *testing.T) {
	s := newTestStore(t)
	q := heapqueue.New()
	ctx := context.Background()

	in := &job.Job{ID: uuid.New(), Name: "n", JobType: "email", Status: job.Pending, MaxRetries: 3}
	if err := s.Insert(ctx, in); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim(ctx, in.ID, "worker-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Retry(ctx, in.ID, "transient", time.Now().Add(-time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	scheduler := kestrelq.NewRetryScheduler(s, q, kestrelq.RetrySchedulerConfig{
		Interval:  20 * time.Millisecond,
		BatchSize: 10,
	}, newDiscardLogger())

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(runCtx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := scheduler.Stop(time.Second); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, in.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.Retrying {
		t.Fatalf("expected row to stay Retrying, got %v", got.Status)
	}

	n, err := q.Length(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected job to be enqueued, got length %d", n)
	}
}

// With no queue wired in, the sweep must fall back to promoting the
// row to Queued so the Dispatcher's store poll can find it.
func TestRetrySchedulerPromotesDueJobWithoutQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := &job.Job{ID: uuid.New(), Name: "n", JobType: "email", Status: job.Pending, MaxRetries: 3}
	if err := s.Insert(ctx, in); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim(ctx, in.ID, "worker-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Retry(ctx, in.ID, "transient", time.Now().Add(-time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	scheduler := kestrelq.NewRetryScheduler(s, nil, kestrelq.RetrySchedulerConfig{
		Interval:  20 * time.Millisecond,
		BatchSize: 10,
	}, newDiscardLogger())

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(runCtx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := scheduler.Stop(time.Second); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, in.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.Queued {
		t.Fatalf("expected Queued, got %v", got.Status)
	}
}

func TestRetrySchedulerLifecycleErrors(t *testing.T) {
	s := newTestStore(t)
	scheduler := kestrelq.NewRetryScheduler(s, nil, kestrelq.RetrySchedulerConfig{
		Interval:  time.Second,
		BatchSize: 10,
	}, newDiscardLogger())

	ctx := context.Background()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := scheduler.Start(ctx); err == nil {
		t.Fatal("expected ErrDoubleStarted")
	}
	if err := scheduler.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := scheduler.Stop(time.Second); err == nil {
		t.Fatal("expected ErrDoubleStopped")
	}
}
