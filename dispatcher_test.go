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

func TestDispatcherProcessesQueuedJob(t *testing.T) {
	s := newTestStore(t)
	q := heapqueue.New()
	ctx := context.Background()

	in := &job.Job{ID: uuid.New(), Name: "n", JobType: "email", Status: job.Queued, MaxRetries: 3}
	if err := s.Insert(ctx, in); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, in.ID.String(), 0); err != nil {
		t.Fatal(err)
	}

	handlerCalled := make(chan struct{}, 1)
	registry := kestrelq.NewRegistry()
	registry.Register("email", func(_ context.Context, payload job.Doc) (job.Doc, error) {
		handlerCalled <- struct{}{}
		return job.Doc{}, nil
	})

	executor := kestrelq.NewExecutor(s, registry, kestrelq.ExecutorConfig{
		Timeout: time.Second,
		Backoff: kestrelq.BackoffConfig{InitialInterval: time.Second, Multiplier: 2, MaxInterval: time.Minute},
	}, newDiscardLogger())

	dispatcher := kestrelq.NewDispatcher(q, executor, kestrelq.DispatcherConfig{
		Concurrency:  1,
		QueueSize:    10,
		PullInterval: 20 * time.Millisecond,
	}, newDiscardLogger())

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dispatcher.Start(runCtx); err != nil {
		t.Fatal(err)
	}

	select {
	case <-handlerCalled:
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	time.Sleep(50 * time.Millisecond)

	got, err := s.Get(ctx, in.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.Completed {
		t.Fatalf("expected Completed, got %v", got.Status)
	}
	if n := q.Stat("completed"); n != 1 {
		t.Fatalf("expected completed stat of 1, got %d", n)
	}

	if err := dispatcher.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestDispatcherFallsBackToStorePoll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := &job.Job{ID: uuid.New(), Name: "n", JobType: "email", Status: job.Queued, MaxRetries: 3}
	if err := s.Insert(ctx, in); err != nil {
		t.Fatal(err)
	}

	handlerCalled := make(chan struct{}, 1)
	registry := kestrelq.NewRegistry()
	registry.Register("email", func(_ context.Context, payload job.Doc) (job.Doc, error) {
		handlerCalled <- struct{}{}
		return job.Doc{}, nil
	})

	executor := kestrelq.NewExecutor(s, registry, kestrelq.ExecutorConfig{
		Timeout: time.Second,
		Backoff: kestrelq.BackoffConfig{InitialInterval: time.Second, Multiplier: 2, MaxInterval: time.Minute},
	}, newDiscardLogger())

	// No queue wired in: the dispatcher must rely entirely on the
	// store's PollEligible fallback.
	dispatcher := kestrelq.NewDispatcher(nil, executor, kestrelq.DispatcherConfig{
		Concurrency:  1,
		QueueSize:    10,
		PullInterval: 20 * time.Millisecond,
	}, newDiscardLogger())

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dispatcher.Start(runCtx); err != nil {
		t.Fatal(err)
	}

	select {
	case <-handlerCalled:
	case <-time.After(time.Second):
		t.Fatal("handler not called via store fallback")
	}

	if err := dispatcher.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestDispatcherLifecycleErrors(t *testing.T) {
	s := newTestStore(t)
	executor := kestrelq.NewExecutor(s, kestrelq.NewRegistry(), kestrelq.ExecutorConfig{
		Timeout: time.Second,
		Backoff: kestrelq.BackoffConfig{InitialInterval: time.Second, Multiplier: 2, MaxInterval: time.Minute},
	}, newDiscardLogger())

	dispatcher := kestrelq.NewDispatcher(nil, executor, kestrelq.DispatcherConfig{
		Concurrency:  1,
		QueueSize:    10,
		PullInterval: time.Second,
	}, newDiscardLogger())

	ctx := context.Background()
	if err := dispatcher.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := dispatcher.Start(ctx); err == nil {
		t.Fatal("expected ErrDoubleStarted")
	}
	if err := dispatcher.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := dispatcher.Stop(time.Second); err == nil {
		t.Fatal("expected ErrDoubleStopped")
	}
}
