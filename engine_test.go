package kestrelq_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelq/kestrelq"
	"github.com/kestrelq/kestrelq/job"
	"github.com/kestrelq/kestrelq/queue/heapqueue"
	"github.com/kestrelq/kestrelq/store"
)

// Engine composes Store and Queue, so its tests exercise both
// collaborators together; testify's require cuts down the boilerplate
// of checking each intermediate step along the way.

func TestEngineSubmitEnqueuesReadyJob(t *testing.T) {
	s := newTestStore(t)
	q := heapqueue.New()
	ctx := context.Background()
	engine := kestrelq.NewEngine(s, q)

	created, err := engine.Submit(ctx, kestrelq.JobCreate{
		Name:    "send-welcome-email",
		JobType: "email",
		Payload: job.Doc{"to": "a@b.com"},
	})
	require.NoError(t, err)
	require.Equal(t, job.Queued, created.Status)

	n, err := q.Length(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.EqualValues(t, 1, q.Stat("enqueued"))
}

func TestEngineSubmitHonorsExplicitZeroMaxRetries(t *testing.T) {
	s := newTestStore(t)
	q := heapqueue.New()
	ctx := context.Background()
	engine := kestrelq.NewEngine(s, q)

	zero := 0
	created, err := engine.Submit(ctx, kestrelq.JobCreate{
		Name:       "no-retry-job",
		JobType:    "email",
		MaxRetries: &zero,
	})
	require.NoError(t, err)
	require.Equal(t, 0, created.MaxRetries)

	require.EqualValues(t, 1, q.Stat("enqueued"))
}

func TestEngineSubmitBulkIncrementsStat(t *testing.T) {
	s := newTestStore(t)
	q := heapqueue.New()
	ctx := context.Background()
	engine := kestrelq.NewEngine(s, q)

	creates := []kestrelq.JobCreate{
		{Name: "a", JobType: "email"},
		{Name: "b", JobType: "email"},
	}
	jobs, err := engine.SubmitBulk(ctx, creates)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.EqualValues(t, 2, q.Stat("enqueued"))
}

func TestEngineCancelRemovesFromQueue(t *testing.T) {
	s := newTestStore(t)
	q := heapqueue.New()
	ctx := context.Background()
	engine := kestrelq.NewEngine(s, q)

	created, err := engine.Submit(ctx, kestrelq.JobCreate{Name: "a", JobType: "email"})
	require.NoError(t, err)

	cancelled, err := engine.Cancel(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, job.Cancelled, cancelled.Status)

	n, err := q.Length(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestEngineRetryResetsAndEnqueues(t *testing.T) {
	s := newTestStore(t)
	q := heapqueue.New()
	ctx := context.Background()
	engine := kestrelq.NewEngine(s, q)

	created, err := engine.Submit(ctx, kestrelq.JobCreate{Name: "a", JobType: "email"})
	require.NoError(t, err)

	_, err = s.Claim(ctx, created.ID, "worker-1")
	require.NoError(t, err)
	_, err = s.Fail(ctx, created.ID, "boom")
	require.NoError(t, err)

	revived, err := engine.Retry(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, job.Queued, revived.Status)
	require.Equal(t, 0, revived.Attempt)
}

func TestEngineListFiltersByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	engine := kestrelq.NewEngine(s, nil)

	_, err := engine.Submit(ctx, kestrelq.JobCreate{Name: "a", JobType: "email"})
	require.NoError(t, err)

	list, err := engine.List(ctx, store.Filter{Status: job.Queued})
	require.NoError(t, err)
	require.Len(t, list, 1)
}
