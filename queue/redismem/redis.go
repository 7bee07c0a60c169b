// Package redismem implements queue.Queue on top of Redis sorted
// sets, grounded on the pack's Redis-backed job queue repository
// pattern (ZAdd/ZPopMin for a scored priority set, a companion set
// for in-flight tracking, a hash for counters, and a pub/sub channel
// for events).
package redismem

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// QueueKey is the sorted set holding pending job ids, scored by
	// -priority so higher priority pops first.
	QueueKey = "job_queue:priority"

	// ProcessingKey is the set of ids currently dequeued and not yet
	// marked done.
	ProcessingKey = "job_queue:processing"

	// StatsKey is the hash of counter name to integer value.
	StatsKey = "job_stats"

	// EventsChannel is the pub/sub channel carrying {event, job_id, ...}
	// documents.
	EventsChannel = "job_events"
)

// Queue implements queue.Queue using a github.com/redis/go-redis/v9
// client.
type Queue struct {
	client redis.UniversalClient
}

// New creates a Redis-backed Queue. client must already be configured
// and reachable; New performs no I/O itself.
func New(client redis.UniversalClient) *Queue {
	return &Queue{client: client}
}

// Enqueue inserts or re-scores id in the priority sorted set. ZAdd
// overwrites the score of an existing member, so re-enqueueing an
// already-present id is idempotent.
func (q *Queue) Enqueue(ctx context.Context, id string, priority int) error {
	score := float64(-priority)
	if err := q.client.ZAdd(ctx, QueueKey, redis.Z{Score: score, Member: id}).Err(); err != nil {
		return fmt.Errorf("redismem: enqueue: %w", err)
	}
	return nil
}

// Dequeue atomically pops the lowest-scored (highest-priority) member
// and marks it processing.
func (q *Queue) Dequeue(ctx context.Context) (string, bool, error) {
	result, err := q.client.ZPopMin(ctx, QueueKey, 1).Result()
	if err != nil {
		return "", false, fmt.Errorf("redismem: dequeue: %w", err)
	}
	if len(result) == 0 {
		return "", false, nil
	}
	id, ok := result[0].Member.(string)
	if !ok {
		return "", false, fmt.Errorf("redismem: dequeue: unexpected member type %T", result[0].Member)
	}
	if err := q.client.SAdd(ctx, ProcessingKey, id).Err(); err != nil {
		return "", false, fmt.Errorf("redismem: mark processing: %w", err)
	}
	return id, true, nil
}

// Remove deletes id from both the priority set and the processing
// set. Absence of id is not an error.
func (q *Queue) Remove(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, QueueKey, id)
	pipe.SRem(ctx, ProcessingKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redismem: remove: %w", err)
	}
	return nil
}

// MarkDone removes id from the processing set. It is idempotent: an
// absent id is not an error.
func (q *Queue) MarkDone(ctx context.Context, id string) error {
	if err := q.client.SRem(ctx, ProcessingKey, id).Err(); err != nil {
		return fmt.Errorf("redismem: mark done: %w", err)
	}
	return nil
}

// Length reports the number of entries in the priority set.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, QueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redismem: length: %w", err)
	}
	return n, nil
}

// ProcessingCount reports the number of ids in the processing set.
func (q *Queue) ProcessingCount(ctx context.Context) (int64, error) {
	n, err := q.client.SCard(ctx, ProcessingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redismem: processing count: %w", err)
	}
	return n, nil
}

// PublishEvent marshals {event, job_id, ...payload} and publishes it
// on EventsChannel. Delivery is best-effort; a publish to a channel
// with no subscribers is not an error.
func (q *Queue) PublishEvent(ctx context.Context, eventType string, payload map[string]any) error {
	body := map[string]any{"event": eventType}
	for k, v := range payload {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("redismem: marshal event: %w", err)
	}
	if err := q.client.Publish(ctx, EventsChannel, raw).Err(); err != nil {
		return fmt.Errorf("redismem: publish event: %w", err)
	}
	return nil
}

// IncrementStat adds delta to the named counter in the stats hash.
func (q *Queue) IncrementStat(ctx context.Context, name string, delta int64) error {
	if err := q.client.HIncrBy(ctx, StatsKey, name, delta).Err(); err != nil {
		return fmt.Errorf("redismem: increment stat: %w", err)
	}
	return nil
}
