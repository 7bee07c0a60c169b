// Package heapqueue implements queue.Queue as an in-process
// container/heap, for deployments running with USE_REDIS=false where
// the Dispatcher relies on store-fallback dispatch and the priority
// queue is only a same-process fast path.
//
// No example in the retrieved pack ships a dedicated in-process
// priority-queue library, so this implementation is built on the
// standard library's container/heap; see DESIGN.md for the
// justification.
package heapqueue

import (
	"container/heap"
	"context"
	"sync"
)

type entry struct {
	id       string
	priority int
	seq      int64 // insertion order, for deterministic tie-breaking
	index    int   // heap.Interface bookkeeping
}

// byScore orders entries so the highest priority (ties broken by
// earliest insertion) is at heap[0].
type byScore []*entry

func (h byScore) Len() int { return len(h) }
func (h byScore) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h byScore) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *byScore) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *byScore) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is an in-process, mutex-guarded priority queue satisfying
// queue.Queue.
type Queue struct {
	mu         sync.Mutex
	heap       byScore
	index      map[string]*entry
	processing map[string]struct{}
	stats      map[string]int64
	events     []publishedEvent
	nextSeq    int64
}

type publishedEvent struct {
	eventType string
	payload   map[string]any
}

// New creates an empty in-process priority queue.
func New() *Queue {
	return &Queue{
		index:      make(map[string]*entry),
		processing: make(map[string]struct{}),
		stats:      make(map[string]int64),
	}
}

// Enqueue inserts id with the given priority, or updates the priority
// of an already-present id in place (idempotent re-enqueue).
func (q *Queue) Enqueue(_ context.Context, id string, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.index[id]; ok {
		e.priority = priority
		heap.Fix(&q.heap, e.index)
		return nil
	}
	e := &entry{id: id, priority: priority, seq: q.nextSeq}
	q.nextSeq++
	q.index[id] = e
	heap.Push(&q.heap, e)
	return nil
}

// Dequeue atomically pops the highest-priority entry and marks it
// processing.
func (q *Queue) Dequeue(_ context.Context) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return "", false, nil
	}
	e := heap.Pop(&q.heap).(*entry)
	delete(q.index, e.id)
	q.processing[e.id] = struct{}{}
	return e.id, true, nil
}

// Remove deletes id from both the pending heap and the processing
// set, if present.
func (q *Queue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.index[id]; ok {
		heap.Remove(&q.heap, e.index)
		delete(q.index, id)
	}
	delete(q.processing, id)
	return nil
}

// MarkDone removes id from the processing set. Idempotent.
func (q *Queue) MarkDone(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, id)
	return nil
}

// Length reports the number of entries awaiting dequeue.
func (q *Queue) Length(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(q.heap.Len()), nil
}

// ProcessingCount reports the number of ids currently dequeued.
func (q *Queue) ProcessingCount(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.processing)), nil
}

// PublishEvent appends the event to an in-memory list; the package
// exposes no accessor for it. There are no subscribers in the
// in-process backend; this exists so
// callers written against queue.Queue behave identically regardless
// of backend.
func (q *Queue) PublishEvent(_ context.Context, eventType string, payload map[string]any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, publishedEvent{eventType: eventType, payload: payload})
	return nil
}

// IncrementStat adds delta to the named counter.
func (q *Queue) IncrementStat(_ context.Context, name string, delta int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stats[name] += delta
	return nil
}

// Stat returns the current value of the named counter (test/diagnostic helper).
func (q *Queue) Stat(name string) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats[name]
}
