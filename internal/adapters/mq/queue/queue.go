// Package queue decouples session finalization from persistence: finished
// session summaries are enqueued by the app service and drained by the
// persistence workers.
package queue

import (
	"context"
	"sync"

	"github.com/etudekit/etude/internal/domain/model"
	"github.com/etudekit/etude/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 1024
)

// Summary is the payload type flowing through the queue.
type Summary = model.SessionSummary

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a summary to the queue.
	// Returns false if the queue is full or closed and the summary was dropped.
	Enqueue(ctx context.Context, s Summary) bool

	// Dequeue returns a channel that receives summaries as they arrive.
	// The channel closes when the queue closes.
	Dequeue(ctx context.Context) <-chan Summary

	// Len returns the current number of queued summaries.
	Len(ctx context.Context) int

	// Close shuts down the queue; no further enqueues succeed.
	Close() error
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	summaries chan Summary
	capacity  int
	mu        sync.RWMutex
	closed    bool
}

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the queue capacity.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// NewInMemoryQueue creates an in-memory summary queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.summaries = make(chan Summary, q.capacity)
	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a summary to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, s Summary) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return false
	}
	select {
	case q.summaries <- s:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.summaries))
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return false
	}
}

// Dequeue returns a channel that receives summaries as they arrive.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Summary {
	out := make(chan Summary)
	go func() {
		defer close(out)
		for s := range q.summaries {
			select {
			case out <- s:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.summaries))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued summaries.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	return len(q.summaries)
}

// Close shuts down the queue. Idempotent.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.summaries)
	q.closed = true
	return nil
}

// IsClosed reports whether the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
