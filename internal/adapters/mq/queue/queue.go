// Package queue provides a bounded in-memory queue with non-blocking enqueue
// and channel-based dequeue. It backs change feed subscriptions and the
// notification dispatcher.
package queue

import (
	"context"
	"sync"

	"github.com/13jisse-music/ChanteEnScene-sub003/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item to the queue.
	// Returns false if the queue is full or closed and the item was not enqueued.
	Enqueue(ctx context.Context, item T) bool

	// Dequeue returns a channel that receives items as they become available.
	// The channel is closed when the queue is closed and drained, or ctx ends.
	Dequeue(ctx context.Context) <-chan T

	// Len returns the current number of queued items.
	Len() int

	// Cap returns the queue capacity.
	Cap() int

	// Close stops accepting items. Queued items are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	items  chan T
	cfg    config
	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	cfg := config{capacity: defaultQueueCapacity, name: "default"}
	for _, opt := range opts {
		opt(&cfg)
	}
	q := &InMemoryQueue[T]{
		items: make(chan T, cfg.capacity),
		cfg:   cfg,
	}
	metrics.UpdateQueueCapacity(cfg.name, cfg.capacity)
	return q
}

// Enqueue adds an item to the queue without blocking.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError(q.cfg.name, "closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordQueueEnqueueError(q.cfg.name, "context_cancelled")
		return false
	}

	select {
	case q.items <- item:
		metrics.RecordQueueEnqueue(q.cfg.name)
		metrics.UpdateQueueDepth(q.cfg.name, len(q.items))
		return true
	default:
		metrics.RecordQueueEnqueueError(q.cfg.name, "queue_full")
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that receives items as they become available.
func (q *InMemoryQueue[T]) Dequeue(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case item, ok := <-q.items:
				if !ok {
					return
				}
				select {
				case out <- item:
					metrics.RecordQueueDequeue(q.cfg.name)
					metrics.UpdateQueueDepth(q.cfg.name, len(q.items))
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued items.
func (q *InMemoryQueue[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *InMemoryQueue[T]) Cap() int {
	return q.cfg.capacity
}

// Close stops the queue. Closing twice is a no-op.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
