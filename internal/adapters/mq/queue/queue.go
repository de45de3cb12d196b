// Package queue carries risk observations from request handlers to the risk
// workers. Enqueue never blocks: a request must not wait on scoring.
package queue

import (
	"context"
	"sync"

	"github.com/okian/attest/internal/domain/risk"
	"github.com/okian/attest/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Event is the payload flowing through the queue.
type Event = risk.Event

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event or reports why it could not.
	Enqueue(ctx context.Context, e Event) error
	// Dequeue returns the receive side. It is closed once the queue is closed
	// and drained.
	Dequeue() <-chan Event
	Len() int
	Cap() int
	Close() error
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)
	metrics.UpdateRiskQueue(0, q.capacity)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: sent by value over the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordRiskDropped("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordRiskDropped("context")
		return err
	}
	select {
	case q.events <- e:
		metrics.RecordRiskEnqueued()
		metrics.UpdateRiskQueue(len(q.events), q.capacity)
		return nil
	default:
		metrics.RecordRiskDropped("full")
		return ErrFull
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue() <-chan Event { return q.events }

// Len implements Queue.
func (q *InMemoryQueue) Len() int { return len(q.events) }

// Cap implements Queue.
func (q *InMemoryQueue) Cap() int { return q.capacity }

// Close stops accepting events. Buffered events stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}
