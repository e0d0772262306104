// internal/queue/queue.go
package queue

import (
	"context"
	"sync"
)

// Queue carries campaign-enqueued notifications from the API to the worker
// so dispatch does not have to wait for the next poll tick. The claim step
// makes duplicate or lost notifications harmless; the poller is the source
// of truth.
type Queue interface {
	Publish(ctx context.Context, campaignID string) error
	Consume(ctx context.Context, handler func(ctx context.Context, campaignID string) error) error
	Close() error
}

// InMemoryQueue is the in-process implementation used in tests and when no
// broker is configured.
type InMemoryQueue struct {
	mu     sync.Mutex
	ch     chan string
	closed bool
}

func NewInMemoryQueue(buffer int) *InMemoryQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &InMemoryQueue{ch: make(chan string, buffer)}
}

func (q *InMemoryQueue) Publish(ctx context.Context, campaignID string) error {
	select {
	case q.ch <- campaignID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Consume(ctx context.Context, handler func(ctx context.Context, campaignID string) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id, ok := <-q.ch:
			if !ok {
				return nil
			}
			_ = handler(ctx, id)
		}
	}
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
