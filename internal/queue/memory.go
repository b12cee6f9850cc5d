package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process Queue for tests and single-instance runs.
type MemoryQueue struct {
	jobs chan Job

	mu     sync.Mutex
	closed bool
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemory creates a queue buffering up to size jobs.
func NewMemory(size int) *MemoryQueue {
	if size < 1 {
		size = 16
	}
	return &MemoryQueue{jobs: make(chan Job, size)}
}

// Enqueue adds a job, blocking if the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume delivers jobs one at a time until ctx is cancelled.
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case job, ok := <-q.jobs:
			if !ok {
				return nil
			}
			// Failed jobs are re-enqueued for another attempt; the
			// execution key keeps a duplicate application harmless.
			if err := handler(ctx, job); err != nil {
				select {
				case q.jobs <- job:
				default:
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops accepting jobs.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
