// Package queue is the external job queue the worker fleet coordinates
// through. Kafka backs real deployments; an in-memory queue serves tests
// and single-process runs. Both deliver jobs to exactly one handler at a
// time per consumer, the serialized stream tick processing depends on.
package queue

import (
	"context"
	"time"
)

// Job is one tick-advance request. The execution key is generated at
// enqueue time and travels with the job, so a redelivery carries the same
// key and the tick engine's journal makes it a no-op.
type Job struct {
	ExecutionKey string    `json:"execution_key"`
	Ticks        int       `json:"ticks"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// Handler processes one job. Returning an error leaves the job eligible
// for redelivery.
type Handler func(ctx context.Context, job Job) error

// Queue is the enqueue/consume abstraction.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Consume blocks, delivering jobs to handler one at a time, until ctx
	// is cancelled.
	Consume(ctx context.Context, handler Handler) error
	Close() error
}
