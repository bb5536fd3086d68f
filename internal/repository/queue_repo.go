package repository

import (
	"context"
	"errors"
)

// ErrQueueEmpty is returned by Pop when nothing is waiting.
var ErrQueueEmpty = errors.New("queue is empty")

// QueueRepository defines the interface for a FIFO queue of keywords submitted for batch research.
type QueueRepository interface {
	// Push adds keywords to the end of the queue.
	Push(ctx context.Context, keywords ...string) error
	// Requeue puts keywords back at the front of the queue, in order.
	Requeue(ctx context.Context, keywords ...string) error
	// Pop removes and returns a keyword from the front of the queue.
	Pop(ctx context.Context) (string, error)
	// Size returns the current number of items in the queue.
	Size(ctx context.Context) (int64, error)
}
