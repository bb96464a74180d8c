// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
)

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory job queue with context-aware operations.
type Queue struct {
	ch        chan capture.QueueItem
	done      chan struct{}
	closeOnce sync.Once
	ids       capture.IDGenerator
}

var (
	_ capture.JobQueue  = (*Queue)(nil)
	_ capture.JobSource = (*Queue)(nil)
)

// NewQueue constructs a new queue with the provided capacity. Job handles
// come from ids.
func NewQueue(capacity int, ids capture.IDGenerator) *Queue {
	return &Queue{
		ch:   make(chan capture.QueueItem, capacity),
		done: make(chan struct{}),
		ids:  ids,
	}
}

// Enqueue pushes a job into the queue and returns its handle, or returns if
// the context ends first.
func (q *Queue) Enqueue(ctx context.Context, payload capture.JobPayload) (string, error) {
	jobID, err := q.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("job id: %w", err)
	}
	item := capture.QueueItem{
		JobID:     jobID,
		Payload:   payload,
		Attempt:   1,
		Submitted: time.Now().UTC().Unix(),
	}
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return "", ErrClosed
	case q.ch <- item:
		return jobID, nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (capture.QueueItem, error) {
	select {
	case <-ctx.Done():
		return capture.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return capture.QueueItem{}, ErrClosed
	case job := <-q.ch:
		return job, nil
	}
}

// Len reports the number of buffered jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
