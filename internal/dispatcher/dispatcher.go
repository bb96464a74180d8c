// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers and is the enqueue
// side used by the orchestrator.
type Dispatcher struct {
	queue   capture.JobQueue
	workers []*worker.Worker
	logger  *zap.Logger

	enqueueTimeout time.Duration
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithEnqueueTimeout bounds each Enqueue call.
func WithEnqueueTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.enqueueTimeout = d
	}
}

var _ capture.JobQueue = (*Dispatcher)(nil)

// New creates a Dispatcher.
func New(queue capture.JobQueue, workers []*worker.Worker, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		queue:   queue,
		workers: workers,
		logger:  logger.Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("starting workers", zap.Int("count", len(d.workers)))
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
	d.logger.Info("workers stopped")
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, payload capture.JobPayload) (string, error) {
	if d.enqueueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.enqueueTimeout)
		defer cancel()
	}
	jobID, err := d.queue.Enqueue(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("queue enqueue: %w", err)
	}
	return jobID, nil
}
