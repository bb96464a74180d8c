package progress

import "context"

// Sink receives batches of sync lifecycle events in emission order.
// Consume must honor ctx; a failed batch is logged and not retried.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter is the write side used by the orchestrator and the workers.
type Emitter interface {
	Emit(evt Event)
}
