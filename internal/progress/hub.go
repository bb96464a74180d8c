package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: capacity of the event channel (default 1024).
//   - MaxBatchEvents: flush once this many events are pending (default 100).
//   - MaxBatchWait: flush a partial batch after this long (default 500ms).
//   - SinkTimeout: per-sink deadline for one flush (default 5s).
//   - TerminalWait: how long Emit may block on a full buffer for terminal
//     events, which feed the audit trail (default 1s). Other events never block.
//   - BaseContext: parent of every sink call (default context.Background()).
//   - Logger: optional.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	TerminalWait   time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 100
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 5 * time.Second
	defaultTerminalWait   = time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub batches sync lifecycle events from the orchestrator and the workers
// and fans each batch out to the sinks in order. Emit is safe for concurrent use.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeCtx  context.Context

	dropMu      sync.Mutex
	dropped     map[Stage]int64
	droppedAll  atomic.Int64
	lastDropLog time.Time
}

// NewHub applies defaults and starts the batching goroutine.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.TerminalWait <= 0 {
		cfg.TerminalWait = defaultTerminalWait
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan Event, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
		dropped: make(map[Stage]int64),
	}
	go h.run()
	return h
}

// Emit queues evt for the sinks. Invalid events are discarded. On a full
// buffer non-terminal events are dropped at once; terminal events wait up to
// TerminalWait first.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.String("sync_id", evt.SyncID), zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
		return
	default:
	}
	if evt.Terminal() {
		timer := time.NewTimer(h.cfg.TerminalWait)
		defer timer.Stop()
		select {
		case h.events <- evt:
			return
		case <-h.stopCh:
		case <-timer.C:
		}
	}
	h.recordDrop(evt)
}

// Dropped reports how many events were discarded for backpressure.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.droppedAll.Load()
}

func (h *Hub) recordDrop(evt Event) {
	h.droppedAll.Add(1)
	if evt.Terminal() {
		h.logger.Error("terminal progress event dropped",
			zap.String("sync_id", evt.SyncID),
			zap.String("tenant_id", evt.TenantID),
			zap.String("stage", string(evt.Stage)),
		)
		return
	}
	h.dropMu.Lock()
	defer h.dropMu.Unlock()
	h.dropped[evt.Stage]++
	now := time.Now()
	if now.Sub(h.lastDropLog) < dropLogInterval {
		return
	}
	h.lastDropLog = now
	fields := make([]zap.Field, 0, len(h.dropped))
	for stage, n := range h.dropped {
		fields = append(fields, zap.Int64(string(stage), n))
	}
	h.dropped = make(map[Stage]int64)
	h.logger.Warn("progress events dropped due to backpressure", zap.Dict("dropped", fields...))
}

// Close stops intake, flushes what is buffered, closes the sinks and waits
// for the batching goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

// batcher owns the pending batch and its flush deadline.
type batcher struct {
	hub     *Hub
	pending []Event
	timer   *time.Timer
	armed   bool
}

func (b *batcher) add(evt Event) {
	b.pending = append(b.pending, evt)
	if len(b.pending) >= b.hub.cfg.MaxBatchEvents {
		b.flush()
		return
	}
	if !b.armed {
		b.timer.Reset(b.hub.cfg.MaxBatchWait)
		b.armed = true
	}
}

func (b *batcher) flush() {
	b.disarm()
	if len(b.pending) == 0 {
		return
	}
	b.hub.deliver(append([]Event(nil), b.pending...))
	b.pending = b.pending[:0]
}

func (b *batcher) disarm() {
	if !b.armed {
		return
	}
	if !b.timer.Stop() {
		select {
		case <-b.timer.C:
		default:
		}
	}
	b.armed = false
}

func (h *Hub) run() {
	defer close(h.doneCh)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	b := &batcher{hub: h, pending: make([]Event, 0, h.cfg.MaxBatchEvents), timer: timer}
	for {
		select {
		case evt := <-h.events:
			b.add(evt)
		case <-timer.C:
			b.armed = false
			b.flush()
		case <-h.stopCh:
			h.drain(b)
			return
		}
	}
}

func (h *Hub) drain(b *batcher) {
	for {
		select {
		case evt := <-h.events:
			b.add(evt)
		default:
			b.flush()
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) deliver(batch []Event) {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Int("batch_size", len(batch)), zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
