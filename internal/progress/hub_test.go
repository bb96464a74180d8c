package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
)

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(StageSyncStart)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageSyncStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func stalledHub(terminalWait time.Duration) *Hub {
	return &Hub{
		cfg:     Config{TerminalWait: terminalWait},
		events:  make(chan Event),
		stopCh:  make(chan struct{}),
		logger:  zap.NewNop(),
		dropped: make(map[Stage]int64),
	}
}

// TestHubDropsProgressEventsWithoutBlocking asserts non-terminal events never
// block callers when nothing drains the buffer.
func TestHubDropsProgressEventsWithoutBlocking(t *testing.T) {
	t.Parallel()

	hub := stalledHub(time.Minute)
	start := time.Now()
	hub.Emit(sampleEvent(StageSyncStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.EqualValues(t, 1, hub.Dropped())
}

// TestHubTerminalEventWaitsBeforeDrop gives outcome events a bounded grace
// period on a full buffer.
func TestHubTerminalEventWaitsBeforeDrop(t *testing.T) {
	t.Parallel()

	hub := stalledHub(30 * time.Millisecond)
	start := time.Now()
	hub.Emit(sampleEvent(StageSyncDone))
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.EqualValues(t, 1, hub.Dropped())
}

// TestHubLogsEveryTerminalDrop keeps the sync id of each lost outcome even
// while the backpressure summary is rate limited.
func TestHubLogsEveryTerminalDrop(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	hub := stalledHub(0)
	hub.logger = zap.New(core)

	hub.Emit(sampleEvent(StageSyncStart))
	for _, id := range []string{"sync-a", "sync-b"} {
		evt := sampleEvent(StageSyncDone)
		evt.SyncID = id
		hub.Emit(evt)
	}
	hub.Emit(sampleEvent(StageSyncStart))

	require.EqualValues(t, 4, hub.Dropped())
	require.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len(), "summary is rate limited")
	terminal := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, terminal, 2)
	require.Equal(t, "sync-a", terminal[0].ContextMap()["sync_id"])
	require.Equal(t, "sync-b", terminal[1].ContextMap()["sync_id"])
}

// TestHubTerminalEventDeliveredWhenSpaceFrees checks a waiting terminal event
// is enqueued once the consumer catches up.
func TestHubTerminalEventDeliveredWhenSpaceFrees(t *testing.T) {
	t.Parallel()

	hub := stalledHub(time.Second)
	got := make(chan Event, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		got <- <-hub.events
	}()
	hub.Emit(sampleEvent(StageSyncError))

	select {
	case evt := <-got:
		require.Equal(t, StageSyncError, evt.Stage)
	case <-time.After(time.Second):
		t.Fatal("terminal event was not delivered")
	}
	require.Zero(t, hub.Dropped())
}

// TestHubFlushOnClose ensures Close drains any buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	evt := sampleEvent(StageSyncStart)
	hub.Emit(evt)

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyBatch := append([]Event(nil), batch...)
	s.batches = append(s.batches, copyBatch)
	return nil
}

func (s *stubSink) Close(context.Context) error {
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	return Event{
		SyncID:   "sync-1",
		TenantID: "tenant-1",
		TS:       time.Now(),
		Stage:    stage,
		Tribunal: "TJBA",
		Mode:     capture.ModeInitial,
	}
}

// TestHubDiscardsInvalidEvents keeps malformed events away from sinks.
func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Minute}, sink)

	hub.Emit(Event{Stage: StageSyncStart, TS: time.Now()})
	hub.Emit(Event{SyncID: "s", Stage: StageCaseMerged, TS: time.Now()})
	hub.Emit(Event{SyncID: "s", Stage: "BOGUS", TS: time.Now()})

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestEventOutcome(t *testing.T) {
	t.Parallel()

	status, ok := sampleEvent(StageSyncCaptcha).Outcome()
	require.True(t, ok)
	require.Equal(t, capture.StatusWaitingCaptcha, status)
	require.True(t, sampleEvent(StageSyncError).Terminal())

	_, ok = sampleEvent(StageSyncStart).Outcome()
	require.False(t, ok)
	require.False(t, sampleEvent(StageCaseMerged).Terminal())
}

func TestForStateCopiesIdentity(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	state := capture.NewSyncState(capture.NewSyncParams{
		SyncID: "sync-9", TenantID: "t", UsuarioID: "u", TribunalSigla: "TJSP", OAB: "1SP",
	}, now)
	evt := ForState(StageSyncStart, state, now)
	require.NoError(t, evt.Validate())
	require.Equal(t, "sync-9", evt.SyncID)
	require.Equal(t, "TJSP", evt.Tribunal)
	require.Equal(t, capture.ModeInitial, evt.Mode)
}
