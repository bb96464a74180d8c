package progress

import (
	"context"
	"fmt"
	"time"
)

// outcomeSink remembers the last terminal status it saw for each sync.
type outcomeSink struct {
	outcomes map[string]string
}

func (s *outcomeSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		if status, ok := evt.Outcome(); ok {
			s.outcomes[evt.SyncID] = string(status)
		}
	}
	return nil
}

func (s *outcomeSink) Close(context.Context) error {
	return nil
}

func ExampleHub_Emit() {
	sink := &outcomeSink{outcomes: map[string]string{}}
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 4, MaxBatchWait: time.Second}, sink)

	ts := time.Unix(1_700_000_000, 0)
	hub.Emit(Event{SyncID: "sync-a", TS: ts, Stage: StageSyncStart, Tribunal: "TJBA"})
	hub.Emit(Event{SyncID: "sync-a", TS: ts, Stage: StageSyncCaptcha, Tribunal: "TJBA"})
	hub.Emit(Event{SyncID: "sync-b", TS: ts, Stage: StageSyncStart, Tribunal: "TJSP"})
	hub.Emit(Event{SyncID: "sync-b", TS: ts, Stage: StageSyncDone, Tribunal: "TJSP"})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Println("sync-a:", sink.outcomes["sync-a"])
	fmt.Println("sync-b:", sink.outcomes["sync-b"])
	// Output:
	// sync-a: WAITING_CAPTCHA
	// sync-b: SUCCESS
}

func ExampleSink() {
	merged := map[MergeResult]int{}
	tally := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Stage == StageCaseMerged {
				merged[evt.Merge]++
			}
		}
		return nil
	})
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 2, MaxBatchWait: time.Second}, tally)

	ts := time.Unix(1_700_000_000, 0)
	for i, result := range []MergeResult{MergeCreated, MergeUpdated, MergeCreated} {
		hub.Emit(Event{
			SyncID:     "sync-c",
			TS:         ts,
			Stage:      StageCaseMerged,
			Tribunal:   "TJBA",
			CaseNumber: fmt.Sprintf("800012%d-45.2024.8.05.0001", i),
			Merge:      result,
		})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("created=%d updated=%d\n", merged[MergeCreated], merged[MergeUpdated])
	// Output:
	// created=2 updated=1
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
