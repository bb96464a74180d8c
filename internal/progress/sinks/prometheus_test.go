package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{SyncID: "s1", TS: now, Stage: progress.StageSyncStart, Tribunal: "TJBA", Mode: capture.ModeInitial},
		{SyncID: "s1", TS: now, Stage: progress.StageSyncCaptcha, Tribunal: "TJBA"},
		{SyncID: "s1", TS: now, Stage: progress.StageSyncStart, Tribunal: "TJBA", Mode: capture.ModeCaptcha},
		{
			SyncID:     "s1",
			TS:         now,
			Stage:      progress.StageCaseMerged,
			Tribunal:   "TJBA",
			CaseNumber: "0001",
			Merge:      progress.MergeCreated,
		},
		{SyncID: "s1", TS: now, Stage: progress.StageSyncDone, Tribunal: "TJBA", Dur: 12 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("TJBA", "INITIAL")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("TJBA", "CAPTCHA")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("TJBA", "WAITING_CAPTCHA")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("TJBA", "SUCCESS")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.casesMerged.WithLabelValues("TJBA", "created")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "oabsync_run_duration_seconds"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
