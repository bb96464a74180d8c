package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/oab-process-sync/internal/progress"
)

// LogSink emits structured logs for debugging progress streams.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("sync_id", evt.SyncID),
			zap.String("tenant_id", evt.TenantID),
			zap.String("stage", string(evt.Stage)),
			zap.String("tribunal", evt.Tribunal),
			zap.String("mode", string(evt.Mode)),
			zap.Int("synced", evt.Counters.Synced),
			zap.Int("created", evt.Counters.Created),
			zap.Int("updated", evt.Counters.Updated),
		}
		if evt.CaseNumber != "" {
			fields = append(fields, zap.String("case", evt.CaseNumber), zap.String("merge", string(evt.Merge)))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
