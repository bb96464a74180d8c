package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/oab-process-sync/internal/progress"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

// StoreSink writes one audit entry per terminal worker event.
type StoreSink struct {
	repo   store.AuditRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.AuditRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume records the outcomes in the batch. It respects ctx deadlines and
// returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		status, ok := evt.Outcome()
		if !ok {
			continue
		}
		entry := store.AuditEntry{
			TenantID:  evt.TenantID,
			UsuarioID: evt.UsuarioID,
			SyncID:    evt.SyncID,
			Action:    store.AuditActionInitialSync,
			Status:    status,
			Synced:    evt.Counters.Synced,
			Created:   evt.Counters.Created,
			Updated:   evt.Counters.Updated,
			Message:   evt.Note,
			At:        evt.TS,
		}
		if err := s.repo.RecordSyncOutcome(ctx, entry); err != nil {
			return fmt.Errorf("record sync outcome: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
