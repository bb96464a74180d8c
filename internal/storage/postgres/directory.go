package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

const (
	findLawyerSQL = `
		SELECT id, tenant_id, usuario_id, oab_numero, oab_uf
		FROM advogados
		WHERE tenant_id = $1 AND usuario_id = $2
		LIMIT 1;
	`
	insertAuditSQL = `
		INSERT INTO sync_audit (
			tenant_id, usuario_id, sync_id, action, status, synced, created, updated, message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
)

// LawyerDirectory reads lawyer profiles from the advogados table.
type LawyerDirectory struct {
	db DB
}

var _ capture.LawyerDirectory = (*LawyerDirectory)(nil)

// NewLawyerDirectory wraps a pool.
func NewLawyerDirectory(db DB) (*LawyerDirectory, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &LawyerDirectory{db: db}, nil
}

// FindByUser loads the lawyer profile of a user or returns store.ErrNotFound.
func (d *LawyerDirectory) FindByUser(ctx context.Context, tenantID, usuarioID string) (capture.Lawyer, error) {
	var l capture.Lawyer
	err := d.db.QueryRow(ctx, findLawyerSQL, tenantID, usuarioID).Scan(
		&l.ID, &l.TenantID, &l.UsuarioID, &l.OABNumero, &l.OABUF,
	)
	if err != nil {
		return capture.Lawyer{}, fmt.Errorf("failed to find lawyer profile: %w", notFound(err))
	}
	return l, nil
}

// AuditStore writes sync outcomes to sync_audit.
type AuditStore struct {
	db DB
}

var _ store.AuditRepository = (*AuditStore)(nil)

// NewAuditStore wraps a pool.
func NewAuditStore(db DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &AuditStore{db: db}, nil
}

// RecordSyncOutcome inserts one audit row.
func (s *AuditStore) RecordSyncOutcome(ctx context.Context, e store.AuditEntry) error {
	if _, err := s.db.Exec(ctx, insertAuditSQL,
		e.TenantID, e.UsuarioID, e.SyncID, e.Action, string(e.Status),
		e.Synced, e.Created, e.Updated, e.Message, e.At,
	); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}
