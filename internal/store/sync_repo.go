// Package store declares interfaces for persisting capture state.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// MaxHistoryItems is how many states are retained per (tenant, user).
const MaxHistoryItems = 20

// ExpiredMessage is recorded on active states failed by Create's expiry sweep.
const ExpiredMessage = "sync expired without progress"

// ActiveSyncError is returned by Create when the owner already has a
// non-terminal sync.
type ActiveSyncError struct {
	// State is the blocking sync.
	State capture.SyncState
}

func (e *ActiveSyncError) Error() string {
	return fmt.Sprintf("sync %s is still %s", e.State.SyncID, e.State.Status())
}

// UpdateFunc computes the next version of a state. Returning an error aborts
// the update and leaves the stored state untouched.
type UpdateFunc func(current capture.SyncState) (capture.SyncState, error)

// SyncStateStore persists sync states keyed by sync ID with a secondary
// latest-by-(tenant, user) index.
type SyncStateStore interface {
	// Create atomically inserts state unless its owner already has an active
	// sync, in which case it returns *ActiveSyncError. Active syncs whose
	// UpdatedAt is before staleBefore are failed first; a zero staleBefore
	// disables expiry.
	Create(ctx context.Context, state capture.SyncState, staleBefore time.Time) error
	// Get loads a state by ID or returns ErrNotFound.
	Get(ctx context.Context, syncID string) (capture.SyncState, error)
	// Latest loads the most recently created state of the owner or returns ErrNotFound.
	Latest(ctx context.Context, tenantID, usuarioID string) (capture.SyncState, error)
	// Update applies fn to the stored state as one read-modify-write.
	Update(ctx context.Context, syncID string, fn UpdateFunc) (capture.SyncState, error)
	// ListRecent returns the owner's states, newest first.
	ListRecent(ctx context.Context, tenantID, usuarioID string, limit int) ([]capture.SyncState, error)
}

// AuditEntry records the outcome of a sync for the tenant's audit trail.
type AuditEntry struct {
	// TenantID and UsuarioID scope the entry.
	TenantID  string
	UsuarioID string
	// SyncID links the entry to the sync state.
	SyncID string
	// Action is the audited operation label.
	Action string
	// Status is the outcome (SUCCESS, FAILED, WAITING_CAPTCHA).
	Status capture.Status
	// Counters mirror the state counters at the time of the event.
	Synced  int
	Created int
	Updated int
	// Message optionally stores the failure reason.
	Message string
	// At is when the outcome was reached.
	At time.Time
}

// AuditActionInitialSync labels OAB capture outcomes.
const AuditActionInitialSync = "SINCRONIZACAO_INICIAL_OAB_PROCESSOS"

// AuditRepository persists audit entries.
type AuditRepository interface {
	RecordSyncOutcome(ctx context.Context, entry AuditEntry) error
}
