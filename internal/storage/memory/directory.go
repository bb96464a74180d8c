package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

// LawyerDirectory keeps lawyer profiles in memory.
type LawyerDirectory struct {
	mu      sync.RWMutex
	lawyers map[ownerKey]capture.Lawyer
}

var _ capture.LawyerDirectory = (*LawyerDirectory)(nil)

// NewLawyerDirectory constructs a directory seeded with the given profiles.
func NewLawyerDirectory(lawyers ...capture.Lawyer) *LawyerDirectory {
	d := &LawyerDirectory{lawyers: make(map[ownerKey]capture.Lawyer)}
	for _, l := range lawyers {
		d.Put(l)
	}
	return d
}

// Put adds or replaces a profile.
func (d *LawyerDirectory) Put(l capture.Lawyer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lawyers[ownerKey{tenantID: l.TenantID, usuarioID: l.UsuarioID}] = l
}

// FindByUser returns the user's profile or store.ErrNotFound.
func (d *LawyerDirectory) FindByUser(_ context.Context, tenantID, usuarioID string) (capture.Lawyer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.lawyers[ownerKey{tenantID: tenantID, usuarioID: usuarioID}]
	if !ok {
		return capture.Lawyer{}, store.ErrNotFound
	}
	return l, nil
}

// AuditStore keeps audit entries in memory.
type AuditStore struct {
	mu      sync.Mutex
	entries []store.AuditEntry
}

var _ store.AuditRepository = (*AuditStore)(nil)

// NewAuditStore constructs an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// RecordSyncOutcome appends the entry.
func (s *AuditStore) RecordSyncOutcome(_ context.Context, entry store.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (s *AuditStore) Entries() []store.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.AuditEntry(nil), s.entries...)
}
