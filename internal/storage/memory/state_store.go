package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

type ownerKey struct {
	tenantID  string
	usuarioID string
}

// StateStore provides an in-memory SyncStateStore for development/testing.
// A single mutex makes Create's check-and-insert atomic.
type StateStore struct {
	mu      sync.RWMutex
	states  map[string]capture.SyncState
	history map[ownerKey][]string // newest first; history[k][0] is the latest index
}

var _ store.SyncStateStore = (*StateStore)(nil)

// NewStateStore constructs a StateStore.
func NewStateStore() *StateStore {
	return &StateStore{
		states:  make(map[string]capture.SyncState),
		history: make(map[ownerKey][]string),
	}
}

// Create inserts state unless the owner already has an active sync.
func (s *StateStore) Create(_ context.Context, state capture.SyncState, staleBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[state.SyncID]; exists {
		return fmt.Errorf("sync %s already exists", state.SyncID)
	}
	key := ownerKey{tenantID: state.TenantID, usuarioID: state.UsuarioID}
	if ids := s.history[key]; len(ids) > 0 {
		latest := s.states[ids[0]]
		if latest.Active() {
			if staleBefore.IsZero() || !latest.UpdatedAt.Before(staleBefore) {
				return &store.ActiveSyncError{State: latest.Clone()}
			}
			s.states[latest.SyncID] = latest.MarkFailed(store.ExpiredMessage, state.CreatedAt)
		}
	}

	s.states[state.SyncID] = state.Clone()
	ids := append([]string{state.SyncID}, s.history[key]...)
	if len(ids) > store.MaxHistoryItems {
		for _, pruned := range ids[store.MaxHistoryItems:] {
			delete(s.states, pruned)
		}
		ids = ids[:store.MaxHistoryItems]
	}
	s.history[key] = ids
	return nil
}

// Get fetches a state by ID.
func (s *StateStore) Get(_ context.Context, syncID string) (capture.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[syncID]
	if !ok {
		return capture.SyncState{}, store.ErrNotFound
	}
	return state.Clone(), nil
}

// Latest fetches the owner's most recent state.
func (s *StateStore) Latest(_ context.Context, tenantID, usuarioID string) (capture.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.history[ownerKey{tenantID: tenantID, usuarioID: usuarioID}]
	if len(ids) == 0 {
		return capture.SyncState{}, store.ErrNotFound
	}
	return s.states[ids[0]].Clone(), nil
}

// Update applies fn while holding the write lock.
func (s *StateStore) Update(_ context.Context, syncID string, fn store.UpdateFunc) (capture.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.states[syncID]
	if !ok {
		return capture.SyncState{}, store.ErrNotFound
	}
	next, err := fn(current.Clone())
	if err != nil {
		return capture.SyncState{}, err
	}
	if err := checkIdentity(current, next); err != nil {
		return capture.SyncState{}, err
	}
	s.states[syncID] = next.Clone()
	return next.Clone(), nil
}

// ListRecent returns up to limit states for the owner, newest first.
func (s *StateStore) ListRecent(_ context.Context, tenantID, usuarioID string, limit int) ([]capture.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.history[ownerKey{tenantID: tenantID, usuarioID: usuarioID}]
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	out := make([]capture.SyncState, 0, limit)
	for _, id := range ids[:limit] {
		out = append(out, s.states[id].Clone())
	}
	return out, nil
}

func checkIdentity(current, next capture.SyncState) error {
	if current.SyncID != next.SyncID ||
		current.TenantID != next.TenantID ||
		current.UsuarioID != next.UsuarioID {
		return errors.New("update must not change sync identity")
	}
	return nil
}
