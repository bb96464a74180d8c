// Package progress defines the event structures emitted by the capture workers.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageSyncStart   Stage = "SYNC_START"
	StageSyncCaptcha Stage = "SYNC_CAPTCHA"
	StageSyncDone    Stage = "SYNC_DONE"
	StageSyncError   Stage = "SYNC_ERROR"
	StageCaseMerged  Stage = "CASE_MERGED"
)

// MergeResult tells whether a merged case was new.
type MergeResult string

// Merge results carried by CASE_MERGED events.
const (
	MergeCreated MergeResult = "created"
	MergeUpdated MergeResult = "updated"
	MergeSkipped MergeResult = "skipped"
	MergeFailed  MergeResult = "failed"
)

// Event captures a single step of a sync run.
type Event struct {
	// SyncID identifies the sync the event belongs to.
	SyncID string
	// TenantID and UsuarioID scope the sync.
	TenantID  string
	UsuarioID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Tribunal is the court acronym being queried.
	Tribunal string
	// Mode is INITIAL or CAPTCHA.
	Mode capture.Mode
	// Counters mirror the state at the time of the event.
	Counters capture.Counters
	// CaseNumber and Merge describe CASE_MERGED events.
	CaseNumber string
	Merge      MergeResult
	// Dur captures run latency for terminal events.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SyncID == "" {
		return errors.New("sync id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSyncStart, StageSyncCaptcha, StageSyncDone, StageSyncError:
	case StageCaseMerged:
		if e.CaseNumber == "" {
			return errors.New("case merged requires case number")
		}
		if e.Merge == "" {
			return errors.New("case merged requires merge result")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event closes a run of the worker.
func (e Event) Terminal() bool {
	switch e.Stage {
	case StageSyncCaptcha, StageSyncDone, StageSyncError:
		return true
	default:
		return false
	}
}

// Outcome maps terminal stages to the sync status they record.
func (e Event) Outcome() (capture.Status, bool) {
	switch e.Stage {
	case StageSyncCaptcha:
		return capture.StatusWaitingCaptcha, true
	case StageSyncDone:
		return capture.StatusSuccess, true
	case StageSyncError:
		return capture.StatusFailed, true
	default:
		return "", false
	}
}

// ForState builds an event carrying the identity and counters of state.
func ForState(stage Stage, state capture.SyncState, now time.Time) Event {
	return Event{
		SyncID:    state.SyncID,
		TenantID:  state.TenantID,
		UsuarioID: state.UsuarioID,
		TS:        now,
		Stage:     stage,
		Tribunal:  state.TribunalSigla,
		Mode:      state.Mode,
		Counters:  state.Counters,
		Note:      state.Error,
	}
}
