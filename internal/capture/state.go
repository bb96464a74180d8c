package capture

import (
	"time"
)

// Status is the public lifecycle label of a sync.
type Status string

const (
	// StatusQueued indicates the sync is waiting for a worker.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates a worker is talking to the court portal.
	StatusRunning Status = "RUNNING"
	// StatusWaitingCaptcha indicates the portal asked for a human answer.
	StatusWaitingCaptcha Status = "WAITING_CAPTCHA"
	// StatusSuccess indicates the captured cases were merged.
	StatusSuccess Status = "SUCCESS"
	// StatusFailed indicates the sync ended with an error.
	StatusFailed Status = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Mode tells the worker which scraper entry point produced or continues a sync.
type Mode string

const (
	// ModeInitial is a fresh lookup by bar number.
	ModeInitial Mode = "INITIAL"
	// ModeCaptcha continues a lookup with a CAPTCHA answer.
	ModeCaptcha Mode = "CAPTCHA"
)

// MaxTrackedNumbers caps how many case numbers a state keeps.
const MaxTrackedNumbers = 50

// Phase is the status-specific part of a SyncState. It is a closed set: only
// the types in this package implement it.
type Phase interface {
	Status() Status
	phase()
}

// Queued is the phase of a sync waiting in the job queue. A continuation
// queued after a CAPTCHA answer records the challenge it answers.
type Queued struct {
	AnsweredCaptchaID string
}

// Running is the phase of a sync being processed by a worker.
type Running struct{}

// WaitingCaptcha is the only phase that carries CAPTCHA data.
type WaitingCaptcha struct {
	CaptchaID    string
	CaptchaImage string
}

// Succeeded is the terminal success phase.
type Succeeded struct{}

// Failed is the terminal failure phase.
type Failed struct{}

func (Queued) Status() Status         { return StatusQueued }
func (Running) Status() Status        { return StatusRunning }
func (WaitingCaptcha) Status() Status { return StatusWaitingCaptcha }
func (Succeeded) Status() Status      { return StatusSuccess }
func (Failed) Status() Status         { return StatusFailed }

func (Queued) phase()         {}
func (Running) phase()        {}
func (WaitingCaptcha) phase() {}
func (Succeeded) phase()      {}
func (Failed) phase()         {}

// PhaseFor rebuilds a phase from its flat storage representation. On a
// queued row captchaID is the answered challenge. CAPTCHA fields are ignored
// for every other status than QUEUED and WAITING_CAPTCHA.
func PhaseFor(status Status, captchaID, captchaImage string) (Phase, error) {
	switch status {
	case StatusQueued:
		return Queued{AnsweredCaptchaID: captchaID}, nil
	case StatusRunning:
		return Running{}, nil
	case StatusWaitingCaptcha:
		return WaitingCaptcha{CaptchaID: captchaID, CaptchaImage: captchaImage}, nil
	case StatusSuccess:
		return Succeeded{}, nil
	case StatusFailed:
		return Failed{}, nil
	default:
		return nil, &UnknownStatusError{Status: string(status)}
	}
}

// Counters summarises what a sync touched.
type Counters struct {
	// Synced is the number of unique cases returned by the portal.
	Synced int
	// Created is the number of cases inserted by the reconciler.
	Created int
	// Updated is the number of existing cases refreshed by the reconciler.
	Updated int
	// ProcessosNumeros holds up to MaxTrackedNumbers case numbers.
	ProcessosNumeros []string
}

// SyncState tracks one capture attempt for a (tenant, user) pair.
type SyncState struct {
	SyncID        string
	TenantID      string
	UsuarioID     string
	AdvogadoID    string
	TribunalSigla string
	OAB           string
	ClienteNome   string
	Mode          Mode
	Phase         Phase
	Counters      Counters
	Error         string
	QueueJobID    string
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	UpdatedAt     time.Time
}

// NewSyncParams are the lookup parameters of a fresh sync.
type NewSyncParams struct {
	SyncID        string
	TenantID      string
	UsuarioID     string
	AdvogadoID    string
	TribunalSigla string
	OAB           string
	ClienteNome   string
}

// NewSyncState builds a QUEUED state in INITIAL mode with zeroed counters.
func NewSyncState(p NewSyncParams, now time.Time) SyncState {
	return SyncState{
		SyncID:        p.SyncID,
		TenantID:      p.TenantID,
		UsuarioID:     p.UsuarioID,
		AdvogadoID:    p.AdvogadoID,
		TribunalSigla: p.TribunalSigla,
		OAB:           p.OAB,
		ClienteNome:   p.ClienteNome,
		Mode:          ModeInitial,
		Phase:         Queued{},
		Counters:      Counters{ProcessosNumeros: []string{}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Status returns the lifecycle label of the current phase.
func (s SyncState) Status() Status {
	if s.Phase == nil {
		return StatusQueued
	}
	return s.Phase.Status()
}

// Active reports whether the state still blocks a new sync for its owner.
func (s SyncState) Active() bool {
	return !s.Status().Terminal()
}

// Captcha returns the pending challenge when the state is waiting for one.
func (s SyncState) Captcha() (WaitingCaptcha, bool) {
	w, ok := s.Phase.(WaitingCaptcha)
	return w, ok
}

// OwnedBy reports whether the state belongs to the given scope.
func (s SyncState) OwnedBy(tenantID, usuarioID string) bool {
	return s.TenantID == tenantID && s.UsuarioID == usuarioID
}

// Clone returns a deep copy safe to hand to callers.
func (s SyncState) Clone() SyncState {
	out := s
	out.Counters.ProcessosNumeros = append([]string(nil), s.Counters.ProcessosNumeros...)
	if out.Counters.ProcessosNumeros == nil {
		out.Counters.ProcessosNumeros = []string{}
	}
	out.StartedAt = cloneTime(s.StartedAt)
	out.FinishedAt = cloneTime(s.FinishedAt)
	return out
}

// MarkRunning moves a queued sync to RUNNING under the given job handle.
func (s SyncState) MarkRunning(jobID string, now time.Time) SyncState {
	out := s.withPhase(Running{}, now)
	out.Error = ""
	if jobID != "" {
		out.QueueJobID = jobID
	}
	return out
}

// MarkWaitingCaptcha pauses the sync until a human answers the challenge.
func (s SyncState) MarkWaitingCaptcha(captchaID, image, message string, now time.Time) SyncState {
	out := s.withPhase(WaitingCaptcha{CaptchaID: captchaID, CaptchaImage: image}, now)
	out.Error = message
	return out
}

// MarkCaptchaQueued re-queues a paused sync in CAPTCHA mode as the
// continuation of the pending challenge.
func (s SyncState) MarkCaptchaQueued(now time.Time) SyncState {
	w, _ := s.Captcha()
	out := s.withPhase(Queued{AnsweredCaptchaID: w.CaptchaID}, now)
	out.Mode = ModeCaptcha
	out.Error = ""
	return out
}

// MarkSucceeded finishes the sync with the given counters.
func (s SyncState) MarkSucceeded(c Counters, now time.Time) SyncState {
	out := s.withPhase(Succeeded{}, now)
	out.Counters = trimCounters(c)
	out.Error = ""
	return out
}

// MarkFailed finishes the sync with an error message.
func (s SyncState) MarkFailed(message string, now time.Time) SyncState {
	out := s.withPhase(Failed{}, now)
	out.Error = message
	return out
}

// MarkFailedWithCounters finishes the sync with an error while keeping the
// partial progress that was made.
func (s SyncState) MarkFailedWithCounters(message string, c Counters, now time.Time) SyncState {
	out := s.MarkFailed(message, now)
	out.Counters = trimCounters(c)
	return out
}

// WithJobID records the handle of the outstanding queue job.
func (s SyncState) WithJobID(jobID string, now time.Time) SyncState {
	out := s.Clone()
	out.QueueJobID = jobID
	out.UpdatedAt = now
	return out
}

func (s SyncState) withPhase(p Phase, now time.Time) SyncState {
	out := s.Clone()
	out.Phase = p
	out.UpdatedAt = now
	if p.Status() == StatusRunning && out.StartedAt == nil {
		out.StartedAt = pointerTime(now)
	}
	if p.Status().Terminal() {
		out.FinishedAt = pointerTime(now)
	}
	return out
}

func trimCounters(c Counters) Counters {
	numbers := c.ProcessosNumeros
	if len(numbers) > MaxTrackedNumbers {
		numbers = numbers[:MaxTrackedNumbers]
	}
	c.ProcessosNumeros = append([]string{}, numbers...)
	return c
}

func pointerTime(t time.Time) *time.Time {
	v := t
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return pointerTime(*t)
}
