// Package orchestrator implements the caller-facing sync operations: start a
// capture, poll it, answer its CAPTCHA and list recent runs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/oab-process-sync/internal/auth"
	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/metrics"
	"github.com/JakeFAU/oab-process-sync/internal/progress"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

// History bounds.
const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 30
)

// EnqueueFailedPrefix prefixes the message of syncs whose job never reached the queue.
const EnqueueFailedPrefix = "failed to enqueue capture: "

// Config controls Orchestrator behavior.
type Config struct {
	// StaleAfter is how long an active sync may go without an update before a
	// new start expires it. Zero disables expiry.
	StaleAfter time.Duration
	// AllowedRoles may call the operations. Empty means auth.DefaultAllowedRoles.
	AllowedRoles auth.RoleSet
}

// Deps bundles the collaborators of an Orchestrator. Lawyers, Clock and
// Emitter are optional.
type Deps struct {
	States  store.SyncStateStore
	Queue   capture.JobQueue
	Courts  capture.CourtDirectory
	Lawyers capture.LawyerDirectory
	IDs     capture.IDGenerator
	Clock   capture.Clock
	Emitter progress.Emitter
}

// StartRequest holds the optional inputs of Start.
type StartRequest struct {
	TribunalSigla string
	OAB           string
	ClienteNome   string
}

// CaptchaAnswer is a user's reply to a pending challenge.
type CaptchaAnswer struct {
	SyncID    string
	CaptchaID string
	Text      string
}

// Orchestrator owns every caller-driven state transition.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and builds an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.States == nil:
		return nil, errors.New("sync state store is required")
	case deps.Queue == nil:
		return nil, errors.New("job queue is required")
	case deps.Courts == nil:
		return nil, errors.New("court directory is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if len(cfg.AllowedRoles) == 0 {
		cfg.AllowedRoles = auth.NewRoleSet()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger.Named("orchestrator")}, nil
}

// Start creates a QUEUED sync for the caller and enqueues its first job.
func (o *Orchestrator) Start(ctx context.Context, p auth.Principal, req StartRequest) (view capture.StatusView, err error) {
	defer func() { o.observe("start", err) }()
	if err := o.authorize(p); err != nil {
		return capture.StatusView{}, err
	}

	sigla := strings.ToUpper(strings.TrimSpace(req.TribunalSigla))
	if sigla == "" {
		sigla = o.deps.Courts.Default()
	}
	if _, ok := o.deps.Courts.Lookup(sigla); !ok {
		return capture.StatusView{}, fmt.Errorf("%w: %s", capture.ErrUnsupportedCourt, sigla)
	}

	lawyer, err := o.lawyerFor(ctx, p)
	if err != nil {
		return capture.StatusView{}, err
	}
	oab := capture.NormalizeOAB(req.OAB)
	if oab == "" {
		oab = lawyer.BarNumber()
	}
	if oab == "" {
		return capture.StatusView{}, capture.ErrMissingBarNumber
	}

	syncID, err := o.deps.IDs.NewID()
	if err != nil {
		return capture.StatusView{}, fmt.Errorf("sync id: %w", err)
	}
	now := o.now()
	state := capture.NewSyncState(capture.NewSyncParams{
		SyncID:        syncID,
		TenantID:      p.TenantID,
		UsuarioID:     p.UsuarioID,
		AdvogadoID:    lawyer.ID,
		TribunalSigla: sigla,
		OAB:           oab,
		ClienteNome:   strings.TrimSpace(req.ClienteNome),
	}, now)

	if err := o.deps.States.Create(ctx, state, o.staleBefore(now)); err != nil {
		var active *store.ActiveSyncError
		if errors.As(err, &active) {
			reason := capture.ErrSyncInProgress
			if g := capture.CanStart(&active.State, now, 0); g.Err != nil {
				reason = g.Err
			}
			return capture.StatusView{}, capture.NewConflict(reason, active.State)
		}
		return capture.StatusView{}, fmt.Errorf("create sync: %w", err)
	}
	log := o.logger.With(zap.String("sync_id", syncID), zap.String("tenant_id", p.TenantID), zap.String("tribunal", sigla))
	log.Info("sync created")

	final, err := o.dispatch(ctx, log, syncID, capture.PayloadFor(state))
	if err != nil {
		return capture.StatusView{}, err
	}
	return final.View(), nil
}

// PollStatus returns the caller's sync by ID, or the latest one when syncID
// is empty. A caller without syncs gets (nil, nil).
func (o *Orchestrator) PollStatus(ctx context.Context, p auth.Principal, syncID string) (view *capture.StatusView, err error) {
	defer func() { o.observe("status", err) }()
	if err := o.authorize(p); err != nil {
		return nil, err
	}
	syncID = strings.TrimSpace(syncID)
	if syncID == "" {
		state, err := o.deps.States.Latest(ctx, p.TenantID, p.UsuarioID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load latest sync: %w", err)
		}
		v := state.View()
		return &v, nil
	}
	state, err := o.owned(ctx, p, syncID)
	if err != nil {
		return nil, err
	}
	v := state.View()
	return &v, nil
}

// ResolveCaptcha accepts an answer for a sync paused on a challenge and
// re-queues it in CAPTCHA mode.
func (o *Orchestrator) ResolveCaptcha(ctx context.Context, p auth.Principal, ans CaptchaAnswer) (view capture.StatusView, err error) {
	defer func() { o.observe("captcha", err) }()
	if err := o.authorize(p); err != nil {
		return capture.StatusView{}, err
	}
	text := strings.TrimSpace(ans.Text)
	if text == "" {
		return capture.StatusView{}, capture.ErrEmptyCaptchaText
	}
	syncID := strings.TrimSpace(ans.SyncID)
	if _, err := o.owned(ctx, p, syncID); err != nil {
		return capture.StatusView{}, err
	}

	var captchaID string
	state, err := o.deps.States.Update(ctx, syncID, func(cur capture.SyncState) (capture.SyncState, error) {
		if !cur.OwnedBy(p.TenantID, p.UsuarioID) {
			return cur, capture.ErrForbidden
		}
		if g := capture.CanResolveCaptcha(cur, strings.TrimSpace(ans.CaptchaID)); !g.Allowed {
			return cur, capture.NewConflict(g.Err, cur)
		}
		w, _ := cur.Captcha()
		captchaID = w.CaptchaID
		return cur.MarkCaptchaQueued(o.now()), nil
	})
	if err != nil {
		if capture.KindOf(err) != capture.KindSystem {
			return capture.StatusView{}, err
		}
		return capture.StatusView{}, fmt.Errorf("queue captcha answer: %w", err)
	}
	log := o.logger.With(zap.String("sync_id", syncID), zap.String("tenant_id", p.TenantID), zap.String("captcha_id", captchaID))
	log.Info("captcha answer accepted")

	payload := capture.PayloadFor(state)
	payload.CaptchaID = captchaID
	payload.CaptchaText = text
	final, err := o.dispatch(ctx, log, syncID, payload)
	if err != nil {
		return capture.StatusView{}, err
	}
	return final.View(), nil
}

// History returns the caller's most recent syncs, newest first. limit is
// clamped to 1..MaxHistoryLimit; zero selects DefaultHistoryLimit.
func (o *Orchestrator) History(ctx context.Context, p auth.Principal, limit int) (views []capture.StatusView, err error) {
	defer func() { o.observe("history", err) }()
	if err := o.authorize(p); err != nil {
		return nil, err
	}
	states, err := o.deps.States.ListRecent(ctx, p.TenantID, p.UsuarioID, ClampHistory(limit))
	if err != nil {
		return nil, fmt.Errorf("list syncs: %w", err)
	}
	views = make([]capture.StatusView, 0, len(states))
	for _, s := range states {
		views = append(views, s.View())
	}
	return views, nil
}

// Courts returns the courts eligible for capture.
func (o *Orchestrator) Courts(_ context.Context, p auth.Principal) (courts []capture.Court, err error) {
	defer func() { o.observe("courts", err) }()
	if err := o.authorize(p); err != nil {
		return nil, err
	}
	return o.deps.Courts.List(), nil
}

// ClampHistory normalizes a requested history size.
func ClampHistory(limit int) int {
	switch {
	case limit == 0:
		return DefaultHistoryLimit
	case limit < 1:
		return 1
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

// dispatch enqueues payload and records the job handle. When the queue
// refuses the job the sync is failed so the caller can start again.
func (o *Orchestrator) dispatch(ctx context.Context, log *zap.Logger, syncID string, payload capture.JobPayload) (capture.SyncState, error) {
	jobID, err := o.deps.Queue.Enqueue(ctx, payload)
	if err != nil {
		log.Error("enqueue failed", zap.Error(err))
		msg := EnqueueFailedPrefix + err.Error()
		failed, uerr := o.deps.States.Update(context.WithoutCancel(ctx), syncID, func(cur capture.SyncState) (capture.SyncState, error) {
			if cur.Status() != capture.StatusQueued {
				return cur, fmt.Errorf("sync is %s", cur.Status())
			}
			return cur.MarkFailed(msg, o.now()), nil
		})
		if uerr != nil {
			log.Error("mark enqueue failure", zap.Error(uerr))
		} else {
			o.emit(progress.ForState(progress.StageSyncError, failed, o.now()))
		}
		return capture.SyncState{}, fmt.Errorf("enqueue sync %s: %w", syncID, err)
	}

	state, err := o.deps.States.Update(ctx, syncID, func(cur capture.SyncState) (capture.SyncState, error) {
		return cur.WithJobID(jobID, o.now()), nil
	})
	if err != nil {
		return capture.SyncState{}, fmt.Errorf("attach job %s: %w", jobID, err)
	}
	log.Debug("job enqueued", zap.String("job_id", jobID))
	return state, nil
}

func (o *Orchestrator) owned(ctx context.Context, p auth.Principal, syncID string) (capture.SyncState, error) {
	if syncID == "" {
		return capture.SyncState{}, capture.ErrForbidden
	}
	state, err := o.deps.States.Get(ctx, syncID)
	if errors.Is(err, store.ErrNotFound) {
		return capture.SyncState{}, capture.ErrForbidden
	}
	if err != nil {
		return capture.SyncState{}, fmt.Errorf("load sync: %w", err)
	}
	if !state.OwnedBy(p.TenantID, p.UsuarioID) {
		return capture.SyncState{}, capture.ErrForbidden
	}
	return state, nil
}

func (o *Orchestrator) lawyerFor(ctx context.Context, p auth.Principal) (capture.Lawyer, error) {
	if o.deps.Lawyers == nil {
		return capture.Lawyer{}, nil
	}
	l, err := o.deps.Lawyers.FindByUser(ctx, p.TenantID, p.UsuarioID)
	if errors.Is(err, store.ErrNotFound) {
		return capture.Lawyer{}, nil
	}
	if err != nil {
		return capture.Lawyer{}, fmt.Errorf("load lawyer profile: %w", err)
	}
	return l, nil
}

func (o *Orchestrator) authorize(p auth.Principal) error {
	if !p.Authenticated() {
		return capture.ErrUnauthenticated
	}
	if !o.cfg.AllowedRoles.Allows(p.Role) {
		return fmt.Errorf("%w: role %q", capture.ErrForbidden, p.Role)
	}
	return nil
}

func (o *Orchestrator) staleBefore(now time.Time) time.Time {
	if o.cfg.StaleAfter <= 0 {
		return time.Time{}
	}
	return now.Add(-o.cfg.StaleAfter)
}

func (o *Orchestrator) now() time.Time {
	if o.deps.Clock == nil {
		return time.Now().UTC()
	}
	return o.deps.Clock.Now()
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.deps.Emitter != nil {
		o.deps.Emitter.Emit(evt)
	}
}

func (o *Orchestrator) observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = capture.KindOf(err).String()
	}
	metrics.ObserveSyncRequest(op, outcome)
	if err != nil && capture.KindOf(err) != capture.KindSystem {
		o.logger.Debug("request refused", zap.String("operation", op), zap.Error(err))
	}
}
