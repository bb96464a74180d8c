// Package worker implements the capture execution loop.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/metrics"
	"github.com/JakeFAU/oab-process-sync/internal/progress"
	"github.com/JakeFAU/oab-process-sync/internal/reconciler"
	"github.com/JakeFAU/oab-process-sync/internal/store"
)

// Messages recorded on the sync state by the worker.
const (
	CaptchaRequiredMessage = "captcha required to continue the capture"
	NoCasesMessage         = "capture finished without valid cases"
	TimeoutMessage         = "capture timed out"
)

var errNotRunnable = errors.New("job not runnable")

var tracer = otel.Tracer("github.com/JakeFAU/oab-process-sync/internal/worker")

// Upserter persists one captured case.
type Upserter interface {
	UpsertCase(ctx context.Context, in reconciler.UpsertInput) (reconciler.UpsertResult, error)
}

// Limiter throttles calls to a court portal.
type Limiter interface {
	Wait(ctx context.Context, court string) error
}

// Config controls Worker behavior.
type Config struct {
	// JobTimeout bounds each scraper call.
	JobTimeout time.Duration
	// ArchivePrefix is the blob path prefix for captured snapshots.
	ArchivePrefix string
	// RetryDelay is the pause after a failed dequeue.
	RetryDelay time.Duration
}

// Deps bundles the collaborators of a Worker. Blobs, Hasher, Limiter and
// Emitter are optional.
type Deps struct {
	Source   capture.JobSource
	States   store.SyncStateStore
	Scraper  capture.CaseScraper
	Upserter Upserter
	Blobs    capture.BlobStore
	Hasher   capture.Hasher
	Clock    capture.Clock
	Limiter  Limiter
	Emitter  progress.Emitter
}

// Worker consumes queue items and drives a sync through one scraper call.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "captures"
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger.Named("worker")}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.RetryDelay):
			}
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID), zap.String("sync_id", item.Payload.SyncID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) now() time.Time {
	if w.deps.Clock == nil {
		return time.Now().UTC()
	}
	return w.deps.Clock.Now()
}

func (w *Worker) emit(evt progress.Event) {
	if w.deps.Emitter != nil {
		w.deps.Emitter.Emit(evt)
	}
}

func (w *Worker) processJob(ctx context.Context, item capture.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	p := item.Payload
	ctx, span := tracer.Start(ctx, "capture.job", trace.WithAttributes(
		attribute.String("sync.id", p.SyncID),
		attribute.String("sync.mode", string(p.Mode)),
		attribute.String("court", p.TribunalSigla),
		attribute.Int("job.attempt", item.Attempt),
	))
	defer span.End()

	log := w.logger.With(
		zap.String("sync_id", p.SyncID),
		zap.String("tenant_id", p.TenantID),
		zap.String("tribunal", p.TribunalSigla),
		zap.String("job_id", item.JobID),
	)

	started := w.now()
	state, err := w.deps.States.Update(ctx, p.SyncID, func(cur capture.SyncState) (capture.SyncState, error) {
		if g := capture.CanRun(cur, p); !g.Allowed {
			return cur, fmt.Errorf("%w: %s", errNotRunnable, g.Reason)
		}
		return cur.MarkRunning(item.JobID, started), nil
	})
	switch {
	case errors.Is(err, errNotRunnable), errors.Is(err, store.ErrNotFound):
		log.Info("skipping job", zap.Error(err))
		return
	case err != nil:
		log.Error("mark running failed", zap.Error(err))
		return
	}
	w.emit(progress.ForState(progress.StageSyncStart, state, started))

	result, err := w.scrape(ctx, p)
	var (
		next  progress.Stage
		apply func(capture.SyncState, time.Time) capture.SyncState
	)
	switch {
	case err != nil:
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = TimeoutMessage
		}
		log.Warn("scraper failed", zap.Error(err))
		span.SetStatus(codes.Error, msg)
		next = progress.StageSyncError
		apply = func(s capture.SyncState, now time.Time) capture.SyncState { return s.MarkFailed(msg, now) }
	case result.NeedsCaptcha():
		ch := *result.Challenge
		if strings.TrimSpace(ch.ID) == "" {
			next = progress.StageSyncError
			apply = func(s capture.SyncState, now time.Time) capture.SyncState {
				return s.MarkFailed("captcha challenge without id", now)
			}
			break
		}
		log.Info("captcha required", zap.String("captcha_id", ch.ID))
		next = progress.StageSyncCaptcha
		apply = func(s capture.SyncState, now time.Time) capture.SyncState {
			return s.MarkWaitingCaptcha(ch.ID, ch.Image, CaptchaRequiredMessage, now)
		}
	default:
		cases := capture.DedupeCases(result.Cases)
		if len(cases) == 0 {
			next = progress.StageSyncError
			apply = func(s capture.SyncState, now time.Time) capture.SyncState { return s.MarkFailed(NoCasesMessage, now) }
			break
		}
		counters, persistErr := w.persist(ctx, state, cases)
		if persistErr != nil {
			log.Error("persist cases failed", zap.Error(persistErr))
			next = progress.StageSyncError
			apply = func(s capture.SyncState, now time.Time) capture.SyncState {
				return s.MarkFailedWithCounters(persistErr.Error(), counters, now)
			}
			break
		}
		next = progress.StageSyncDone
		apply = func(s capture.SyncState, now time.Time) capture.SyncState { return s.MarkSucceeded(counters, now) }
	}
	w.finish(ctx, log, p.SyncID, started, next, apply)
}

func (w *Worker) scrape(ctx context.Context, p capture.JobPayload) (capture.ScrapeResult, error) {
	if w.deps.Scraper == nil {
		return capture.ScrapeResult{}, errors.New("no scraper configured")
	}
	if w.deps.Limiter != nil {
		if err := w.deps.Limiter.Wait(ctx, p.TribunalSigla); err != nil {
			return capture.ScrapeResult{}, err
		}
	}
	runCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	var (
		res capture.ScrapeResult
		err error
	)
	if p.Mode == capture.ModeCaptcha {
		res, err = w.deps.Scraper.SubmitCaptcha(runCtx, capture.CaptchaSubmission{
			SyncID:        p.SyncID,
			TribunalSigla: p.TribunalSigla,
			OAB:           p.OAB,
			CaptchaID:     p.CaptchaID,
			CaptchaText:   p.CaptchaText,
		})
	} else {
		res, err = w.deps.Scraper.SearchByOAB(runCtx, capture.ScrapeRequest{
			SyncID:        p.SyncID,
			TribunalSigla: p.TribunalSigla,
			OAB:           p.OAB,
		})
	}
	if err != nil {
		return capture.ScrapeResult{}, fmt.Errorf("scrape %s: %w", p.TribunalSigla, err)
	}
	return res, nil
}

// persist archives and upserts each case. Per-case failures are combined and
// do not stop the remaining cases.
func (w *Worker) persist(ctx context.Context, state capture.SyncState, cases []capture.CapturedCase) (capture.Counters, error) {
	counters := capture.Counters{Synced: len(cases), ProcessosNumeros: make([]string, 0, len(cases))}
	var errs error
	for _, c := range cases {
		numero := strings.TrimSpace(c.NumeroProcesso)
		counters.ProcessosNumeros = append(counters.ProcessosNumeros, numero)
		w.archive(ctx, state, c)

		res, err := w.upsert(ctx, state, c)
		evt := progress.ForState(progress.StageCaseMerged, state, w.now())
		evt.CaseNumber = numero
		switch {
		case err != nil:
			errs = multierr.Append(errs, err)
			evt.Merge = progress.MergeFailed
			evt.Note = err.Error()
		case res.Created:
			counters.Created++
			evt.Merge = progress.MergeCreated
		case res.Updated:
			counters.Updated++
			evt.Merge = progress.MergeUpdated
		default:
			evt.Merge = progress.MergeSkipped
		}
		w.emit(evt)
	}
	return counters, errs
}

func (w *Worker) upsert(ctx context.Context, state capture.SyncState, c capture.CapturedCase) (reconciler.UpsertResult, error) {
	if w.deps.Upserter == nil {
		return reconciler.UpsertResult{}, errors.New("no reconciler configured")
	}
	if c.TribunalSigla == "" {
		c.TribunalSigla = state.TribunalSigla
	}
	res, err := w.deps.Upserter.UpsertCase(ctx, reconciler.UpsertInput{
		TenantID:       state.TenantID,
		Case:           c,
		ClienteNome:    state.ClienteNome,
		AdvogadoID:     state.AdvogadoID,
		UpdateIfExists: true,
	})
	if err != nil {
		return reconciler.UpsertResult{}, fmt.Errorf("case %s: %w", c.NumeroProcesso, err)
	}
	return res, nil
}

func (w *Worker) archive(ctx context.Context, state capture.SyncState, c capture.CapturedCase) {
	if w.deps.Blobs == nil || w.deps.Hasher == nil {
		return
	}
	body, err := json.Marshal(c)
	if err != nil {
		w.logger.Warn("encode capture snapshot failed", zap.String("sync_id", state.SyncID), zap.Error(err))
		return
	}
	hash, err := w.deps.Hasher.Hash(body)
	if err != nil {
		w.logger.Warn("hash capture snapshot failed", zap.String("sync_id", state.SyncID), zap.Error(err))
		return
	}
	path := w.buildBlobPath(state.TenantID, state.SyncID, hash)
	if _, err := w.deps.Blobs.PutObject(ctx, path, "application/json", bytes.NewReader(body)); err != nil {
		w.logger.Warn("archive capture snapshot failed",
			zap.String("sync_id", state.SyncID),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

func (w *Worker) buildBlobPath(tenantID, syncID, hash string) string {
	prefix := strings.Trim(w.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s/%s.json", tenantID, syncID, hash)
	}
	return fmt.Sprintf("%s/%s/%s/%s.json", prefix, tenantID, syncID, hash)
}

// finish writes the outcome, unless the sync left RUNNING meanwhile. The
// write outlives cancellation of ctx: the job was already acknowledged.
func (w *Worker) finish(
	ctx context.Context,
	log *zap.Logger,
	syncID string,
	started time.Time,
	stage progress.Stage,
	apply func(capture.SyncState, time.Time) capture.SyncState,
) {
	now := w.now()
	final, err := w.deps.States.Update(context.WithoutCancel(ctx), syncID, func(cur capture.SyncState) (capture.SyncState, error) {
		if cur.Status() != capture.StatusRunning {
			return cur, fmt.Errorf("%w: sync is %s", errNotRunnable, cur.Status())
		}
		return apply(cur, now), nil
	})
	if err != nil {
		log.Error("final sync status update failed", zap.Error(err))
		return
	}
	metrics.ObserveJob(string(final.Status()))
	evt := progress.ForState(stage, final, now)
	evt.Dur = now.Sub(started)
	w.emit(evt)
	log.Info("job finished",
		zap.String("status", string(final.Status())),
		zap.Int("synced", final.Counters.Synced),
		zap.Int("created", final.Counters.Created),
		zap.Int("updated", final.Counters.Updated),
	)
}
