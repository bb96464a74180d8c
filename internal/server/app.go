// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/oab-process-sync/internal/api"
	"github.com/JakeFAU/oab-process-sync/internal/auth"
	"github.com/JakeFAU/oab-process-sync/internal/capture"
	"github.com/JakeFAU/oab-process-sync/internal/clock/system"
	"github.com/JakeFAU/oab-process-sync/internal/config"
	"github.com/JakeFAU/oab-process-sync/internal/courts"
	"github.com/JakeFAU/oab-process-sync/internal/dispatcher"
	"github.com/JakeFAU/oab-process-sync/internal/hash/sha256"
	"github.com/JakeFAU/oab-process-sync/internal/id/uuid"
	"github.com/JakeFAU/oab-process-sync/internal/metrics"
	"github.com/JakeFAU/oab-process-sync/internal/orchestrator"
	"github.com/JakeFAU/oab-process-sync/internal/policy/ratelimit"
	"github.com/JakeFAU/oab-process-sync/internal/progress"
	progresssinks "github.com/JakeFAU/oab-process-sync/internal/progress/sinks"
	queuememory "github.com/JakeFAU/oab-process-sync/internal/queue/memory"
	queuepubsub "github.com/JakeFAU/oab-process-sync/internal/queue/pubsub"
	"github.com/JakeFAU/oab-process-sync/internal/reconciler"
	"github.com/JakeFAU/oab-process-sync/internal/scraper/remote"
	gcsstorage "github.com/JakeFAU/oab-process-sync/internal/storage/gcs"
	localstorage "github.com/JakeFAU/oab-process-sync/internal/storage/local"
	memorystorage "github.com/JakeFAU/oab-process-sync/internal/storage/memory"
	pgstore "github.com/JakeFAU/oab-process-sync/internal/storage/postgres"
	"github.com/JakeFAU/oab-process-sync/internal/store"
	"github.com/JakeFAU/oab-process-sync/internal/telemetry"
	"github.com/JakeFAU/oab-process-sync/internal/worker"
)

const userAgent = "oab-sync"

// Role selects which halves of the pipeline a process runs.
type Role int

const (
	// RoleServe runs the HTTP API. With the memory queue it also runs the
	// workers in-process, since jobs cannot leave the process.
	RoleServe Role = iota
	// RoleWorker consumes jobs from Pub/Sub without serving HTTP.
	RoleWorker
)

// Options override pieces of the graph, mostly for tests.
type Options struct {
	// Scraper replaces the remote scraping client.
	Scraper capture.CaseScraper
	// Registerer receives progress collectors. Nil uses the default registry.
	Registerer prometheus.Registerer
	// Version is reported on spans.
	Version string
}

type jobQueue interface {
	capture.JobQueue
	capture.JobSource
	Close()
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	role   Role
	logger *zap.Logger

	pool         *pgxpool.Pool
	pubsubClient *pubsub.Client
	gcsClient    *storage.Client
	tracer       *sdktrace.TracerProvider
	hub          *progress.Hub
	queue        jobQueue

	states   store.SyncStateStore
	cases    store.CaseStore
	lawyers  capture.LawyerDirectory
	audit    store.AuditRepository
	blobs    capture.BlobStore
	courtDir *courts.Directory

	orchestrator *orchestrator.Orchestrator
	dispatch     *dispatcher.Dispatcher
	apiServer    *api.Server
}

// Build creates the application's dependencies for the given role. On error
// everything opened so far is closed.
func Build(ctx context.Context, cfg config.Config, role Role, logger *zap.Logger, opts Options) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := validateRole(cfg, role, opts); err != nil {
		return nil, err
	}
	metrics.Init()

	app = &App{cfg: cfg, role: role, logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Append(err, app.Close(context.WithoutCancel(ctx)))
			app = nil
		}
	}()

	app.logger.Info("building application dependencies",
		zap.String("queue", cfg.Queue.Backend),
		zap.String("database", cfg.Database.Backend),
		zap.String("storage", cfg.Storage.Backend),
	)

	app.tracer, err = telemetry.InitTracerProvider(ctx, telemetry.Config{ServiceName: userAgent, Version: opts.Version, SampleRatio: 1})
	if err != nil {
		return app, fmt.Errorf("tracer init failed: %w", err)
	}
	if app.courtDir, err = courts.New(cfg.Courts.List, cfg.Courts.Default); err != nil {
		return app, fmt.Errorf("court directory init failed: %w", err)
	}
	if err = app.setupDatabase(ctx); err != nil {
		return app, err
	}
	if err = app.setupStorage(ctx); err != nil {
		return app, err
	}
	if err = app.setupQueue(ctx); err != nil {
		return app, err
	}
	if err = app.setupProgress(ctx, opts.Registerer); err != nil {
		return app, err
	}
	if app.runsWorkers() {
		if err = app.setupDispatcher(opts.Scraper); err != nil {
			return app, err
		}
	} else {
		app.dispatch = dispatcher.New(app.queue, nil, app.logger, dispatcher.WithEnqueueTimeout(cfg.Queue.EnqueueTimeout))
	}
	if role == RoleServe {
		if err = app.setupAPI(); err != nil {
			return app, err
		}
	}
	return app, nil
}

func validateRole(cfg config.Config, role Role, opts Options) error {
	if role == RoleServe {
		if err := cfg.ValidateServe(); err != nil {
			return err
		}
	}
	if role == RoleWorker && cfg.Queue.Backend != config.BackendPubSub {
		return fmt.Errorf("worker processes require queue.backend=%s", config.BackendPubSub)
	}
	if role == RoleWorker && cfg.Queue.PubSub.Subscription == "" {
		return fmt.Errorf("queue.pubsub.subscription is required for workers")
	}
	runsWorkers := role == RoleWorker || cfg.Queue.Backend == config.BackendMemory
	if runsWorkers && opts.Scraper == nil {
		return cfg.ValidateWorker()
	}
	return nil
}

func (a *App) runsWorkers() bool {
	return a.role == RoleWorker || a.cfg.Queue.Backend == config.BackendMemory
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.Database.Backend != config.BackendPostgres {
		a.logger.Warn("using in-memory state and case stores; data is lost on restart")
		a.states = memorystorage.NewStateStore()
		a.cases = memorystorage.NewCaseStore()
		a.lawyers = memorystorage.NewLawyerDirectory()
		a.audit = memorystorage.NewAuditStore()
		return nil
	}

	var err error
	a.pool, err = pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres pool init failed: %w", err)
	}
	if a.cfg.Database.AutoMigrate {
		if err := pgstore.Migrate(ctx, a.pool); err != nil {
			return fmt.Errorf("postgres migrate failed: %w", err)
		}
		a.logger.Info("database schema migrated")
	}
	if a.states, err = pgstore.NewStateStore(a.pool); err != nil {
		return fmt.Errorf("state store init failed: %w", err)
	}
	if a.cases, err = pgstore.NewCaseStore(a.pool); err != nil {
		return fmt.Errorf("case store init failed: %w", err)
	}
	if a.lawyers, err = pgstore.NewLawyerDirectory(a.pool); err != nil {
		return fmt.Errorf("lawyer directory init failed: %w", err)
	}
	if a.audit, err = pgstore.NewAuditStore(a.pool); err != nil {
		return fmt.Errorf("audit store init failed: %w", err)
	}
	a.logger.Info("postgres stores initialized", zap.Int32("max_conns", a.cfg.Database.MaxConns))
	return nil
}

func (a *App) setupStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.gcsClient, err = storage.NewClient(ctx, option.WithUserAgent(userAgent))
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.blobs, err = gcsstorage.New(a.gcsClient, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case config.BackendLocal:
		a.blobs, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.LocalDir))
	case config.BackendMemory:
		a.blobs = memorystorage.NewBlobStore()
		a.logger.Info("using in-memory storage backend")
	default:
		a.logger.Info("snapshot archiving disabled")
	}
	return nil
}

func (a *App) setupQueue(ctx context.Context) error {
	if a.cfg.Queue.Backend != config.BackendPubSub {
		a.queue = queuememory.NewQueue(a.cfg.Queue.Capacity, uuid.New())
		a.logger.Info("using in-memory job queue", zap.Int("capacity", a.cfg.Queue.Capacity))
		return nil
	}
	ps := a.cfg.Queue.PubSub
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, ps.ProjectID, option.WithUserAgent(userAgent))
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	subscription := ""
	if a.runsWorkers() {
		subscription = ps.Subscription
	}
	q, err := queuepubsub.New(a.pubsubClient, ps.Topic, subscription, ps.MaxOutstanding, a.logger)
	if err != nil {
		return fmt.Errorf("pubsub queue init failed: %w", err)
	}
	a.queue = q
	a.logger.Info("using Pub/Sub job queue",
		zap.String("project", ps.ProjectID),
		zap.String("topic", ps.Topic),
		zap.String("subscription", subscription),
	)
	return nil
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		progresssinks.NewStoreSink(a.audit, a.logger.Named("progress_store")),
		promSink,
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		TerminalWait:   a.cfg.Progress.TerminalWait,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) setupDispatcher(scraper capture.CaseScraper) error {
	if scraper == nil {
		client, err := remote.New(remote.Config{
			BaseURL: a.cfg.Scraper.BaseURL,
			Token:   a.cfg.Scraper.Token,
			Timeout: a.cfg.Scraper.Timeout,
		}, nil, a.logger)
		if err != nil {
			return fmt.Errorf("scraper client init failed: %w", err)
		}
		scraper = client
	}
	ids := uuid.New()
	merger, err := reconciler.New(a.cases, a.courtDir, ids, a.logger)
	if err != nil {
		return fmt.Errorf("reconciler init failed: %w", err)
	}
	rl := a.cfg.Worker.RateLimit
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   rl.DefaultRPS,
		DefaultBurst: rl.DefaultBurst,
		PerCourtRPS:  rl.PerCourtRPS,
		Observe:      metrics.ObserveRateLimitDelay,
	})
	workerCfg := worker.Config{
		JobTimeout:    a.cfg.Worker.JobTimeout,
		ArchivePrefix: a.cfg.Storage.Prefix,
	}
	a.logger.Info("worker config",
		zap.Int("concurrency", a.cfg.Worker.Concurrency),
		zap.Duration("job_timeout", workerCfg.JobTimeout),
		zap.Float64("default_rps", rl.DefaultRPS),
	)

	deps := worker.Deps{
		Source:   a.queue,
		States:   a.states,
		Scraper:  scraper,
		Upserter: merger,
		Blobs:    a.blobs,
		Hasher:   sha256.New(),
		Clock:    system.New(),
		Limiter:  limiter,
		Emitter:  a.hub,
	}
	workers := make([]*worker.Worker, 0, a.cfg.Worker.Concurrency)
	for i := 0; i < a.cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(deps, workerCfg, a.logger.With(zap.Int("index", i))))
	}
	a.dispatch = dispatcher.New(a.queue, workers, a.logger, dispatcher.WithEnqueueTimeout(a.cfg.Queue.EnqueueTimeout))
	return nil
}

func (a *App) setupAPI() error {
	verifier, err := auth.NewVerifier([]byte(a.cfg.Auth.JWTSecret), a.cfg.Auth.Issuer, a.cfg.Auth.Leeway)
	if err != nil {
		return fmt.Errorf("token verifier init failed: %w", err)
	}
	a.orchestrator, err = orchestrator.New(orchestrator.Deps{
		States:  a.states,
		Queue:   a.dispatch,
		Courts:  a.courtDir,
		Lawyers: a.lawyers,
		IDs:     uuid.New(),
		Clock:   system.New(),
		Emitter: a.hub,
	}, orchestrator.Config{
		StaleAfter:   a.cfg.Sync.StaleAfter,
		AllowedRoles: auth.NewRoleSet(a.cfg.Auth.AllowedRoles...),
	}, a.logger)
	if err != nil {
		return fmt.Errorf("orchestrator init failed: %w", err)
	}
	a.apiServer = api.NewServer(a.orchestrator, verifier, api.Options{
		RequestTimeout: a.cfg.Server.RequestTimeout,
		Ready:          a.ready,
	}, a.logger)
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// Handler exposes the HTTP handler of a serving App.
func (a *App) Handler() http.Handler {
	if a.apiServer == nil {
		return http.NotFoundHandler()
	}
	return a.apiServer.Handler()
}

// Run blocks until ctx ends, serving HTTP and running workers as the role
// requires, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	workersDone := make(chan struct{})
	if a.runsWorkers() {
		go func() {
			defer close(workersDone)
			a.dispatch.Run(runCtx)
		}()
	} else {
		close(workersDone)
	}

	var srv *http.Server
	serveErr := make(chan error, 1)
	if a.role == RoleServe {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", zap.Error(err))
				serveErr <- err
				stop()
			}
		}()
	}

	<-runCtx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	var err error
	if srv != nil {
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("server shutdown: %w", shutdownErr))
		}
	}
	stop()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before shutdown timeout")
	}
	select {
	case serr := <-serveErr:
		err = multierr.Append(err, serr)
	default:
	}
	return multierr.Append(err, a.Close(shutdownCtx))
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Close releases every client the App opened. It is safe on a partially
// built App.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.queue != nil {
		a.queue.Close()
	}
	if a.hub != nil {
		err = multierr.Append(err, a.hub.Close(ctx))
	}
	if a.pubsubClient != nil {
		err = multierr.Append(err, a.pubsubClient.Close())
	}
	if a.gcsClient != nil {
		err = multierr.Append(err, a.gcsClient.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		err = multierr.Append(err, a.tracer.Shutdown(ctx))
	}
	if err != nil {
		a.logger.Warn("shutdown finished with errors", zap.Error(err))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}
