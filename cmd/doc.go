// Package cmd implements the oab-sync command line.
//
// Architecture overview:
//   - HTTP API (serve): internal/api exposes health, metrics and the /v1/sync endpoints behind bearer-token auth.
//     Requests go to internal/orchestrator, which owns every caller-driven transition of a sync: start, status
//     polling, captcha answers and history.
//   - Queue & workers: the orchestrator enqueues capture jobs through the dispatcher. With queue.backend=memory the
//     workers run inside the serve process; with queue.backend=pubsub they run in separate `oab-sync worker`
//     processes that consume the subscription.
//   - Capture: each job performs one call to the scraping service, which answers with cases or a captcha challenge.
//     Cases are archived to the blob store (memory/local/GCS) and folded into the relational case store by the
//     reconciler.
//   - Persistence: sync state, cases, clients, parties and the audit trail live in Postgres (or memory for local
//     runs). `oab-sync migrate` creates the schema.
//   - Observability: zap logs (optionally rotated to a file), Prometheus metrics on /metrics, OpenTelemetry spans
//     per job and a progress hub fanning lifecycle events to log, audit and metric sinks.
//
// Quick checklist:
//   - Configure env vars: OABSYNC_AUTH_JWT_SECRET, OABSYNC_SCRAPER_BASE_URL, OABSYNC_DATABASE_BACKEND/DSN,
//     OABSYNC_QUEUE_BACKEND and OABSYNC_QUEUE_PUBSUB_* for distributed workers, OABSYNC_STORAGE_* for archiving.
//   - Run locally: oab-sync serve --config config.yaml (memory backends, in-process workers).
//   - Get a development token: oab-sync token --tenant t1 --user u1.
package cmd
