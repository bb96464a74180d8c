// Package api hosts the HTTP server, middleware, and REST handlers of the
// capture service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sync to start a capture and GET /v1/sync/status to poll it.
//   - POST /v1/sync/{sync_id}/captcha to answer a pending challenge.
//   - GET /v1/sync/history and /v1/courts for the capture screen.
//
// Every /v1 route requires a bearer token carrying tenant, user and role.
package api
