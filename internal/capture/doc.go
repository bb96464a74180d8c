// Package capture defines the domain model of the OAB capture pipeline: the
// sync state machine, the captured case records produced by a scraper, the
// CAPTCHA guards and the collaborator interfaces the orchestrator, worker and
// reconciler depend on.
//
// The package performs no I/O.
package capture
