package capture

import (
	"context"
	"io"
	"time"
)

// JobQueue accepts job descriptors and returns an opaque job handle.
type JobQueue interface {
	Enqueue(ctx context.Context, payload JobPayload) (string, error)
}

// JobSource hands queued jobs to workers.
type JobSource interface {
	Dequeue(ctx context.Context) (QueueItem, error)
}

// CaseScraper performs the portal lookup. Each call yields captured cases
// or a CAPTCHA challenge.
type CaseScraper interface {
	SearchByOAB(ctx context.Context, req ScrapeRequest) (ScrapeResult, error)
	SubmitCaptcha(ctx context.Context, req CaptchaSubmission) (ScrapeResult, error)
}

// CourtDirectory lists the courts eligible for OAB lookup.
type CourtDirectory interface {
	Lookup(sigla string) (Court, bool)
	List() []Court
	Default() string
}

// LawyerDirectory resolves a user's lawyer profile. Missing profiles yield
// store.ErrNotFound.
type LawyerDirectory interface {
	FindByUser(ctx context.Context, tenantID, usuarioID string) (Lawyer, error)
}

// BlobStore persists raw artifacts.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher produces content hashes.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator provides sync identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
