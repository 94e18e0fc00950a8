// Package storage composes the artifact file store and the metadata store
// into the per-task persistence steps used by workers.
package storage

import (
	"context"

	"github.com/JakeFAU/research-scraper/internal/scraper"
)

// ArtifactStore writes immutable artifact files and returns their location.
// Implementations must refuse to overwrite an existing artifact.
type ArtifactStore interface {
	Put(ctx context.Context, relPath string, contentType string, data []byte) (string, error)
}

// MetadataStore appends fetch and extraction facts. Rows are never updated;
// inserting a row for a task that already has one is a no-op, so a batch can
// be re-run into the same output root.
type MetadataStore interface {
	Migrate(ctx context.Context) error
	InsertRawPage(ctx context.Context, page scraper.RawArtifact) error
	InsertCleanedPage(ctx context.Context, page scraper.CleanArtifact) error
	InsertRun(ctx context.Context, run scraper.RunRecord) error
	// Fingerprints returns every recorded fingerprint mapped to the first task id that produced it.
	Fingerprints(ctx context.Context) (map[string]string, error)
	Close() error
}
