package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/research-scraper/internal/scraper"
)

// Layer persists artifacts first and their metadata rows second.
type Layer struct {
	artifacts ArtifactStore
	meta      MetadataStore
	clock     scraper.Clock
	logger    *zap.Logger
}

// Option customises a Layer.
type Option func(*Layer)

// WithClock overrides the timestamp source.
func WithClock(clock scraper.Clock) Option {
	return func(l *Layer) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewLayer builds a storage Layer.
func NewLayer(artifacts ArtifactStore, meta MetadataStore, logger *zap.Logger, opts ...Option) (*Layer, error) {
	if artifacts == nil {
		return nil, errors.New("artifact store is required")
	}
	if meta == nil {
		return nil, errors.New("metadata store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Layer{
		artifacts: artifacts,
		meta:      meta,
		clock:     func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// SaveRaw writes the fetched bytes and appends the raw_pages row.
func (l *Layer) SaveRaw(ctx context.Context, task scraper.FetchTask, resp scraper.FetchResponse) (scraper.RawArtifact, error) {
	rel := RawPath(task.URL, task.ID, resp.ContentType)
	location, reused, err := l.put(ctx, task, rel, resp.ContentType, resp.Body)
	if err != nil {
		return scraper.RawArtifact{}, fmt.Errorf("%w: write raw artifact: %w", scraper.ErrStorage, err)
	}
	raw := scraper.RawArtifact{
		Reused:      reused,
		TaskID:      task.ID,
		URL:         task.URL,
		FetchedAt:   l.clock(),
		ContentType: resp.ContentType,
		HTTPStatus:  resp.StatusCode,
		ByteSize:    int64(len(resp.Body)),
		StoragePath: location,
	}
	if err := l.meta.InsertRawPage(ctx, raw); err != nil {
		return scraper.RawArtifact{}, fmt.Errorf("%w: record raw page: %w", scraper.ErrStorage, err)
	}
	l.logger.Debug("raw artifact stored",
		zap.String("task_id", task.ID),
		zap.String("path", location),
		zap.Int64("bytes", raw.ByteSize),
	)
	return raw, nil
}

// SaveClean writes the cleaned text and appends the cleaned_pages row.
// The StoragePath and CreatedAt of clean are filled in.
func (l *Layer) SaveClean(ctx context.Context, task scraper.FetchTask, clean scraper.CleanArtifact, text string) (scraper.CleanArtifact, error) {
	rel := CleanPath(task.URL, task.ID)
	location, reused, err := l.put(ctx, task, rel, "text/plain; charset=utf-8", []byte(text))
	if err != nil {
		return scraper.CleanArtifact{}, fmt.Errorf("%w: write clean artifact: %w", scraper.ErrStorage, err)
	}
	clean.Reused = reused
	clean.TaskID = task.ID
	clean.URL = task.URL
	clean.StoragePath = location
	clean.CreatedAt = l.clock()
	if err := l.meta.InsertCleanedPage(ctx, clean); err != nil {
		return scraper.CleanArtifact{}, fmt.Errorf("%w: record cleaned page: %w", scraper.ErrStorage, err)
	}
	l.logger.Debug("clean artifact stored",
		zap.String("task_id", task.ID),
		zap.String("path", location),
		zap.Int("words", clean.WordCount),
	)
	return clean, nil
}

// put writes one artifact. An artifact already stored at the same path by an
// earlier run of the task is kept as is and its location reused.
func (l *Layer) put(ctx context.Context, task scraper.FetchTask, rel, contentType string, data []byte) (string, bool, error) {
	location, err := l.artifacts.Put(ctx, rel, contentType, data)
	switch {
	case err == nil:
		return location, false, nil
	case errors.Is(err, scraper.ErrArtifactExists) && location != "":
		l.logger.Info("artifact already stored, keeping it",
			zap.String("task_id", task.ID),
			zap.String("path", location),
		)
		return location, true, nil
	default:
		return "", false, err
	}
}

// KnownFingerprints exposes previously recorded fingerprints for cross-run dedup.
func (l *Layer) KnownFingerprints(ctx context.Context) (map[string]string, error) {
	fps, err := l.meta.Fingerprints(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load fingerprints: %w", scraper.ErrStorage, err)
	}
	return fps, nil
}

// RecordRun appends the batch summary row.
func (l *Layer) RecordRun(ctx context.Context, run scraper.RunRecord) error {
	if err := l.meta.InsertRun(ctx, run); err != nil {
		return fmt.Errorf("%w: record run: %w", scraper.ErrStorage, err)
	}
	return nil
}
