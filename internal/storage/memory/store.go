// Package memory keeps artifacts and metadata rows in process memory. It backs
// dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/research-scraper/internal/scraper"
)

// ArtifactStore stores artifacts in-memory and returns pseudo URIs.
type ArtifactStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewArtifactStore creates an empty in-memory artifact store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{data: make(map[string][]byte)}
}

// Put records the content and returns a memory:// URI. Existing paths are refused.
func (s *ArtifactStore) Put(_ context.Context, relPath string, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[relPath]; exists {
		return "memory://" + relPath, fmt.Errorf("%s: %w", relPath, scraper.ErrArtifactExists)
	}
	s.data[relPath] = append([]byte(nil), data...)
	return "memory://" + relPath, nil
}

// Get returns a copy of a stored artifact.
func (s *ArtifactStore) Get(relPath string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[relPath]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Len reports how many artifacts are stored.
func (s *ArtifactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// MetadataStore keeps rows keyed by task id.
type MetadataStore struct {
	mu      sync.RWMutex
	raw     map[string]scraper.RawArtifact
	cleaned map[string]scraper.CleanArtifact
	order   []string
	runs    []scraper.RunRecord
}

// NewMetadataStore creates an empty in-memory metadata store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{
		raw:     make(map[string]scraper.RawArtifact),
		cleaned: make(map[string]scraper.CleanArtifact),
	}
}

// Migrate is a no-op.
func (s *MetadataStore) Migrate(context.Context) error { return nil }

// InsertRawPage appends a raw row; a second row for the same task is ignored.
func (s *MetadataStore) InsertRawPage(_ context.Context, page scraper.RawArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.raw[page.TaskID]; exists {
		return nil
	}
	s.raw[page.TaskID] = page
	return nil
}

// InsertCleanedPage appends a cleaned row; a second row for the same task is ignored.
func (s *MetadataStore) InsertCleanedPage(_ context.Context, page scraper.CleanArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cleaned[page.TaskID]; exists {
		return nil
	}
	s.cleaned[page.TaskID] = page
	s.order = append(s.order, page.TaskID)
	return nil
}

// InsertRun appends a run row.
func (s *MetadataStore) InsertRun(_ context.Context, run scraper.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// Fingerprints returns fingerprints in insertion order, first task wins.
func (s *MetadataStore) Fingerprints(context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string)
	for _, id := range s.order {
		fp := s.cleaned[id].Fingerprint
		if _, seen := out[fp]; fp != "" && !seen {
			out[fp] = id
		}
	}
	return out, nil
}

// Close is a no-op.
func (s *MetadataStore) Close() error { return nil }

// RawPage returns the raw row for a task.
func (s *MetadataStore) RawPage(taskID string) (scraper.RawArtifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.raw[taskID]
	return page, ok
}

// CleanedPage returns the cleaned row for a task.
func (s *MetadataStore) CleanedPage(taskID string) (scraper.CleanArtifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.cleaned[taskID]
	return page, ok
}

// Runs returns the recorded runs.
func (s *MetadataStore) Runs() []scraper.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]scraper.RunRecord(nil), s.runs...)
}
