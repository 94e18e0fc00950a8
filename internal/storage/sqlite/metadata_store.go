// Package sqlite implements the metadata store on an embedded SQLite file.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/research-scraper/internal/scraper"
	"github.com/JakeFAU/research-scraper/internal/storage"
)

const (
	insertRawPageSQL = `INSERT INTO raw_pages (id, url, fetched_at, content_type, http_status, byte_size, path)
VALUES (:id, :url, :fetched_at, :content_type, :http_status, :byte_size, :path)
ON CONFLICT(id) DO NOTHING`

	insertCleanedPageSQL = `INSERT INTO cleaned_pages (id, url, title, lang, word_count, is_paywalled, fingerprint, summary, path, created_at)
VALUES (:id, :url, :title, :lang, :word_count, :is_paywalled, :fingerprint, :summary, :path, :created_at)
ON CONFLICT(id) DO NOTHING`

	insertRunSQL = `INSERT INTO scrape_runs (id, started_at, finished_at, task_count, ok_count, failed_count)
VALUES (:id, :started_at, :finished_at, :task_count, :ok_count, :failed_count)`

	selectFingerprintsSQL = `SELECT fingerprint, id FROM cleaned_pages WHERE fingerprint <> '' ORDER BY created_at, id`
)

// MetadataStore writes raw_pages and cleaned_pages rows through sqlx.
type MetadataStore struct {
	DB *sqlx.DB
}

// Open connects to the SQLite database at path, creating the file if needed.
// A single connection serialises every write.
func Open(ctx context.Context, path string) (*MetadataStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return &MetadataStore{DB: db}, nil
}

// Migrate creates the tables when missing.
func (s *MetadataStore) Migrate(ctx context.Context) error {
	for _, stmt := range storage.Schema {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// InsertRawPage appends a raw_pages row unless the task already has one.
func (s *MetadataStore) InsertRawPage(ctx context.Context, page scraper.RawArtifact) error {
	if _, err := s.DB.NamedExecContext(ctx, insertRawPageSQL, page); err != nil {
		return fmt.Errorf("failed to insert raw page %s: %w", page.TaskID, err)
	}
	return nil
}

// InsertCleanedPage appends a cleaned_pages row unless the task already has one.
func (s *MetadataStore) InsertCleanedPage(ctx context.Context, page scraper.CleanArtifact) error {
	if _, err := s.DB.NamedExecContext(ctx, insertCleanedPageSQL, page); err != nil {
		return fmt.Errorf("failed to insert cleaned page %s: %w", page.TaskID, err)
	}
	return nil
}

// InsertRun appends a scrape_runs row.
func (s *MetadataStore) InsertRun(ctx context.Context, run scraper.RunRecord) error {
	if _, err := s.DB.NamedExecContext(ctx, insertRunSQL, run); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}
	return nil
}

// Fingerprints loads every stored fingerprint with the earliest task id that produced it.
func (s *MetadataStore) Fingerprints(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Fingerprint string `db:"fingerprint"`
		ID          string `db:"id"`
	}
	if err := s.DB.SelectContext(ctx, &rows, selectFingerprintsSQL); err != nil {
		return nil, fmt.Errorf("failed to load fingerprints: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		if _, seen := out[row.Fingerprint]; !seen {
			out[row.Fingerprint] = row.ID
		}
	}
	return out, nil
}

// Close releases the database handle.
func (s *MetadataStore) Close() error {
	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("failed to close sqlite: %w", err)
	}
	return nil
}
