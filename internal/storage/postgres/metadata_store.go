// Package postgres provides the Postgres-backed metadata store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/research-scraper/internal/scraper"
	"github.com/JakeFAU/research-scraper/internal/storage"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// MetadataStore writes metadata rows into Postgres.
type MetadataStore struct {
	pool pool
}

// New creates a pooled MetadataStore from cfg.
func New(ctx context.Context, cfg Config) (*MetadataStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("metadata.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &MetadataStore{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*MetadataStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &MetadataStore{pool: p}, nil
}

// Migrate creates the tables when missing.
func (s *MetadataStore) Migrate(ctx context.Context) error {
	for _, stmt := range storage.Schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// InsertRawPage appends a raw_pages row unless the task already has one.
func (s *MetadataStore) InsertRawPage(ctx context.Context, page scraper.RawArtifact) error {
	const query = `
INSERT INTO raw_pages (
	id,
	url,
	fetched_at,
	content_type,
	http_status,
	byte_size,
	path
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query,
		page.TaskID,
		page.URL,
		page.FetchedAt,
		page.ContentType,
		page.HTTPStatus,
		page.ByteSize,
		page.StoragePath,
	); err != nil {
		return fmt.Errorf("insert raw page: %w", err)
	}
	return nil
}

// InsertCleanedPage appends a cleaned_pages row unless the task already has one.
func (s *MetadataStore) InsertCleanedPage(ctx context.Context, page scraper.CleanArtifact) error {
	const query = `
INSERT INTO cleaned_pages (
	id,
	url,
	title,
	lang,
	word_count,
	is_paywalled,
	fingerprint,
	summary,
	path,
	created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query,
		page.TaskID,
		page.URL,
		page.Title,
		page.Language,
		page.WordCount,
		page.IsPaywalled,
		page.Fingerprint,
		page.Summary,
		page.StoragePath,
		page.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert cleaned page: %w", err)
	}
	return nil
}

// InsertRun appends a scrape_runs row.
func (s *MetadataStore) InsertRun(ctx context.Context, run scraper.RunRecord) error {
	const query = `
INSERT INTO scrape_runs (id, started_at, finished_at, task_count, ok_count, failed_count)
VALUES ($1,$2,$3,$4,$5,$6)`

	if _, err := s.pool.Exec(ctx, query,
		run.RunID, run.StartedAt, run.FinishedAt, run.TaskCount, run.OKCount, run.FailCount,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Fingerprints loads every stored fingerprint with the earliest task id that produced it.
func (s *MetadataStore) Fingerprints(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fingerprint, id FROM cleaned_pages WHERE fingerprint <> '' ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var fingerprint, id string
		if err := rows.Scan(&fingerprint, &id); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		if _, seen := out[fingerprint]; !seen {
			out[fingerprint] = id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fingerprints: %w", err)
	}
	return out, nil
}

// Close releases the underlying pool resources.
func (s *MetadataStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
