package storage

// Schema holds the portable DDL shared by the SQL metadata stores. Timestamps
// are stored as TIMESTAMP and the paywall flag as BOOLEAN, which both SQLite
// and Postgres accept.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS raw_pages (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	content_type TEXT NOT NULL,
	http_status INTEGER NOT NULL,
	byte_size BIGINT NOT NULL,
	path TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS cleaned_pages (
	id TEXT PRIMARY KEY REFERENCES raw_pages(id),
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	lang TEXT NOT NULL,
	word_count INTEGER NOT NULL,
	is_paywalled BOOLEAN NOT NULL,
	fingerprint TEXT NOT NULL,
	summary TEXT NOT NULL,
	path TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS cleaned_pages_fingerprint_idx ON cleaned_pages (fingerprint)`,
	`CREATE TABLE IF NOT EXISTS scrape_runs (
	id TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	task_count INTEGER NOT NULL,
	ok_count INTEGER NOT NULL,
	failed_count INTEGER NOT NULL
)`,
}
