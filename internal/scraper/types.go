package scraper

import "time"

// Status is the terminal outcome reported for a task.
type Status string

// Task status values surfaced in the result report.
const (
	StatusOK               Status = "ok"
	StatusHTTPError        Status = "http_error"
	StatusTimeout          Status = "timeout"
	StatusExtractionFailed Status = "extraction_failed"
	StatusPaywalledPartial Status = "paywalled_partial"
	StatusFetchSkipped     Status = "fetch_skipped"
	StatusStorageError     Status = "storage_error"
)

// Stored reports whether the status implies a persisted clean artifact.
func (s Status) Stored() bool {
	return s == StatusOK || s == StatusPaywalledPartial
}

// FetchTask is one URL handed to the pipeline by the upstream stages.
type FetchTask struct {
	ID          string         `json:"id"`
	URL         string         `json:"url"`
	SubQuestion string         `json:"sub_question"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// AttemptOutcome classifies a single fetch attempt.
type AttemptOutcome string

// Attempt outcomes recorded for diagnostics.
const (
	OutcomeSuccess      AttemptOutcome = "success"
	OutcomeTimeout      AttemptOutcome = "timeout"
	OutcomeHTTPError    AttemptOutcome = "http_error"
	OutcomeSizeExceeded AttemptOutcome = "size_exceeded"
	OutcomeNetworkError AttemptOutcome = "network_error"
)

// FetchAttempt is transient per-retry state. It is never persisted.
type FetchAttempt struct {
	TaskID  string
	Number  int
	Outcome AttemptOutcome
	Elapsed time.Duration
	Err     error
}

// FetchResponse is what the fetch client hands back on success.
type FetchResponse struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	// Body holds the bytes exactly as the server sent them.
	Body []byte
	// Decoded is Body re-encoded to UTF-8 when the server declared another
	// charset. Nil when it would equal Body.
	Decoded  []byte
	Duration time.Duration
}

// Text returns the bytes to extract from.
func (r FetchResponse) Text() []byte {
	if r.Decoded != nil {
		return r.Decoded
	}
	return r.Body
}

// RawArtifact records the facts of a successful fetch.
type RawArtifact struct {
	TaskID      string    `db:"id"`
	URL         string    `db:"url"`
	FetchedAt   time.Time `db:"fetched_at"`
	ContentType string    `db:"content_type"`
	HTTPStatus  int       `db:"http_status"`
	ByteSize    int64     `db:"byte_size"`
	StoragePath string    `db:"path"`
	// Reused is set when an earlier run already stored this artifact.
	Reused bool `db:"-"`
}

// CleanArtifact records the facts of a successful extraction.
type CleanArtifact struct {
	TaskID      string    `db:"id"`
	URL         string    `db:"url"`
	Title       string    `db:"title"`
	Language    string    `db:"lang"`
	WordCount   int       `db:"word_count"`
	IsPaywalled bool      `db:"is_paywalled"`
	Fingerprint string    `db:"fingerprint"`
	Summary     string    `db:"summary"`
	StoragePath string    `db:"path"`
	CreatedAt   time.Time `db:"created_at"`
	// Reused is set when an earlier run already stored this artifact.
	Reused bool `db:"-"`
}

// TaskResult is the per-task line of the batch report. Exactly one is
// produced for every input task.
type TaskResult struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	SubQuestion string   `json:"sub_question,omitempty"`
	Status      Status   `json:"status"`
	HTTPStatus  int      `json:"http_status,omitempty"`
	Attempts    int      `json:"attempts"`
	RawPath     string   `json:"raw_path,omitempty"`
	CleanPath   string   `json:"clean_path,omitempty"`
	Title       string   `json:"title,omitempty"`
	Lang        string   `json:"lang,omitempty"`
	WordCount   int      `json:"word_count,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	IsPaywalled bool     `json:"is_paywalled"`
	DuplicateOf string   `json:"duplicate_of,omitempty"`
	Notes       []string `json:"notes,omitempty"`
}

// RunRecord summarises one batch in the metadata store.
type RunRecord struct {
	RunID      string    `db:"id"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
	TaskCount  int       `db:"task_count"`
	OKCount    int       `db:"ok_count"`
	FailCount  int       `db:"failed_count"`
}
