// Package worker runs the per-task state machine: fetch with retries, store
// the raw bytes, extract, classify, fingerprint and store the clean text.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/research-scraper/internal/extract"
	"github.com/JakeFAU/research-scraper/internal/fingerprint"
	"github.com/JakeFAU/research-scraper/internal/metrics"
	"github.com/JakeFAU/research-scraper/internal/paywall"
	"github.com/JakeFAU/research-scraper/internal/progress"
	"github.com/JakeFAU/research-scraper/internal/retry"
	"github.com/JakeFAU/research-scraper/internal/scraper"
)

// Extractor turns fetched bytes into clean text.
type Extractor interface {
	Extract(ctx context.Context, in extract.Input) (extract.Extracted, error)
}

// Classifier flags paywalled text.
type Classifier interface {
	Classify(text string, rawBytes int64) paywall.Verdict
}

// Deduper records content fingerprints for the run.
type Deduper interface {
	Observe(taskID, text string) fingerprint.Result
}

// Store persists raw and clean artifacts.
type Store interface {
	SaveRaw(ctx context.Context, task scraper.FetchTask, resp scraper.FetchResponse) (scraper.RawArtifact, error)
	SaveClean(ctx context.Context, task scraper.FetchTask, clean scraper.CleanArtifact, text string) (scraper.CleanArtifact, error)
}

// Source hands out queued tasks.
type Source interface {
	Dequeue(ctx context.Context) (scraper.FetchTask, error)
}

// Config controls Worker behavior.
type Config struct {
	RunID           string
	Retry           retry.Policy
	SummaryMaxChars int
	// Topic enables result notifications when non-empty.
	Topic string
}

// Deps are the collaborators a Worker drives. Limiter, Publisher, Events and
// Clock are optional.
type Deps struct {
	Fetcher   scraper.Fetcher
	Limiter   scraper.Limiter
	Extractor Extractor
	Paywall   Classifier
	Index     Deduper
	Store     Store
	Publisher scraper.Publisher
	Events    progress.Emitter
	Clock     scraper.Clock
}

// Worker processes tasks one at a time. A single Worker value may be shared
// by several goroutines; all mutable state lives in the collaborators.
type Worker struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New constructs a Worker.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Worker, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("worker: fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("worker: extractor is required")
	case deps.Paywall == nil:
		return nil, errors.New("worker: paywall classifier is required")
	case deps.Index == nil:
		return nil, errors.New("worker: fingerprint index is required")
	case deps.Store == nil:
		return nil, errors.New("worker: store is required")
	}
	if deps.Events == nil {
		deps.Events = progress.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = scraper.IsRetryable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{cfg: cfg, deps: deps, logger: logger.Named("worker")}, nil
}

// WithIndex returns a copy whose logs carry the worker slot number.
func (w *Worker) WithIndex(i int) *Worker {
	clone := *w
	clone.logger = w.logger.With(zap.Int("index", i))
	return &clone
}

// Run processes tasks from src until it is drained or ctx ends, sending one
// result per dequeued task to out.
func (w *Worker) Run(ctx context.Context, src Source, out chan<- scraper.TaskResult) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	for {
		task, err := src.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Debug("queue drained", zap.Error(err))
			}
			return
		}
		out <- w.Process(ctx, task)
	}
}

// taskRun is the mutable state of one Process call.
type taskRun struct {
	task   scraper.FetchTask
	site   string
	start  time.Time
	result scraper.TaskResult
	logger *zap.Logger
}

func (r *taskRun) note(format string, args ...any) {
	r.result.Notes = append(r.result.Notes, fmt.Sprintf(format, args...))
}

// Process drives one task to a terminal state. Failures never escape: every
// outcome is reported through the returned TaskResult.
func (w *Worker) Process(ctx context.Context, task scraper.FetchTask) scraper.TaskResult {
	run := &taskRun{
		task:  task,
		site:  metrics.SanitizeSite(task.URL),
		start: w.deps.Clock(),
		result: scraper.TaskResult{
			ID:          task.ID,
			URL:         task.URL,
			SubQuestion: task.SubQuestion,
		},
		logger: w.logger.With(zap.String("task_id", task.ID), zap.String("url", task.URL)),
	}
	if ctx.Err() != nil {
		run.note("canceled")
		return w.finish(ctx, run, scraper.StatusFetchSkipped)
	}

	w.emit(run, progress.StageFetching, nil)
	resp, err := w.fetch(ctx, run)
	if err != nil {
		return w.fetchFailed(ctx, run, err)
	}
	run.result.HTTPStatus = resp.StatusCode
	w.emit(run, progress.StageFetched, func(evt *progress.Event) {
		evt.Bytes = int64(len(resp.Body))
		evt.HTTPStatus = resp.StatusCode
		evt.Dur = resp.Duration
	})

	// Once bytes are in hand the task finishes its writes even if the batch
	// is canceled, so no artifact is left half recorded.
	storeCtx := context.WithoutCancel(ctx)
	raw, err := w.deps.Store.SaveRaw(storeCtx, task, resp)
	if err != nil {
		run.logger.Warn("raw artifact write failed", zap.Error(err))
		run.note("%v", err)
		return w.finish(ctx, run, scraper.StatusStorageError)
	}
	run.result.RawPath = raw.StoragePath
	if raw.Reused {
		run.note("raw artifact already stored, kept existing")
	}

	w.emit(run, progress.StageExtracting, nil)
	doc, err := w.deps.Extractor.Extract(ctx, extract.Input{
		URL:         finalURL(task, resp),
		ContentType: resp.ContentType,
		Body:        resp.Text(),
	})
	if err != nil {
		run.logger.Warn("extraction failed", zap.Error(err))
		run.note("%v", err)
		w.emit(run, progress.StageExtractFailed, func(evt *progress.Event) { evt.Note = err.Error() })
		return w.finish(ctx, run, scraper.StatusExtractionFailed)
	}
	run.result.Title = doc.Title
	run.result.Lang = doc.Language
	run.result.WordCount = doc.WordCount
	run.result.Summary = extract.Summarize(doc.Text, w.cfg.SummaryMaxChars)
	run.note("extracted with %s", doc.Strategy)
	w.emit(run, progress.StageExtracted, nil)

	w.emit(run, progress.StageClassifying, nil)
	verdict := w.deps.Paywall.Classify(doc.Text, int64(len(resp.Body)))
	if verdict.Paywalled {
		run.result.IsPaywalled = true
		run.note("paywall: %s", verdict.Reason)
	}
	fp := w.deps.Index.Observe(task.ID, doc.Text)
	run.result.Fingerprint = fp.Hash
	if fp.Duplicate {
		run.result.DuplicateOf = fp.FirstTaskID
		run.note("duplicate of %s", fp.FirstTaskID)
		metrics.ObserveDuplicate()
	}

	w.emit(run, progress.StageStoring, nil)
	clean, err := w.deps.Store.SaveClean(storeCtx, task, scraper.CleanArtifact{
		Title:       doc.Title,
		Language:    doc.Language,
		WordCount:   doc.WordCount,
		IsPaywalled: verdict.Paywalled,
		Fingerprint: fp.Hash,
		Summary:     run.result.Summary,
	}, doc.Text)
	if err != nil {
		run.logger.Warn("clean artifact write failed", zap.Error(err))
		run.note("%v", err)
		return w.finish(ctx, run, scraper.StatusStorageError)
	}
	run.result.CleanPath = clean.StoragePath
	if clean.Reused {
		run.note("clean artifact already stored, kept existing")
	}

	if verdict.Paywalled {
		return w.finish(ctx, run, scraper.StatusPaywalledPartial)
	}
	return w.finish(ctx, run, scraper.StatusOK)
}

// fetch waits for a politeness slot and performs one GET per attempt.
func (w *Worker) fetch(ctx context.Context, run *taskRun) (scraper.FetchResponse, error) {
	op := func(ctx context.Context, _ int) (scraper.FetchResponse, error) {
		if w.deps.Limiter != nil {
			if err := w.deps.Limiter.Wait(ctx, run.task.URL); err != nil {
				return scraper.FetchResponse{}, err
			}
		}
		return w.deps.Fetcher.Fetch(ctx, run.task.URL)
	}
	observe := func(a retry.Attempt) {
		outcome := scraper.OutcomeFor(a.Err)
		metrics.ObserveFetchAttempt(run.site, string(outcome), 0)
		if a.Err != nil {
			run.note("attempt %d: %v", a.Number, a.Err)
		}
		run.logger.Debug("fetch attempt",
			zap.Int("attempt", a.Number),
			zap.String("outcome", string(outcome)),
			zap.Duration("elapsed", a.Elapsed),
		)
	}
	resp, attempts, err := retry.Do(ctx, w.cfg.Retry, op, observe)
	run.result.Attempts = attempts
	if err != nil {
		return scraper.FetchResponse{}, err
	}
	metrics.ObserveFetchAttempt(run.site, string(scraper.OutcomeSuccess), len(resp.Body))
	return resp, nil
}

func (w *Worker) fetchFailed(ctx context.Context, run *taskRun, err error) scraper.TaskResult {
	var fe *scraper.FetchError
	if errors.As(err, &fe) && fe.Kind == scraper.KindHTTPError {
		run.result.HTTPStatus = fe.Status
	}
	if ctx.Err() != nil && fe == nil {
		run.note("canceled")
	}
	run.logger.Warn("fetch failed", zap.Int("attempts", run.result.Attempts), zap.Error(err))
	w.emit(run, progress.StageFetchFailed, func(evt *progress.Event) {
		evt.HTTPStatus = run.result.HTTPStatus
		evt.Note = err.Error()
	})
	return w.finish(ctx, run, scraper.StatusForFetchError(err))
}

// finish stamps the terminal status, records metrics and sends the
// notification. A failed notification is noted but does not change status.
func (w *Worker) finish(ctx context.Context, run *taskRun, status scraper.Status) scraper.TaskResult {
	run.result.Status = status
	elapsed := w.deps.Clock().Sub(run.start)
	metrics.ObserveTask(string(status), elapsed)

	if w.cfg.Topic != "" && w.deps.Publisher != nil {
		if _, err := w.deps.Publisher.Publish(context.WithoutCancel(ctx), w.cfg.Topic, run.result); err != nil {
			run.logger.Warn("publish result failed", zap.Error(err))
			run.note("publish failed: %v", err)
		}
	}

	w.emit(run, progress.StageDone, func(evt *progress.Event) {
		evt.Status = status
		evt.HTTPStatus = run.result.HTTPStatus
		evt.Dur = elapsed
	})
	run.logger.Debug("task finished",
		zap.String("status", string(status)),
		zap.Int("attempts", run.result.Attempts),
		zap.Duration("elapsed", elapsed),
	)
	return run.result
}

func (w *Worker) emit(run *taskRun, stage progress.Stage, fill func(*progress.Event)) {
	evt := progress.Event{
		RunID:  w.cfg.RunID,
		TaskID: run.task.ID,
		Stage:  stage,
		Site:   run.site,
		URL:    run.task.URL,
		TS:     w.deps.Clock(),
	}
	if fill != nil {
		fill(&evt)
	}
	w.deps.Events.Emit(evt)
}

func finalURL(task scraper.FetchTask, resp scraper.FetchResponse) string {
	if resp.FinalURL != "" {
		return resp.FinalURL
	}
	return task.URL
}
