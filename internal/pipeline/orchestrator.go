package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/research-scraper/internal/dispatcher"
	"github.com/JakeFAU/research-scraper/internal/fingerprint"
	"github.com/JakeFAU/research-scraper/internal/progress"
	"github.com/JakeFAU/research-scraper/internal/retry"
	"github.com/JakeFAU/research-scraper/internal/scraper"
	"github.com/JakeFAU/research-scraper/internal/worker"
)

// Store is the persistence surface a batch needs.
type Store interface {
	worker.Store
	KnownFingerprints(ctx context.Context) (map[string]string, error)
	RecordRun(ctx context.Context, run scraper.RunRecord) error
}

// Config is the immutable per-orchestrator configuration.
type Config struct {
	Concurrency     int
	QueueDepth      int
	Retry           retry.Policy
	SummaryMaxChars int
	// Topic enables result notifications when non-empty.
	Topic string
	// SeedDedup preloads fingerprints from earlier runs.
	SeedDedup bool
}

// Deps are the collaborators shared by every batch. Limiter, Publisher,
// Events and Clock are optional.
type Deps struct {
	Fetcher   scraper.Fetcher
	Limiter   scraper.Limiter
	Extractor worker.Extractor
	Paywall   worker.Classifier
	Store     Store
	Publisher scraper.Publisher
	Events    progress.Emitter
	Clock     scraper.Clock
}

// Orchestrator runs batches.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New constructs an Orchestrator.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Events == nil {
		deps.Events = progress.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger}, nil
}

// Run processes every task and returns the report. It errors only when the
// batch cannot start; per-task failures are reported in the results.
func (o *Orchestrator) Run(ctx context.Context, tasks []scraper.FetchTask) (Report, error) {
	if err := ValidateTasks(tasks); err != nil {
		return Report{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Report{}, fmt.Errorf("generate run id: %w", err)
	}
	runID := id.String()
	logger := o.logger.With(zap.String("run_id", runID))

	index := fingerprint.NewIndex()
	if o.cfg.SeedDedup {
		known, err := o.deps.Store.KnownFingerprints(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("seed fingerprints: %w", err)
		}
		for hash, taskID := range known {
			index.Seed(hash, taskID)
		}
		logger.Info("seeded fingerprint index", zap.Int("fingerprints", index.Len()))
	}

	w, err := worker.New(worker.Config{
		RunID:           runID,
		Retry:           o.cfg.Retry,
		SummaryMaxChars: o.cfg.SummaryMaxChars,
		Topic:           o.cfg.Topic,
	}, worker.Deps{
		Fetcher:   o.deps.Fetcher,
		Limiter:   o.deps.Limiter,
		Extractor: o.deps.Extractor,
		Paywall:   o.deps.Paywall,
		Index:     index,
		Store:     o.deps.Store,
		Publisher: o.deps.Publisher,
		Events:    o.deps.Events,
		Clock:     o.deps.Clock,
	}, logger)
	if err != nil {
		return Report{}, fmt.Errorf("build worker: %w", err)
	}
	d := dispatcher.New(dispatcher.Config{
		Concurrency: o.cfg.Concurrency,
		QueueDepth:  o.cfg.QueueDepth,
	}, func(i int) dispatcher.Runner { return w.WithIndex(i) }, logger)

	started := o.deps.Clock()
	for _, task := range tasks {
		o.deps.Events.Emit(progress.Event{
			RunID:  runID,
			TaskID: task.ID,
			Stage:  progress.StagePending,
			URL:    task.URL,
			TS:     started,
		})
	}
	logger.Info("batch started", zap.Int("tasks", len(tasks)), zap.Int("concurrency", o.cfg.Concurrency))

	results := d.Run(ctx, tasks)

	report := Report{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: o.deps.Clock(),
		Summary:    Summarize(results),
		Results:    results,
	}
	run := scraper.RunRecord{
		RunID:      runID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		TaskCount:  report.Summary.Total,
		OKCount:    report.Summary.Succeeded(),
		FailCount:  report.Summary.Total - report.Summary.Succeeded(),
	}
	if err := o.deps.Store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("record run failed", zap.Error(err))
	}

	fields := []zap.Field{
		zap.Int("tasks", report.Summary.Total),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
		zap.Int("duplicate_groups", len(report.Summary.DuplicateGroups)),
	}
	for _, status := range report.Summary.Statuses() {
		fields = append(fields, zap.Int(string(status), report.Summary.ByStatus[status]))
	}
	if ctx.Err() != nil {
		fields = append(fields, zap.NamedError("cancel", ctx.Err()))
	}
	logger.Info("batch finished", fields...)
	return report, nil
}
