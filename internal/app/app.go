// Package app builds the long-lived services of a batch run from
// configuration and tears them down afterwards.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	gcsstorage "cloud.google.com/go/storage"
	pubsubv2 "cloud.google.com/go/pubsub/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/research-scraper/internal/config"
	"github.com/JakeFAU/research-scraper/internal/extract"
	collyfetcher "github.com/JakeFAU/research-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/research-scraper/internal/paywall"
	"github.com/JakeFAU/research-scraper/internal/pipeline"
	"github.com/JakeFAU/research-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/research-scraper/internal/progress"
	"github.com/JakeFAU/research-scraper/internal/progress/sinks"
	"github.com/JakeFAU/research-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/research-scraper/internal/retry"
	"github.com/JakeFAU/research-scraper/internal/scraper"
	"github.com/JakeFAU/research-scraper/internal/storage"
	"github.com/JakeFAU/research-scraper/internal/storage/gcs"
	"github.com/JakeFAU/research-scraper/internal/storage/local"
	"github.com/JakeFAU/research-scraper/internal/storage/postgres"
	"github.com/JakeFAU/research-scraper/internal/storage/sqlite"
)

// DefaultDatabaseName is the SQLite file created under the output root.
const DefaultDatabaseName = "scraper.db"

// Options tweak construction, mostly for tests.
type Options struct {
	// Registerer receives the progress collectors. Nil means the default registry.
	Registerer prometheus.Registerer
}

// App holds the services shared by every task of a run.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	meta      storage.MetadataStore
	layer     *storage.Layer
	publisher scraper.Publisher
	hub       *progress.Hub
	closers   []func() error
}

// New initialises storage, notifications and progress reporting. It fails
// fast and releases anything already opened when a service cannot start.
func New(ctx context.Context, cfg config.Config, outdir string, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.closeAll()
		}
	}()

	artifacts, err := a.openArtifacts(ctx, outdir)
	if err != nil {
		return nil, err
	}
	if err := a.openMetadata(ctx, outdir); err != nil {
		return nil, err
	}
	a.layer, err = storage.NewLayer(artifacts, a.meta, logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("build storage layer: %w", err)
	}
	if err := a.openPublisher(ctx); err != nil {
		return nil, err
	}

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("progress sink: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)

	logger.Info("services initialised",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("metadata", cfg.Metadata.Driver),
		zap.Bool("notifications", cfg.NotificationsEnabled()),
	)
	return a, nil
}

func (a *App) openArtifacts(ctx context.Context, outdir string) (storage.ArtifactStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs artifact store: %w", err)
		}
		return store, nil
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: filepath.Join(outdir, a.cfg.Storage.Prefix)})
		if err != nil {
			return nil, fmt.Errorf("init local artifact store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
}

func (a *App) openMetadata(ctx context.Context, outdir string) error {
	switch a.cfg.Metadata.Driver {
	case config.DriverPostgres:
		store, err := postgres.New(ctx, postgres.Config{DSN: a.cfg.Metadata.DSN, MaxConns: a.cfg.Metadata.MaxConns})
		if err != nil {
			return fmt.Errorf("init postgres metadata store: %w", err)
		}
		a.meta = store
	case config.DriverSQLite:
		path := a.cfg.Metadata.DSN
		if path == "" {
			path = filepath.Join(outdir, DefaultDatabaseName)
		}
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return fmt.Errorf("init sqlite metadata store: %w", err)
		}
		a.meta = store
	default:
		return fmt.Errorf("unknown metadata driver: %s", a.cfg.Metadata.Driver)
	}
	a.closers = append(a.closers, a.meta.Close)
	if err := a.meta.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate metadata store: %w", err)
	}
	return nil
}

func (a *App) openPublisher(ctx context.Context) error {
	if !a.cfg.NotificationsEnabled() {
		return nil
	}
	client, err := pubsubv2.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsub.New(client)
	a.closers = append(a.closers, client.Close, func() error {
		pub.Close()
		return nil
	})
	a.publisher = pub
	return nil
}

// Orchestrator wires a pipeline from the configuration and the opened
// services.
func (a *App) Orchestrator() (*pipeline.Orchestrator, error) {
	cfg := a.cfg
	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.Retry.MaxRetries
	policy.InitialInterval = cfg.Retry.InitialInterval
	policy.MaxInterval = cfg.Retry.MaxInterval

	o, err := pipeline.New(pipeline.Config{
		Concurrency:     cfg.Scheduler.Concurrency,
		QueueDepth:      cfg.Scheduler.QueueDepth,
		Retry:           policy,
		SummaryMaxChars: cfg.Summary.MaxChars,
		Topic:           cfg.PubSub.TopicName,
		SeedDedup:       cfg.Metadata.SeedDedup,
	}, pipeline.Deps{
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Fetch.UserAgent,
			RespectRobots: cfg.Fetch.RespectRobots,
			Timeout:       cfg.Fetch.Timeout,
			MaxBytes:      cfg.Fetch.MaxBytes,
		}),
		Limiter: ratelimit.New(ratelimit.Config{
			RequestDelay: cfg.Scheduler.RequestDelay,
			PerHostRPS:   cfg.Scheduler.PerHostRPS,
			PerHostBurst: cfg.Scheduler.PerHostBurst,
		}),
		Extractor: extract.New(extract.Config{
			MinChars:      cfg.Extract.MinChars,
			MinParagraphs: cfg.Extract.MinParagraphs,
		}, a.logger.Named("extract")),
		Paywall: paywall.New(paywall.Config{
			MinWords:           cfg.Paywall.MinWords,
			LargeResponseBytes: cfg.Paywall.LargeResponseBytes,
		}),
		Store:     a.layer,
		Publisher: a.publisher,
		Events:    a.hub,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return o, nil
}

// Close flushes progress events and releases every service, newest first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		a.logger.Warn("service shutdown reported errors", zap.Error(errors.Join(errs...)))
	}
	return errors.Join(errs...)
}
