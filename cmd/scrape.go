package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/research-scraper/internal/api"
	"github.com/JakeFAU/research-scraper/internal/app"
	"github.com/JakeFAU/research-scraper/internal/pipeline"
)

type scrapeOptions struct {
	input  string
	outdir string
}

func newScrapeCmd(global *globalOptions) *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one batch of fetch tasks",
		Long: `Reads a JSON array of {"id", "url"} tasks, processes every task and
writes scrape_results.json plus raw/ and clean/ artifacts under --outdir.
Per-task failures are reported in the results; only setup errors fail the
command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, global, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "path to the task list (JSON)")
	cmd.Flags().StringVarP(&opts.outdir, "outdir", "o", "data", "output root for artifacts and the report")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runScrape(cmd *cobra.Command, global *globalOptions, opts *scrapeOptions) (err error) {
	cfg, logger, err := loadRuntime(global)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	f, err := os.Open(opts.input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	tasks, err := pipeline.LoadTasks(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	if err := pipeline.ValidateTasks(tasks); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, opts.outdir, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("initialise services: %w", err)
	}
	defer func() {
		if cerr := services.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("close services", zap.Error(cerr))
		}
	}()

	orchestrator, err := services.Orchestrator()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	batchCtx, batchDone := context.WithCancel(gctx)
	defer batchDone()

	if cfg.Metrics.Addr != "" {
		ops := api.NewServer(logger)
		ops.SetReady(true)
		g.Go(func() error {
			return ops.ListenAndServe(batchCtx, cfg.Metrics.Addr)
		})
	}

	var report pipeline.Report
	g.Go(func() error {
		defer batchDone()
		var runErr error
		report, runErr = orchestrator.Run(batchCtx, tasks)
		return runErr
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if report.RunID == "" {
		return errors.New("batch interrupted before it started")
	}

	reportPath := filepath.Join(opts.outdir, pipeline.ReportFileName)
	if err := pipeline.WriteReport(reportPath, report); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d tasks, report at %s\n", report.RunID, report.Summary.Total, reportPath)
	for _, status := range report.Summary.Statuses() {
		fmt.Fprintf(out, "  %-18s %d\n", status, report.Summary.ByStatus[status])
	}
	return nil
}
