// Package cmd defines the CLI commands of the scraper executable.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/research-scraper/internal/config"
	"github.com/JakeFAU/research-scraper/internal/logging"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configFile string
}

// newRootCmd creates the root command and attaches subcommands.
func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "Fetch, extract and store a batch of research URLs.",
		Long: `scraper takes a batch of fetch tasks, downloads each URL politely,
extracts readable text, flags paywalled and duplicate content, and stores
raw and cleaned artifacts with a JSON report of the outcome.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newScrapeCmd(opts))
	return cmd
}

// loadRuntime reads configuration and builds the logger for a command.
func loadRuntime(opts *globalOptions) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "scraper: %v\n", err)
		return 1
	}
	return 0
}
