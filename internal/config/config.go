// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every tunable of a batch run. It is loaded once and passed
// by value; nothing reads configuration globally.
type Config struct {
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Paywall   PaywallConfig   `mapstructure:"paywall"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// FetchConfig controls the single-GET fetch client.
type FetchConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxBytes      int64         `mapstructure:"max_bytes"`
	RespectRobots bool          `mapstructure:"respect_robots"`
}

// RetryConfig bounds fetch retries.
type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// SchedulerConfig sizes the worker pool and politeness spacing.
type SchedulerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	QueueDepth   int           `mapstructure:"queue_depth"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	PerHostRPS   float64       `mapstructure:"per_host_rps"`
	PerHostBurst int           `mapstructure:"per_host_burst"`
}

// ExtractConfig is the acceptance check for extracted text.
type ExtractConfig struct {
	MinChars      int `mapstructure:"min_chars"`
	MinParagraphs int `mapstructure:"min_paragraphs"`
}

// PaywallConfig tunes the short-text heuristic.
type PaywallConfig struct {
	MinWords           int   `mapstructure:"min_words"`
	LargeResponseBytes int64 `mapstructure:"large_response_bytes"`
}

// SummaryConfig bounds the report excerpt.
type SummaryConfig struct {
	MaxChars int `mapstructure:"max_chars"`
}

// StorageConfig selects the artifact backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// MetadataConfig selects the relational metadata store.
type MetadataConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	// SeedDedup preloads fingerprints recorded by earlier runs.
	SeedDedup bool `mapstructure:"seed_dedup"`
}

// PubSubConfig holds result notification settings.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the ops HTTP server.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Storage and metadata backend names.
const (
	BackendLocal   = "local"
	BackendGCS     = "gcs"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load builds a Config from defaults, an optional file and SCRAPER_*
// environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Every key gets a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.user_agent", "AutonomousResearchAgent/1.0 (+https://example.org)")
	v.SetDefault("fetch.timeout", 20*time.Second)
	v.SetDefault("fetch.max_bytes", 10*1024*1024)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.initial_interval", 500*time.Millisecond)
	v.SetDefault("retry.max_interval", 5*time.Second)
	v.SetDefault("scheduler.concurrency", 5)
	v.SetDefault("scheduler.queue_depth", 64)
	v.SetDefault("scheduler.request_delay", 500*time.Millisecond)
	v.SetDefault("scheduler.per_host_rps", 0)
	v.SetDefault("scheduler.per_host_burst", 1)
	v.SetDefault("extract.min_chars", 100)
	v.SetDefault("extract.min_paragraphs", 1)
	v.SetDefault("paywall.min_words", 150)
	v.SetDefault("paywall.large_response_bytes", 50000)
	v.SetDefault("summary.max_chars", 400)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("metadata.driver", DriverSQLite)
	v.SetDefault("metadata.dsn", "")
	v.SetDefault("metadata.max_conns", 4)
	v.SetDefault("metadata.seed_dedup", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Scheduler.Concurrency <= 0 {
		errs = append(errs, errors.New("scheduler.concurrency must be > 0"))
	}
	if c.Scheduler.QueueDepth < 0 {
		errs = append(errs, errors.New("scheduler.queue_depth must be >= 0"))
	}
	if c.Scheduler.RequestDelay < 0 || c.Scheduler.PerHostRPS < 0 {
		errs = append(errs, errors.New("scheduler spacing must not be negative"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be > 0"))
	}
	if c.Fetch.MaxBytes <= 0 {
		errs = append(errs, errors.New("fetch.max_bytes must be > 0"))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.max_retries must be >= 0"))
	}
	switch c.Storage.Backend {
	case BackendLocal:
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	switch c.Metadata.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Metadata.DSN == "" {
			errs = append(errs, errors.New("metadata.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown metadata.driver %q", c.Metadata.Driver))
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id is required when pubsub.topic_name is set"))
	}
	return errors.Join(errs...)
}

// NotificationsEnabled reports whether results are published.
func (c Config) NotificationsEnabled() bool {
	return c.PubSub.TopicName != ""
}
