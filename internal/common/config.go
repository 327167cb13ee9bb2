package common

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the pipeline's full configuration surface: where the
// catalog/blob stores live, how many workers each stage runs, and the
// policy knobs that bound a single sync-to-rename run.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Upstream    UpstreamConfig  `toml:"upstream"`
	Logging     LoggingConfig   `toml:"logging"`
	Crawl       CrawlConfig     `toml:"crawl"`
	Download    DownloadConfig  `toml:"download"`
	Extract     ExtractConfig   `toml:"extract"`
	Rename      RenameConfig    `toml:"rename"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Claude      ClaudeConfig    `toml:"claude"`
}

// StorageConfig locates the two durable stores: the SQLite catalog
// (tasks/nodes/files/sync_log/visualizations, plus the goqite queue tables
// sharing the same *sql.DB) and the Badger blob store (raw downloaded bytes).
type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
	Blob   BlobConfig   `toml:"blob"`
}

type SQLiteConfig struct {
	Path           string `toml:"path"`             // database file path
	ResetOnStartup bool   `toml:"reset_on_startup"` // dev-only: wipe catalog + queue tables on boot
	WALMode        bool   `toml:"wal"`              // PRAGMA journal_mode=WAL
	BusyTimeoutMS  int    `toml:"busy_timeout_ms"`
	CacheSizeMB    int    `toml:"cache_size_mb"`
	Environment    string `toml:"-"` // copied from Config.Environment, gates ResetOnStartup
}

type BlobConfig struct {
	Path           string `toml:"path"` // Badger database directory
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// UpstreamConfig locates the external, read-only seed catalog this run
// compares against to find new and changed sources.
type UpstreamConfig struct {
	Path string `toml:"path"` // path or DSN the upstream catalog adapter resolves
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05.000"
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// CrawlConfig bounds the BFS-and-prune stage.
type CrawlConfig struct {
	Workers       int    `toml:"workers"`         // crawl stage worker pool size
	MaxDepth      int    `toml:"max_depth"`       // bounded BFS depth from a seed
	RequestTimeout string `toml:"request_timeout"` // per-page fetch timeout, e.g. "30s"
	MaxPages      int    `toml:"max_pages"`       // hard cap on nodes discovered per seed
	UserAgent     string `toml:"user_agent"`
}

// DownloadConfig bounds the fetch-to-blob stage.
type DownloadConfig struct {
	Workers         int      `toml:"workers"`
	Enabled         bool     `toml:"enabled"` // false skips straight to completed with no file rows
	Timeout         string   `toml:"timeout"`
	MaxFileSizeMB   int      `toml:"max_file_size_mb"`
	AllowedExtensions []string `toml:"allowed_extensions"` // pdf, doc, docx, xls, xlsx
}

// ExtractConfig bounds the text-extraction stage.
type ExtractConfig struct {
	Workers int    `toml:"workers"`
	Timeout string `toml:"timeout"`
	MaxPages int   `toml:"max_pages"` // PDF page cap; extra pages truncated, not failed
}

// RenameConfig bounds the LLM naming stage.
type RenameConfig struct {
	Workers    int    `toml:"workers"`
	Enabled    bool   `toml:"enabled"` // false leaves files at extracted/completed-process without a canonical name
	Timeout    string `toml:"timeout"`
	MaxTextLen int    `toml:"max_text_len"` // extracted text is truncated to this before the LLM call
}

// PipelineConfig is the run-scoped policy that doesn't belong to a single
// stage: how SyncDetector selects tasks, and the fallback size of a stage's
// bounded in-flight semaphore.
type PipelineConfig struct {
	BatchSize      int    `toml:"batch_size"`      // tasks pulled per SyncDetector.Detect call
	IncludeFailed  bool   `toml:"include_failed"`  // requeue failed tasks for another attempt
	IncludeChanged bool   `toml:"include_changed"` // requeue tasks whose upstream source changed
	KindFilter     string `toml:"kind_filter"`     // "", "undergraduate", or "graduate"
	QueueCapacity  int    `toml:"queue_capacity"`  // in-flight semaphore size for a stage whose worker count is <= 0 (otherwise 2x workers)
	PollSchedule   string `toml:"poll_schedule"`   // robfig/cron expression/descriptor for the SyncDetector poll, e.g. "@every 30s"
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	RateLimit   float64 `toml:"rate_limit"` // requests per second
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// NewDefaultConfig returns the baseline configuration; callers layer TOML
// files and environment overrides on top via LoadFromFiles.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/nyushi.db",
				WALMode:       true,
				BusyTimeoutMS: 5000,
				CacheSizeMB:   16,
			},
			Blob: BlobConfig{
				Path: "./data/blob",
			},
		},
		Upstream: UpstreamConfig{
			Path: "./data/upstream.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
			FilePath:   "./logs/nyushi.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
		Crawl: CrawlConfig{
			Workers:        4,
			MaxDepth:       3,
			RequestTimeout: "30s",
			MaxPages:       500,
			UserAgent:      "nyushi-crawler/1.0",
		},
		Download: DownloadConfig{
			Workers:           4,
			Enabled:           true,
			Timeout:           "60s",
			MaxFileSizeMB:     50,
			AllowedExtensions: []string{"pdf", "doc", "docx", "xls", "xlsx"},
		},
		Extract: ExtractConfig{
			Workers:  4,
			Timeout:  "45s",
			MaxPages: 200,
		},
		Rename: RenameConfig{
			Workers:    4,
			Enabled:    true,
			Timeout:    "30s",
			MaxTextLen: 8000,
		},
		Pipeline: PipelineConfig{
			BatchSize:      50,
			IncludeFailed:  true,
			IncludeChanged: true,
			KindFilter:     "",
			QueueCapacity:  16,
			PollSchedule:   "@every 30s",
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			Timeout:     "60s",
			RateLimit:   2.0,
			Temperature: 0.0,
			MaxTokens:   2048,
		},
	}
}

// LoadFromFiles merges TOML config files in order (later files win) on top
// of defaults, then applies environment overrides (highest priority).
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	config.Storage.SQLite.Environment = config.Environment

	return config, nil
}

// applyEnvOverrides applies NYUSHI_* environment variable overrides, highest
// priority over file config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("NYUSHI_ENV"); env != "" {
		config.Environment = env
		config.Storage.SQLite.Environment = env
	}
	if v := os.Getenv("NYUSHI_SQLITE_PATH"); v != "" {
		config.Storage.SQLite.Path = v
	}
	if v := os.Getenv("NYUSHI_BLOB_PATH"); v != "" {
		config.Storage.Blob.Path = v
	}
	if v := os.Getenv("NYUSHI_UPSTREAM_PATH"); v != "" {
		config.Upstream.Path = v
	}
	if v := os.Getenv("NYUSHI_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("NYUSHI_CRAWL_DEPTH"); v != "" {
		if n, err := parseIntEnv(v); err == nil {
			config.Crawl.MaxDepth = n
		}
	}
	if v := os.Getenv("NYUSHI_DOWNLOAD_ENABLED"); v != "" {
		config.Download.Enabled = parseBoolEnv(v)
	}
	if v := os.Getenv("NYUSHI_RENAME_ENABLED"); v != "" {
		config.Rename.Enabled = parseBoolEnv(v)
	}
	if v := os.Getenv("NYUSHI_CLAUDE_API_KEY"); v != "" {
		config.Claude.APIKey = v
	} else if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("NYUSHI_CLAUDE_MODEL"); v != "" {
		config.Claude.Model = v
	}
}

func parseIntEnv(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseBoolEnv(s string) bool {
	switch s {
	case "1", "true", "TRUE", "True", "yes":
		return true
	default:
		return false
	}
}

// ResolveAPIKey resolves the Claude API key: NYUSHI_CLAUDE_API_KEY,
// ANTHROPIC_API_KEY, then the config file value, in that order.
func ResolveAPIKey(configFallback string) (string, error) {
	if v := os.Getenv("NYUSHI_CLAUDE_API_KEY"); v != "" {
		return v, nil
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		return v, nil
	}
	if configFallback != "" {
		return configFallback, nil
	}
	return "", fmt.Errorf("claude api key not found in environment or config")
}

// ParseDuration wraps time.ParseDuration with a descriptive error. The
// services parse their duration fields with time.ParseDuration directly.
func ParseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q: %w", field, value, err)
	}
	return d, nil
}
