// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
)

// Backend names shared by several sections.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendPubSub   = "pubsub"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Courts   CourtsConfig   `mapstructure:"courts"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig configures bearer-token verification.
type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	Issuer       string        `mapstructure:"issuer"`
	Leeway       time.Duration `mapstructure:"leeway"`
	AllowedRoles []string      `mapstructure:"allowed_roles"`
}

// SyncConfig governs the orchestrator.
type SyncConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// CourtsConfig lists the courts eligible for capture. An empty list uses
// the built-in directory.
type CourtsConfig struct {
	Default string          `mapstructure:"default"`
	List    []capture.Court `mapstructure:"list"`
}

// QueueConfig selects the job queue backend.
type QueueConfig struct {
	Backend        string        `mapstructure:"backend"`
	Capacity       int           `mapstructure:"capacity"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
	PubSub         PubSubConfig  `mapstructure:"pubsub"`
}

// PubSubConfig names the topic and subscription used for capture jobs.
type PubSubConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	Topic          string `mapstructure:"topic"`
	Subscription   string `mapstructure:"subscription"`
	MaxOutstanding int    `mapstructure:"max_outstanding"`
}

// WorkerConfig governs the worker pool.
type WorkerConfig struct {
	Concurrency int             `mapstructure:"concurrency"`
	JobTimeout  time.Duration   `mapstructure:"job_timeout"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles calls per court portal.
type RateLimitConfig struct {
	DefaultRPS   float64            `mapstructure:"default_rps"`
	DefaultBurst int                `mapstructure:"default_burst"`
	PerCourtRPS  map[string]float64 `mapstructure:"per_court_rps"`
}

// ScraperConfig points at the remote scraping service.
type ScraperConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig controls the state and case stores.
type DatabaseConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// StorageConfig selects where capture snapshots are archived. An empty
// backend disables archiving.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// ProgressConfig tunes the lifecycle event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	TerminalWait   time.Duration `mapstructure:"terminal_wait"`
}

// LoggingConfig toggles zap development features and the optional log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OABSYNC")
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.leeway", 30*time.Second)
	v.SetDefault("auth.allowed_roles", []string{"ADMIN", "SUPER_ADMIN", "ADVOGADO"})
	v.SetDefault("sync.stale_after", 30*time.Minute)
	v.SetDefault("courts.default", "TJBA")
	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.capacity", 256)
	v.SetDefault("queue.enqueue_timeout", 5*time.Second)
	v.SetDefault("queue.pubsub.project_id", "")
	v.SetDefault("queue.pubsub.topic", "oab-sync-jobs")
	v.SetDefault("queue.pubsub.subscription", "oab-sync-workers")
	v.SetDefault("queue.pubsub.max_outstanding", 3)
	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.job_timeout", 2*time.Minute)
	v.SetDefault("worker.rate_limit.default_rps", 0.5)
	v.SetDefault("worker.rate_limit.default_burst", 1)
	v.SetDefault("scraper.base_url", "")
	v.SetDefault("scraper.token", "")
	v.SetDefault("scraper.timeout", 90*time.Second)
	v.SetDefault("database.backend", BackendMemory)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("storage.backend", "")
	v.SetDefault("storage.prefix", "captures")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait", 500*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 5*time.Second)
	v.SetDefault("progress.terminal_wait", time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker.job_timeout must be > 0")
	}
	if c.Sync.StaleAfter < 0 {
		return fmt.Errorf("sync.stale_after must be >= 0")
	}
	switch c.Queue.Backend {
	case BackendMemory:
		if c.Queue.Capacity <= 0 {
			return fmt.Errorf("queue.capacity must be > 0")
		}
	case BackendPubSub:
		if c.Queue.PubSub.ProjectID == "" || c.Queue.PubSub.Topic == "" {
			return fmt.Errorf("queue.pubsub.project_id and queue.pubsub.topic are required for pubsub")
		}
	default:
		return fmt.Errorf("queue.backend %q is not supported", c.Queue.Backend)
	}
	switch c.Database.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.backend %q is not supported", c.Database.Backend)
	}
	switch c.Storage.Backend {
	case "", BackendMemory:
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for local storage")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for gcs storage")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	return nil
}

// ValidateServe adds the checks that only apply to the API process.
func (c Config) ValidateServe() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 bytes")
	}
	return nil
}

// ValidateWorker adds the checks that only apply to worker processes.
func (c Config) ValidateWorker() error {
	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("scraper.base_url is required")
	}
	return nil
}
