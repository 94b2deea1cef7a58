// Package config loads the closed configuration surface from environment
// variables: database backend selection and connection settings, write
// batching, retention, backup, and collector tuning. The struct field set
// is the accepted-option set; nothing else is consulted.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seshuthota/gamearena-store/internal/apperrors"
)

// BackendKind selects which concrete Backend implementation to wire up.
type BackendKind string

const (
	BackendEmbedded BackendKind = "embedded"
	BackendPooled   BackendKind = "pooled"
)

// DatabaseConfig configures backend selection and connection parameters.
type DatabaseConfig struct {
	Backend           BackendKind
	ConnString        string // pooled: DSN. embedded: file path.
	PoolSize          int
	ConnectTimeout    time.Duration
	QueryTimeout      time.Duration
	TLSEnabled        bool
	TLSCertPath       string
}

// WriteConfig configures write batching behavior.
type WriteConfig struct {
	BatchSize       int
	MaxConcurrent   int
	WriteTimeout    time.Duration
	BatchingEnabled bool
}

// RetentionConfig configures automatic data aging.
type RetentionConfig struct {
	MaxGameAgeDays    int // 0 = disabled
	MaxGamesPerPlayer int // 0 = disabled
	AutoCleanup       bool
	CleanupInterval   time.Duration
}

// BackupConfig configures periodic backup/archive.
type BackupConfig struct {
	Enabled         bool
	IntervalHours   int
	RetentionDays   int
	Path            string
	CompressionOn   bool
}

// CollectorConfig configures the event collector's worker pool and sampling.
type CollectorConfig struct {
	Enabled                  bool
	CollectMoveData          bool
	CollectRethinkData       bool
	CollectTimingData        bool
	CollectLLMResponses      bool
	MaxCollectionLatencyMS   int
	AsyncProcessing          bool
	QueueSize                int
	WorkerThreads            int
	MinGameLength            int
	MaxGameLength            int
	SampleRate               float64
	MoveSampleRate           float64
	MaxRetryAttempts         int
	RetryDelaySeconds        float64
	ContinueOnCollectionError bool
}

// Config is the complete closed configuration surface.
type Config struct {
	Database  DatabaseConfig
	Writes    WriteConfig
	Retention RetentionConfig
	Backup    BackupConfig
	Collector CollectorConfig
}

// Load reads Config from the environment, applying defaults and collecting
// every validation failure (not just the first) into one apperrors
// Validation-kind error, so a misconfigured deployment reports all its
// problems at once.
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Backend:        BackendKind(getEnv("GAMEARENA_DB_BACKEND", "embedded")),
			ConnString:     getEnv("GAMEARENA_DB_CONN", ""),
			PoolSize:       getEnvInt("GAMEARENA_DB_POOL_SIZE", 10),
			ConnectTimeout: getEnvDuration("GAMEARENA_DB_CONNECT_TIMEOUT", 30*time.Second),
			QueryTimeout:   getEnvDuration("GAMEARENA_DB_QUERY_TIMEOUT", 60*time.Second),
			TLSEnabled:     getEnvBool("GAMEARENA_DB_TLS_ENABLED", false),
			TLSCertPath:    getEnv("GAMEARENA_DB_TLS_CERT_PATH", ""),
		},
		Writes: WriteConfig{
			BatchSize:       getEnvInt("GAMEARENA_WRITE_BATCH_SIZE", 50),
			MaxConcurrent:   getEnvInt("GAMEARENA_WRITE_MAX_CONCURRENT", 4),
			WriteTimeout:    getEnvDuration("GAMEARENA_WRITE_TIMEOUT", 10*time.Second),
			BatchingEnabled: getEnvBool("GAMEARENA_WRITE_BATCHING_ENABLED", true),
		},
		Retention: RetentionConfig{
			MaxGameAgeDays:    getEnvInt("GAMEARENA_RETENTION_MAX_GAME_AGE_DAYS", 0),
			MaxGamesPerPlayer: getEnvInt("GAMEARENA_RETENTION_MAX_GAMES_PER_PLAYER", 0),
			AutoCleanup:       getEnvBool("GAMEARENA_RETENTION_AUTO_CLEANUP", false),
			CleanupInterval:   getEnvDuration("GAMEARENA_RETENTION_CLEANUP_INTERVAL", 24*time.Hour),
		},
		Backup: BackupConfig{
			Enabled:       getEnvBool("GAMEARENA_BACKUP_ENABLED", false),
			IntervalHours: getEnvInt("GAMEARENA_BACKUP_INTERVAL_HOURS", 24),
			RetentionDays: getEnvInt("GAMEARENA_BACKUP_RETENTION_DAYS", 30),
			Path:          getEnv("GAMEARENA_BACKUP_PATH", "./backups"),
			CompressionOn: getEnvBool("GAMEARENA_BACKUP_COMPRESSION", true),
		},
		Collector: CollectorConfig{
			Enabled:                   getEnvBool("GAMEARENA_COLLECTOR_ENABLED", true),
			CollectMoveData:           getEnvBool("GAMEARENA_COLLECTOR_COLLECT_MOVE_DATA", true),
			CollectRethinkData:        getEnvBool("GAMEARENA_COLLECTOR_COLLECT_RETHINK_DATA", true),
			CollectTimingData:         getEnvBool("GAMEARENA_COLLECTOR_COLLECT_TIMING_DATA", true),
			CollectLLMResponses:       getEnvBool("GAMEARENA_COLLECTOR_COLLECT_LLM_RESPONSES", true),
			MaxCollectionLatencyMS:    getEnvInt("GAMEARENA_COLLECTOR_MAX_LATENCY_MS", 50),
			AsyncProcessing:           getEnvBool("GAMEARENA_COLLECTOR_ASYNC", true),
			QueueSize:                 getEnvInt("GAMEARENA_COLLECTOR_QUEUE_SIZE", 1000),
			WorkerThreads:             getEnvInt("GAMEARENA_COLLECTOR_WORKER_THREADS", 2),
			MinGameLength:             getEnvInt("GAMEARENA_COLLECTOR_MIN_GAME_LENGTH", 0),
			MaxGameLength:             getEnvInt("GAMEARENA_COLLECTOR_MAX_GAME_LENGTH", 0),
			SampleRate:                getEnvFloat("GAMEARENA_COLLECTOR_SAMPLE_RATE", 1.0),
			MoveSampleRate:            getEnvFloat("GAMEARENA_COLLECTOR_MOVE_SAMPLE_RATE", 1.0),
			MaxRetryAttempts:          getEnvInt("GAMEARENA_COLLECTOR_MAX_RETRY_ATTEMPTS", 3),
			RetryDelaySeconds:         getEnvFloat("GAMEARENA_COLLECTOR_RETRY_DELAY_SECONDS", 1.0),
			ContinueOnCollectionError: getEnvBool("GAMEARENA_COLLECTOR_CONTINUE_ON_ERROR", true),
		},
	}

	if errs := cfg.validate(); len(errs) > 0 {
		return nil, apperrors.Validation("config.Load", fmt.Errorf("%s", strings.Join(errs, "; ")))
	}
	return cfg, nil
}

func (c *Config) validate() []string {
	var errs []string

	switch c.Database.Backend {
	case BackendEmbedded, BackendPooled:
	default:
		errs = append(errs, fmt.Sprintf("database.backend must be %q or %q, got %q", BackendEmbedded, BackendPooled, c.Database.Backend))
	}
	if c.Database.ConnString == "" {
		if c.Database.Backend == BackendPooled {
			errs = append(errs, "database.conn_string is required for the pooled backend")
		} else {
			errs = append(errs, "database.conn_string (file path) is required for the embedded backend")
		}
	}
	if c.Database.PoolSize < 1 {
		errs = append(errs, "database.pool_size must be at least 1")
	}

	if c.Writes.BatchSize < 1 {
		errs = append(errs, "writes.batch_size must be at least 1")
	}
	if c.Writes.MaxConcurrent < 1 {
		errs = append(errs, "writes.max_concurrent must be at least 1")
	}

	if c.Retention.MaxGameAgeDays < 0 {
		errs = append(errs, "retention.max_game_age_days cannot be negative")
	}
	if c.Retention.MaxGamesPerPlayer < 0 {
		errs = append(errs, "retention.max_games_per_player cannot be negative")
	}

	if c.Backup.Enabled && c.Backup.Path == "" {
		errs = append(errs, "backup.path is required when backup is enabled")
	}
	if c.Backup.IntervalHours < 1 {
		errs = append(errs, "backup.interval_hours must be at least 1")
	}

	if c.Collector.QueueSize < 1 {
		errs = append(errs, "collector.queue_size must be at least 1")
	}
	if c.Collector.WorkerThreads < 1 {
		errs = append(errs, "collector.worker_threads must be at least 1")
	}
	if c.Collector.MaxCollectionLatencyMS < 1 {
		errs = append(errs, "collector.max_collection_latency_ms must be at least 1")
	}
	if c.Collector.SampleRate < 0 || c.Collector.SampleRate > 1 {
		errs = append(errs, "collector.sample_rate must be between 0 and 1")
	}
	if c.Collector.MoveSampleRate < 0 || c.Collector.MoveSampleRate > 1 {
		errs = append(errs, "collector.move_sample_rate must be between 0 and 1")
	}
	if c.Collector.MaxRetryAttempts < 0 {
		errs = append(errs, "collector.max_retry_attempts cannot be negative")
	}
	if c.Collector.MinGameLength > 0 && c.Collector.MaxGameLength > 0 && c.Collector.MinGameLength > c.Collector.MaxGameLength {
		errs = append(errs, "collector.min_game_length cannot exceed collector.max_game_length")
	}

	return errs
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
