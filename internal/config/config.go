// Package config defines the top-level configuration for the arbscout scanner
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCOUT_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Match     MatchConfig     `toml:"match"`
	Analyze   AnalyzeConfig   `toml:"analyze"`
	Alert     AlertConfig     `toml:"alert"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the opportunity
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EmbeddingConfig holds parameters for the text-embedding service used by the
// semantic matcher.
type EmbeddingConfig struct {
	Endpoint   string   `toml:"endpoint"`
	ApiKey     string   `toml:"api_key"`
	Model      string   `toml:"model"`
	Dimensions int      `toml:"dimensions"`
	BatchSize  int      `toml:"batch_size"`
	Timeout    duration `toml:"timeout"`
	CacheTTL   duration `toml:"cache_ttl"`
}

// MatchConfig holds thresholds and weights for the matching cascade.
type MatchConfig struct {
	ExactConfidence  float64 `toml:"exact_confidence"`
	FuzzyMinScore    float64 `toml:"fuzzy_min_score"`
	FuzzyTokenWeight float64 `toml:"fuzzy_token_weight"`
	FuzzyEditWeight  float64 `toml:"fuzzy_edit_weight"`
	FuzzyBrandBonus  float64 `toml:"fuzzy_brand_bonus"`
	FuzzyTieEpsilon  float64 `toml:"fuzzy_tie_epsilon"`
	SemanticMinScore float64 `toml:"semantic_min_score"`
	SemanticEnabled  bool    `toml:"semantic_enabled"`
	CandidateLimit   int     `toml:"candidate_limit"`
}

// AnalyzeConfig holds price-history and profit parameters.
type AnalyzeConfig struct {
	HistoryWindow    int      `toml:"history_window"`
	MinPricePoints   int      `toml:"min_price_points"`
	FeePercentage    float64  `toml:"fee_percentage"`
	ShippingConstant string   `toml:"shipping_constant"`
	MinNetProfit     string   `toml:"min_net_profit"`
	StaleAfter       duration `toml:"stale_after"`
}

// AlertConfig holds severity thresholds and deduplication parameters.
// Absolute thresholds are decimal strings in the listing currency; percentage
// thresholds are 0-100.
type AlertConfig struct {
	CriticalAbs   string   `toml:"critical_abs"`
	CriticalPct   float64  `toml:"critical_pct"`
	HighAbs       string   `toml:"high_abs"`
	HighPct       float64  `toml:"high_pct"`
	MediumAbs     string   `toml:"medium_abs"`
	MediumPct     float64  `toml:"medium_pct"`
	LowAbs        string   `toml:"low_abs"`
	LowPct        float64  `toml:"low_pct"`
	DedupEpsilon  string   `toml:"dedup_epsilon"`
	DedupWindow   duration `toml:"dedup_window"`
	ExpireUnseen  duration `toml:"expire_unseen"`
	SignalChannel string   `toml:"signal_channel"`
	SignalStream  string   `toml:"signal_stream"`
}

// PipelineConfig holds scan-run parameters.
type PipelineConfig struct {
	Workers              int      `toml:"workers"`
	ScanInterval         duration `toml:"scan_interval"`
	ListingBatchSize     int      `toml:"listing_batch_size"`
	LockTTL              duration `toml:"lock_ttl"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "arbscout",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "eu-central-1",
			Bucket:         "arbscout-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Embedding: EmbeddingConfig{
			Endpoint:   "http://localhost:8080/embed",
			Model:      "paraphrase-multilingual-MiniLM-L12-v2",
			Dimensions: 384,
			BatchSize:  32,
			Timeout:    duration{30 * time.Second},
			CacheTTL:   duration{24 * time.Hour},
		},
		Match: MatchConfig{
			ExactConfidence:  0.95,
			FuzzyMinScore:    0.85,
			FuzzyTokenWeight: 0.55,
			FuzzyEditWeight:  0.30,
			FuzzyBrandBonus:  0.15,
			FuzzyTieEpsilon:  0.01,
			SemanticMinScore: 0.80,
			SemanticEnabled:  true,
			CandidateLimit:   50,
		},
		Analyze: AnalyzeConfig{
			HistoryWindow:    30,
			MinPricePoints:   5,
			FeePercentage:    15.0,
			ShippingConstant: "4.90",
			MinNetProfit:     "10.00",
			StaleAfter:       duration{48 * time.Hour},
		},
		Alert: AlertConfig{
			CriticalAbs:   "200.00",
			CriticalPct:   50.0,
			HighAbs:       "75.00",
			HighPct:       30.0,
			MediumAbs:     "30.00",
			MediumPct:     15.0,
			LowAbs:        "10.00",
			LowPct:        5.0,
			DedupEpsilon:  "1.00",
			DedupWindow:   duration{6 * time.Hour},
			ExpireUnseen:  duration{24 * time.Hour},
			SignalChannel: "arbscout:alerts",
			SignalStream:  "arbscout:alerts:stream",
		},
		Pipeline: PipelineConfig{
			Workers:              8,
			ScanInterval:         duration{15 * time.Minute},
			ListingBatchSize:     500,
			LockTTL:              duration{10 * time.Minute},
			ArchiveRetentionDays: 90,
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":    true,
	"watch":   true,
	"archive": true,
	"migrate": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, watch, archive, migrate)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Embedding
	if c.Match.SemanticEnabled {
		if c.Embedding.Endpoint == "" {
			errs = append(errs, "embedding: endpoint is required when match.semantic_enabled is true")
		}
		if c.Embedding.Dimensions <= 0 {
			errs = append(errs, "embedding: dimensions must be > 0")
		}
		if c.Embedding.BatchSize < 1 {
			errs = append(errs, "embedding: batch_size must be >= 1")
		}
	}

	// Match
	for _, t := range []struct {
		name string
		v    float64
	}{
		{"exact_confidence", c.Match.ExactConfidence},
		{"fuzzy_min_score", c.Match.FuzzyMinScore},
		{"semantic_min_score", c.Match.SemanticMinScore},
	} {
		if t.v <= 0 || t.v > 1 {
			errs = append(errs, fmt.Sprintf("match: %s must be in (0, 1], got %g", t.name, t.v))
		}
	}
	if c.Match.FuzzyTokenWeight < 0 || c.Match.FuzzyEditWeight < 0 || c.Match.FuzzyBrandBonus < 0 {
		errs = append(errs, "match: fuzzy weights must be >= 0")
	}
	if c.Match.FuzzyTieEpsilon < 0 {
		errs = append(errs, "match: fuzzy_tie_epsilon must be >= 0")
	}
	if c.Match.CandidateLimit < 1 {
		errs = append(errs, "match: candidate_limit must be >= 1")
	}

	// Analyze
	if c.Analyze.HistoryWindow < 1 {
		errs = append(errs, "analyze: history_window must be >= 1")
	}
	if c.Analyze.MinPricePoints < 1 {
		errs = append(errs, "analyze: min_price_points must be >= 1")
	}
	if c.Analyze.MinPricePoints > c.Analyze.HistoryWindow {
		errs = append(errs, "analyze: min_price_points must not exceed history_window")
	}
	if c.Analyze.FeePercentage < 0 || c.Analyze.FeePercentage >= 100 {
		errs = append(errs, fmt.Sprintf("analyze: fee_percentage must be in [0, 100), got %g", c.Analyze.FeePercentage))
	}

	// Alert: thresholds must be strictly ordered so severity buckets nest.
	if !(c.Alert.CriticalPct > c.Alert.HighPct && c.Alert.HighPct > c.Alert.MediumPct && c.Alert.MediumPct > c.Alert.LowPct) {
		errs = append(errs, "alert: percentage thresholds must be strictly decreasing critical > high > medium > low")
	}
	if c.Alert.DedupWindow.Duration <= 0 {
		errs = append(errs, "alert: dedup_window must be > 0")
	}

	// Pipeline
	if c.Pipeline.Workers < 1 {
		errs = append(errs, "pipeline: workers must be >= 1")
	}
	if c.Pipeline.ListingBatchSize < 1 {
		errs = append(errs, "pipeline: listing_batch_size must be >= 1")
	}
	if c.Mode == "watch" && c.Pipeline.ScanInterval.Duration <= 0 {
		errs = append(errs, "pipeline: scan_interval must be > 0 for watch mode")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
