package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBSCOUT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBSCOUT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// --- Postgres ---
	setStr(&cfg.Postgres.DSN, "ARBSCOUT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBSCOUT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBSCOUT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBSCOUT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBSCOUT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBSCOUT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBSCOUT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBSCOUT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBSCOUT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBSCOUT_POSTGRES_RUN_MIGRATIONS")

	// --- Redis ---
	setStr(&cfg.Redis.Addr, "ARBSCOUT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBSCOUT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBSCOUT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBSCOUT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBSCOUT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBSCOUT_REDIS_TLS_ENABLED")

	// --- S3 ---
	setStr(&cfg.S3.Endpoint, "ARBSCOUT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBSCOUT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBSCOUT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBSCOUT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBSCOUT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBSCOUT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBSCOUT_S3_FORCE_PATH_STYLE")

	// --- Embedding ---
	setStr(&cfg.Embedding.Endpoint, "ARBSCOUT_EMBEDDING_ENDPOINT")
	setStr(&cfg.Embedding.ApiKey, "ARBSCOUT_EMBEDDING_API_KEY")
	setStr(&cfg.Embedding.Model, "ARBSCOUT_EMBEDDING_MODEL")
	setInt(&cfg.Embedding.Dimensions, "ARBSCOUT_EMBEDDING_DIMENSIONS")
	setInt(&cfg.Embedding.BatchSize, "ARBSCOUT_EMBEDDING_BATCH_SIZE")
	setDuration(&cfg.Embedding.Timeout, "ARBSCOUT_EMBEDDING_TIMEOUT")
	setDuration(&cfg.Embedding.CacheTTL, "ARBSCOUT_EMBEDDING_CACHE_TTL")

	// --- Match ---
	setFloat64(&cfg.Match.ExactConfidence, "ARBSCOUT_MATCH_EXACT_CONFIDENCE")
	setFloat64(&cfg.Match.FuzzyMinScore, "ARBSCOUT_MATCH_FUZZY_MIN_SCORE")
	setFloat64(&cfg.Match.FuzzyTokenWeight, "ARBSCOUT_MATCH_FUZZY_TOKEN_WEIGHT")
	setFloat64(&cfg.Match.FuzzyEditWeight, "ARBSCOUT_MATCH_FUZZY_EDIT_WEIGHT")
	setFloat64(&cfg.Match.FuzzyBrandBonus, "ARBSCOUT_MATCH_FUZZY_BRAND_BONUS")
	setFloat64(&cfg.Match.FuzzyTieEpsilon, "ARBSCOUT_MATCH_FUZZY_TIE_EPSILON")
	setFloat64(&cfg.Match.SemanticMinScore, "ARBSCOUT_MATCH_SEMANTIC_MIN_SCORE")
	setBool(&cfg.Match.SemanticEnabled, "ARBSCOUT_MATCH_SEMANTIC_ENABLED")
	setInt(&cfg.Match.CandidateLimit, "ARBSCOUT_MATCH_CANDIDATE_LIMIT")

	// --- Analyze ---
	setInt(&cfg.Analyze.HistoryWindow, "ARBSCOUT_ANALYZE_HISTORY_WINDOW")
	setInt(&cfg.Analyze.MinPricePoints, "ARBSCOUT_ANALYZE_MIN_PRICE_POINTS")
	setFloat64(&cfg.Analyze.FeePercentage, "ARBSCOUT_ANALYZE_FEE_PERCENTAGE")
	setStr(&cfg.Analyze.ShippingConstant, "ARBSCOUT_ANALYZE_SHIPPING_CONSTANT")
	setStr(&cfg.Analyze.MinNetProfit, "ARBSCOUT_ANALYZE_MIN_NET_PROFIT")
	setDuration(&cfg.Analyze.StaleAfter, "ARBSCOUT_ANALYZE_STALE_AFTER")

	// --- Alert ---
	setStr(&cfg.Alert.DedupEpsilon, "ARBSCOUT_ALERT_DEDUP_EPSILON")
	setDuration(&cfg.Alert.DedupWindow, "ARBSCOUT_ALERT_DEDUP_WINDOW")
	setDuration(&cfg.Alert.ExpireUnseen, "ARBSCOUT_ALERT_EXPIRE_UNSEEN")
	setStr(&cfg.Alert.SignalChannel, "ARBSCOUT_ALERT_SIGNAL_CHANNEL")
	setStr(&cfg.Alert.SignalStream, "ARBSCOUT_ALERT_SIGNAL_STREAM")

	// --- Pipeline ---
	setInt(&cfg.Pipeline.Workers, "ARBSCOUT_PIPELINE_WORKERS")
	setDuration(&cfg.Pipeline.ScanInterval, "ARBSCOUT_PIPELINE_SCAN_INTERVAL")
	setInt(&cfg.Pipeline.ListingBatchSize, "ARBSCOUT_PIPELINE_LISTING_BATCH_SIZE")
	setDuration(&cfg.Pipeline.LockTTL, "ARBSCOUT_PIPELINE_LOCK_TTL")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "ARBSCOUT_PIPELINE_ARCHIVE_RETENTION_DAYS")

	// --- Top-level ---
	setStr(&cfg.Mode, "ARBSCOUT_MODE")
	setStr(&cfg.LogLevel, "ARBSCOUT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
