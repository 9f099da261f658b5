package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/dmiguens/arbscout/internal/alert"
	"github.com/dmiguens/arbscout/internal/analyze"
	s3blob "github.com/dmiguens/arbscout/internal/blob/s3"
	"github.com/dmiguens/arbscout/internal/cache/redis"
	"github.com/dmiguens/arbscout/internal/config"
	"github.com/dmiguens/arbscout/internal/domain"
	"github.com/dmiguens/arbscout/internal/match"
	"github.com/dmiguens/arbscout/internal/pipeline"
	"github.com/dmiguens/arbscout/internal/platform/embedding"
	"github.com/dmiguens/arbscout/internal/service"
	"github.com/dmiguens/arbscout/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	Listings      domain.ListingStore
	Catalog       domain.CatalogStore
	History       domain.PriceHistoryStore
	Opportunities domain.OpportunityStore
	MatchAudit    domain.MatchAuditStore
	Audit         domain.AuditStore

	// Caches
	OpenOpps domain.OpenOpportunityCache
	EmbCache domain.EmbeddingCache
	Locks    domain.LockManager
	Bus      domain.SignalBus

	// External services
	Embedder domain.Embedder

	// Cold storage
	Archiver *s3blob.Archiver

	// Postgres is exposed for the migrate mode.
	Postgres *postgres.Client
}

// needsRedis returns true for modes that scan listings and therefore need
// the dedup cache, locks, and the signal bus.
func needsRedis(mode string) bool {
	switch mode {
	case "scan", "watch":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that touch cold storage.
func needsS3(mode string) bool {
	return mode == "archive"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode needs persistence) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Postgres = pgClient

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Listings = postgres.NewListingStore(pool)
	deps.Catalog = postgres.NewCatalogStore(pool)
	deps.History = postgres.NewPriceHistoryStore(pool)
	deps.Opportunities = postgres.NewOpportunityStore(pool)
	deps.MatchAudit = postgres.NewMatchAuditStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Redis (scan modes only) ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.OpenOpps = redis.NewOpenOpportunityCache(redisClient)
		deps.EmbCache = redis.NewEmbeddingCache(redisClient, cfg.Embedding.CacheTTL.Duration)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)

		if cfg.Match.SemanticEnabled {
			deps.Embedder = embedding.NewClient(
				cfg.Embedding.Endpoint,
				cfg.Embedding.ApiKey,
				cfg.Embedding.Model,
				cfg.Embedding.Dimensions,
				cfg.Embedding.BatchSize,
				cfg.Embedding.Timeout.Duration,
			)
		}
	}

	// --- S3 cold storage (archive mode only) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Opportunities,
			deps.Audit,
		)
	}

	return deps, cleanup, nil
}

// BuildPipeline assembles the match cascade, the analyzer, the alert
// generator, and the scan runner from wired dependencies.
func BuildPipeline(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*pipeline.Runner, *service.OpportunityService, error) {
	shipping, err := decimal.NewFromString(cfg.Analyze.ShippingConstant)
	if err != nil {
		return nil, nil, fmt.Errorf("build pipeline: shipping_constant: %w", err)
	}
	minNet, err := decimal.NewFromString(cfg.Analyze.MinNetProfit)
	if err != nil {
		return nil, nil, fmt.Errorf("build pipeline: min_net_profit: %w", err)
	}
	dedupEps, err := decimal.NewFromString(cfg.Alert.DedupEpsilon)
	if err != nil {
		return nil, nil, fmt.Errorf("build pipeline: dedup_epsilon: %w", err)
	}
	bands, err := alert.DefaultBands(
		cfg.Alert.CriticalAbs, cfg.Alert.CriticalPct,
		cfg.Alert.HighAbs, cfg.Alert.HighPct,
		cfg.Alert.MediumAbs, cfg.Alert.MediumPct,
		cfg.Alert.LowAbs, cfg.Alert.LowPct,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build pipeline: severity bands: %w", err)
	}

	cascade := match.NewCascade(match.NewNormalizer(),
		match.NewExactMatcher(deps.Catalog, cfg.Match.ExactConfidence),
		match.NewFuzzyMatcher(deps.Catalog, match.FuzzyConfig{
			MinScore:       cfg.Match.FuzzyMinScore,
			TokenWeight:    cfg.Match.FuzzyTokenWeight,
			EditWeight:     cfg.Match.FuzzyEditWeight,
			BrandBonus:     cfg.Match.FuzzyBrandBonus,
			TieEpsilon:     cfg.Match.FuzzyTieEpsilon,
			CandidateLimit: cfg.Match.CandidateLimit,
		}),
	)

	var sem *match.SemanticMatcher
	if cfg.Match.SemanticEnabled && deps.Embedder != nil {
		sem = match.NewSemanticMatcher(deps.Catalog, deps.Embedder, deps.EmbCache, match.SemanticConfig{
			MinScore:       cfg.Match.SemanticMinScore,
			CandidateLimit: cfg.Match.CandidateLimit,
		})
	}

	matchSvc := service.NewMatchService(cascade, sem, deps.MatchAudit, deps.Audit, logger)

	analyzer := analyze.New(deps.History, analyze.Config{
		HistoryWindow:  cfg.Analyze.HistoryWindow,
		MinPricePoints: cfg.Analyze.MinPricePoints,
		FeePercentage:  decimal.NewFromFloat(cfg.Analyze.FeePercentage),
		ShippingCost:   shipping,
		MinNetProfit:   minNet,
	})

	generator := alert.NewGenerator(deps.OpenOpps, deps.Opportunities, deps.Bus, logger, alert.Config{
		Bands:         bands,
		DedupEpsilon:  dedupEps,
		DedupWindow:   cfg.Alert.DedupWindow.Duration,
		SignalChannel: cfg.Alert.SignalChannel,
		SignalStream:  cfg.Alert.SignalStream,
	})

	oppSvc := service.NewOpportunityService(analyzer, generator, deps.Opportunities, deps.Audit, logger)

	runner := pipeline.NewRunner(deps.Listings, matchSvc, oppSvc, pipeline.Config{
		Workers:   cfg.Pipeline.Workers,
		BatchSize: cfg.Pipeline.ListingBatchSize,
	}, logger)

	return runner, oppSvc, nil
}
