package domain

import (
	"context"
	"time"
)

// Embedder maps a batch of strings to fixed-dimension vectors. Implementations
// must be deterministic for identical input: matching outcomes may not depend
// on how calls are batched.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// OpenOpportunityCache is the shared "open opportunities" set used to
// deduplicate alerts. Reserve must be atomic per pair key so that concurrent
// workers can never create two live records for the same pair.
type OpenOpportunityCache interface {
	// Reserve performs an atomic check-then-create-or-supersede for the pair
	// key: AlertCreate when no open entry exists, AlertSuppress when one
	// exists with |profit delta| < epsilon, AlertSupersede otherwise. On
	// create/supersede the cache records the new profit with the dedup-window
	// TTL.
	Reserve(ctx context.Context, pairKey string, netProfit string, epsilon string, window time.Duration) (AlertDecision, error)
	// Release drops the pair entry, e.g. when persisting the record failed
	// after a successful reservation.
	Release(ctx context.Context, pairKey string) error
}

// EmbeddingCache memoizes embedding vectors keyed by input text so repeated
// scans do not re-embed unchanged titles.
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, error)
	Set(ctx context.Context, text string, vec []float32) error
	// GetBatch returns cached vectors for the given texts; missing texts map
	// to nil entries in the result.
	GetBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LockManager provides distributed locking for scan runs.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus publishes pipeline events for out-of-process consumers (the
// notification-delivery collaborator, dashboards).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// StreamAppend appends to a durable stream with bounded length.
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
