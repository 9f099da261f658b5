package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmiguens/arbscout/internal/domain"
)

// EmbeddingCache implements domain.EmbeddingCache. Vectors are stored as JSON
// under a hash of the input text, with a configurable TTL. Embeddings are
// deterministic per text, so a stale-but-present entry is always valid.
type EmbeddingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewEmbeddingCache creates an EmbeddingCache backed by the given Client.
func NewEmbeddingCache(c *Client, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{rdb: c.Underlying(), ttl: ttl}
}

func embKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + hex.EncodeToString(sum[:16])
}

// Get returns the cached vector for a text, or nil when absent.
func (ec *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, error) {
	data, err := ec.rdb.Get(ctx, embKey(text)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: get embedding: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, fmt.Errorf("redis: decode embedding: %w", err)
	}
	return vec, nil
}

// Set stores the vector for a text with the configured TTL.
func (ec *EmbeddingCache) Set(ctx context.Context, text string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("redis: encode embedding: %w", err)
	}
	if err := ec.rdb.Set(ctx, embKey(text), data, ec.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set embedding: %w", err)
	}
	return nil
}

// GetBatch fetches vectors for many texts in one pipeline. Missing texts map
// to nil entries so the caller can see exactly which inputs still need
// embedding.
func (ec *EmbeddingCache) GetBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	pipe := ec.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(texts))
	for i, t := range texts {
		cmds[i] = pipe.Get(ctx, embKey(t))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get embeddings pipeline: %w", err)
	}

	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal(data, &vec); err != nil {
			continue
		}
		out[i] = vec
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.EmbeddingCache = (*EmbeddingCache)(nil)
