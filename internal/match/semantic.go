package match

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dmiguens/arbscout/internal/domain"
)

// SemanticConfig holds the semantic stage threshold and candidate bound.
type SemanticConfig struct {
	MinScore       float64
	CandidateLimit int
}

// SemanticMatcher scores a listing against catalog candidates by cosine
// similarity of text embeddings. The embedder is deterministic for identical
// input, so scoring is split into a fetch phase (Candidates, Embed) and a
// pure phase (Select): callers may batch the embed phase across many listings
// without changing any outcome.
type SemanticMatcher struct {
	catalog  domain.CatalogStore
	embedder domain.Embedder
	cache    domain.EmbeddingCache // nil disables memoization
	cfg      SemanticConfig
}

func NewSemanticMatcher(catalog domain.CatalogStore, embedder domain.Embedder, cache domain.EmbeddingCache, cfg SemanticConfig) *SemanticMatcher {
	return &SemanticMatcher{catalog: catalog, embedder: embedder, cache: cache, cfg: cfg}
}

func (m *SemanticMatcher) Method() domain.MatchMethod { return domain.MatchMethodSemantic }

// Match runs the full fetch+score path for a single listing.
func (m *SemanticMatcher) Match(ctx context.Context, nl NormalizedListing) (*domain.MatchCandidate, error) {
	entries, texts, err := m.Candidates(ctx, nl)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	vecs, err := m.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	return m.Select(nl, entries, vecs)
}

// Candidates returns the bounded candidate set for a listing together with
// the texts to embed: the listing title first, then one per candidate.
func (m *SemanticMatcher) Candidates(ctx context.Context, nl NormalizedListing) ([]domain.CatalogEntry, []string, error) {
	if nl.Title == "" {
		return nil, nil, nil
	}
	entries, err := m.catalog.ListCandidates(ctx, nl.Listing.Category, "", m.cfg.CandidateLimit)
	if err != nil {
		return nil, nil, &domain.DependencyError{Dependency: "catalog", Err: err}
	}
	if len(entries) == 0 {
		return nil, nil, nil
	}
	texts := make([]string, 0, len(entries)+1)
	texts = append(texts, nl.Title)
	for _, e := range entries {
		texts = append(texts, NormalizeText(e.Title))
	}
	return entries, texts, nil
}

// Embed resolves vectors for texts, consulting the embedding cache first and
// only sending misses to the embedder. Result order matches texts.
func (m *SemanticMatcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))

	if m.cache != nil {
		cached, err := m.cache.GetBatch(ctx, texts)
		if err == nil {
			copy(vecs, cached)
		}
	}
	for i, v := range vecs {
		if v == nil {
			missIdx = append(missIdx, i)
		}
	}
	if len(missIdx) == 0 {
		return vecs, nil
	}

	missTexts := make([]string, len(missIdx))
	for i, idx := range missIdx {
		missTexts[i] = texts[idx]
	}
	fresh, err := m.embedder.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, &domain.DependencyError{Dependency: "embedding", Err: err}
	}
	if len(fresh) != len(missTexts) {
		return nil, &domain.DependencyError{
			Dependency: "embedding",
			Err:        fmt.Errorf("got %d vectors for %d inputs", len(fresh), len(missTexts)),
		}
	}
	for i, idx := range missIdx {
		vecs[idx] = fresh[i]
		if m.cache != nil {
			_ = m.cache.Set(ctx, texts[idx], fresh[i]) // cache is best-effort
		}
	}
	return vecs, nil
}

// Select is the pure scoring phase: vecs[0] is the listing vector, vecs[1:]
// line up with entries. The highest cosine at or above the threshold wins;
// equal scores keep the earliest candidate so results do not depend on
// batching or iteration order.
func (m *SemanticMatcher) Select(nl NormalizedListing, entries []domain.CatalogEntry, vecs [][]float32) (*domain.MatchCandidate, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if len(vecs) != len(entries)+1 {
		return nil, &domain.DependencyError{
			Dependency: "embedding",
			Err:        fmt.Errorf("got %d vectors for %d candidates", len(vecs), len(entries)),
		}
	}

	bestIdx := -1
	bestSim := 0.0
	for i := range entries {
		sim := cosine(vecs[0], vecs[i+1])
		if sim > bestSim {
			bestIdx, bestSim = i, sim
		}
	}
	if bestIdx < 0 || bestSim < m.cfg.MinScore {
		return nil, nil
	}

	return &domain.MatchCandidate{
		ListingID:  nl.Listing.ID,
		EntryID:    entries[bestIdx].ID,
		Confidence: clamp01(bestSim),
		Method:     domain.MatchMethodSemantic,
		Detail: map[string]any{
			"cosine":     bestSim,
			"candidates": len(entries),
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// cosine returns the cosine similarity of two vectors, 0 for mismatched or
// zero-magnitude input.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
