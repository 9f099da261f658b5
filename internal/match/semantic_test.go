package match

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmiguens/arbscout/internal/domain"
)

func TestSemanticMatcherPicksClosestVector(t *testing.T) {
	catalog := &fakeCatalog{candidates: []domain.CatalogEntry{
		{ID: "mug", Title: "Keramik Kaffeebecher 300ml blau"},
		{ID: "headphones", Title: "Bluetooth Kopfhörer Over-Ear schwarz"},
	}}
	m := NewSemanticMatcher(catalog, &hashEmbedder{dims: 64}, nil, SemanticConfig{MinScore: 0.80, CandidateLimit: 50})
	nl := NewNormalizer().Normalize(domain.SourceListing{
		ID:       "l1",
		Title:    "Kaffeebecher Keramik blau 300ml",
		Category: "kitchen",
	})

	cand, err := m.Match(context.Background(), nl)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "mug", cand.EntryID)
	assert.Equal(t, domain.MatchMethodSemantic, cand.Method)
	assert.GreaterOrEqual(t, cand.Confidence, 0.80)
	assert.LessOrEqual(t, cand.Confidence, 1.0)
}

func TestSemanticMatcherBelowThresholdInconclusive(t *testing.T) {
	catalog := &fakeCatalog{candidates: []domain.CatalogEntry{
		{ID: "e1", Title: "Gartenschlauch 25m"},
	}}
	m := NewSemanticMatcher(catalog, &hashEmbedder{dims: 64}, nil, SemanticConfig{MinScore: 0.80, CandidateLimit: 50})
	nl := NewNormalizer().Normalize(domain.SourceListing{
		ID:       "l1",
		Title:    "Grafikkarte RTX 4070 12GB",
		Category: "misc",
	})

	cand, err := m.Match(context.Background(), nl)
	assert.NoError(t, err)
	assert.Nil(t, cand)
}

func TestSemanticMatcherEmbedderFailureIsDependency(t *testing.T) {
	catalog := &fakeCatalog{candidates: []domain.CatalogEntry{{ID: "e1", Title: "x"}}}
	m := NewSemanticMatcher(catalog, &failingEmbedder{}, nil, SemanticConfig{MinScore: 0.80, CandidateLimit: 50})
	nl := NewNormalizer().Normalize(domain.SourceListing{ID: "l1", Title: "anything", Category: "c"})

	cand, err := m.Match(context.Background(), nl)
	assert.Nil(t, cand)
	require.Error(t, err)
	assert.True(t, domain.IsDependency(err))
}

func TestSemanticBatchedEqualsUnbatched(t *testing.T) {
	catalog := &fakeCatalog{candidates: []domain.CatalogEntry{
		{ID: "a", Title: "Elektrische Zahnbürste weiß"},
		{ID: "b", Title: "Akku Staubsauger beutellos"},
		{ID: "c", Title: "Zahnbürste elektrisch mit Timer weiß"},
	}}
	cfg := SemanticConfig{MinScore: 0.5, CandidateLimit: 50}
	listings := []domain.SourceListing{
		{ID: "l1", Title: "Zahnbürste elektrisch weiß", Category: "care"},
		{ID: "l2", Title: "Staubsauger Akku beutellos", Category: "home"},
	}
	n := NewNormalizer()

	// Single path: one matcher per listing, embedder called per listing.
	single := make(map[string]string)
	for _, l := range listings {
		m := NewSemanticMatcher(catalog, &hashEmbedder{dims: 64}, nil, cfg)
		cand, err := m.Match(context.Background(), n.Normalize(l))
		require.NoError(t, err)
		require.NotNil(t, cand)
		single[l.ID] = cand.EntryID
	}

	// Batched path: collect every text first, embed once, then score purely.
	emb := &hashEmbedder{dims: 64}
	m := NewSemanticMatcher(catalog, emb, nil, cfg)
	type pending struct {
		nl      NormalizedListing
		entries []domain.CatalogEntry
		offset  int
		count   int
	}
	var all []string
	var batch []pending
	for _, l := range listings {
		nl := n.Normalize(l)
		entries, texts, err := m.Candidates(context.Background(), nl)
		require.NoError(t, err)
		batch = append(batch, pending{nl: nl, entries: entries, offset: len(all), count: len(texts)})
		all = append(all, texts...)
	}
	vecs, err := m.Embed(context.Background(), all)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls, "one embedder round trip for the whole batch")

	for _, p := range batch {
		cand, err := m.Select(p.nl, p.entries, vecs[p.offset:p.offset+p.count])
		require.NoError(t, err)
		require.NotNil(t, cand)
		assert.Equal(t, single[p.nl.Listing.ID], cand.EntryID, "batching must not change the outcome")
	}
}

func TestSemanticEmbedUsesCache(t *testing.T) {
	emb := &hashEmbedder{dims: 8}
	cache := &fakeEmbeddingCache{store: map[string][]float32{
		"cached text": {1, 0, 0, 0, 0, 0, 0, 0},
	}}
	m := NewSemanticMatcher(&fakeCatalog{}, emb, cache, SemanticConfig{MinScore: 0.8, CandidateLimit: 10})

	vecs, err := m.Embed(context.Background(), []string{"cached text", "fresh text"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0, 0, 0, 0, 0, 0, 0}, vecs[0])
	assert.Equal(t, []string{"fresh text"}, emb.texts, "only the miss reaches the embedder")
	assert.Contains(t, cache.store, "fresh text", "miss written back")
}

type failingEmbedder struct{}

func (failingEmbedder) Dimensions() int { return 8 }
func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("service unavailable")
}

type fakeEmbeddingCache struct {
	store map[string][]float32
}

func (c *fakeEmbeddingCache) Get(_ context.Context, text string) ([]float32, error) {
	return c.store[text], nil
}

func (c *fakeEmbeddingCache) Set(_ context.Context, text string, vec []float32) error {
	c.store[text] = vec
	return nil
}

func (c *fakeEmbeddingCache) GetBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = c.store[t]
	}
	return out, nil
}
