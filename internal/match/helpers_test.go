package match

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/dmiguens/arbscout/internal/domain"
)

// fakeCatalog is an in-memory CatalogStore for matcher tests.
type fakeCatalog struct {
	byEAN      map[string][]domain.CatalogEntry
	candidates []domain.CatalogEntry
	eanErr     error
	candErr    error
	eanCalls   int
	candCalls  int
}

func (f *fakeCatalog) GetByEAN(_ context.Context, ean string) ([]domain.CatalogEntry, error) {
	f.eanCalls++
	if f.eanErr != nil {
		return nil, f.eanErr
	}
	return f.byEAN[ean], nil
}

func (f *fakeCatalog) ListCandidates(_ context.Context, _, brand string, limit int) ([]domain.CatalogEntry, error) {
	f.candCalls++
	if f.candErr != nil {
		return nil, f.candErr
	}
	out := f.candidates
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCatalog) GetByID(_ context.Context, id string) (domain.CatalogEntry, error) {
	for _, e := range f.candidates {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.CatalogEntry{}, domain.ErrNotFound
}

// hashEmbedder is a deterministic toy embedder: each token contributes a
// pseudo-random unit direction derived from its hash, so similar token sets
// produce similar vectors regardless of batching.
type hashEmbedder struct {
	dims  int
	calls int
	texts []string
}

func (h *hashEmbedder) Dimensions() int { return h.dims }

func (h *hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	h.calls++
	h.texts = append(h.texts, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.embedOne(t)
	}
	return out, nil
}

func (h *hashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, h.dims)
	for _, tok := range tokenSet(NormalizeText(text)) {
		for d := 0; d < h.dims; d++ {
			hash := fnv.New32a()
			fmt.Fprintf(hash, "%s:%d", tok, d)
			vec[d] += float32(int32(hash.Sum32()%2001)-1000) / 1000
		}
	}
	return vec
}
