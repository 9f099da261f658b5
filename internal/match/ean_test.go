package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmiguens/arbscout/internal/domain"
)

func TestNormalizeEAN(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"valid ean13", "4006381333931", "4006381333931", true},
		{"ean13 bad check digit", "4006381333932", "", false},
		{"valid ean8", "73513537", "73513537", true},
		{"upca padded to ean13", "036000291452", "0036000291452", true},
		{"separators stripped", "400-6381 333931", "4006381333931", true},
		{"too short", "12345", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeEAN(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExactMatcherUniqueHit(t *testing.T) {
	// Samsung Galaxy S24 Ultra listed with a valid identifier that resolves to
	// exactly one catalog entry.
	catalog := &fakeCatalog{
		byEAN: map[string][]domain.CatalogEntry{
			"8806095307527": {{ID: "B0CMDSSZJ8", Title: "Samsung Galaxy S24 Ultra 256GB"}},
		},
	}
	m := NewExactMatcher(catalog, 0.95)
	nl := NewNormalizer().Normalize(domain.SourceListing{
		ID:    "mm-1",
		Title: "Samsung Galaxy S24 Ultra 256GB Titanium",
		EAN:   "8806095307527",
	})

	cand, err := m.Match(context.Background(), nl)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "B0CMDSSZJ8", cand.EntryID)
	assert.Equal(t, 0.95, cand.Confidence)
	assert.Equal(t, domain.MatchMethodExact, cand.Method)
}

func TestExactMatcherCollisionRefuses(t *testing.T) {
	catalog := &fakeCatalog{
		byEAN: map[string][]domain.CatalogEntry{
			"4006381333931": {{ID: "a"}, {ID: "b"}},
		},
	}
	m := NewExactMatcher(catalog, 0.95)
	nl := NewNormalizer().Normalize(domain.SourceListing{ID: "l1", Title: "pen", EAN: "4006381333931"})

	cand, err := m.Match(context.Background(), nl)
	assert.Nil(t, cand)
	require.Error(t, err)
	assert.True(t, domain.IsDataQuality(err))
}

func TestExactMatcherNoIdentifierInconclusive(t *testing.T) {
	m := NewExactMatcher(&fakeCatalog{}, 0.95)
	nl := NewNormalizer().Normalize(domain.SourceListing{ID: "l1", Title: "no barcode"})

	cand, err := m.Match(context.Background(), nl)
	assert.NoError(t, err)
	assert.Nil(t, cand)
}
