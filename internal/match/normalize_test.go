package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmiguens/arbscout/internal/domain"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase and punctuation", "Apple iPhone 15 Pro (128GB) - Titan!", "apple iphone 15 pro 128gb titan"},
		{"diacritics folded", "Café Crème Série 300", "cafe creme serie 300"},
		{"stop words removed", "Samsung Galaxy S24 NEU OVP Angebot", "samsung galaxy s24"},
		{"whitespace collapsed", "  Sony   WH-1000XM5  ", "sony wh 1000xm5"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestNormalizerBuildsTokenSet(t *testing.T) {
	n := NewNormalizer()
	nl := n.Normalize(domain.SourceListing{
		ID:    "l1",
		Title: "LEGO Star Wars Star Destroyer",
		Brand: "LEGO",
	})
	assert.Equal(t, []string{"destroyer", "lego", "star", "wars"}, nl.Tokens, "tokens sorted and deduped")
	assert.Equal(t, "lego", nl.Brand)
	assert.Empty(t, nl.EAN)
}

func TestNormalizerInvalidEANIsAbsentNotError(t *testing.T) {
	n := NewNormalizer()
	nl := n.Normalize(domain.SourceListing{ID: "l1", Title: "x", EAN: "4006381333932"})
	assert.Empty(t, nl.EAN, "bad checksum drops the identifier")
}
