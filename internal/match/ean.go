package match

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmiguens/arbscout/internal/domain"
)

// NormalizeEAN strips non-digits from a raw identifier and validates its
// checksum. UPC-A (12 digits) is zero-padded to its EAN-13 equivalent. The
// second return is false when the identifier is absent or fails validation.
func NormalizeEAN(raw string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	switch len(digits) {
	case 8, 13:
		if checksumOK(digits) {
			return digits, true
		}
	case 12:
		if checksumOK(digits) {
			return "0" + digits, true
		}
	}
	return "", false
}

// checksumOK validates the GS1 check digit shared by EAN-8, UPC-A and EAN-13:
// data digits weighted 3 when an odd distance from the check digit, 1 when
// even.
func checksumOK(digits string) bool {
	n := len(digits)
	sum := 0
	for i := 0; i < n-1; i++ {
		d := int(digits[i] - '0')
		if (n-1-i)%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return (10-sum%10)%10 == int(digits[n-1]-'0')
}

// ExactMatcher resolves listings by validated trade identifier. A unique hit
// is the strongest possible signal and short-circuits the cascade.
type ExactMatcher struct {
	catalog    domain.CatalogStore
	confidence float64
}

func NewExactMatcher(catalog domain.CatalogStore, confidence float64) *ExactMatcher {
	return &ExactMatcher{catalog: catalog, confidence: confidence}
}

func (m *ExactMatcher) Method() domain.MatchMethod { return domain.MatchMethodExact }

// Match looks the normalized identifier up in the catalog. No identifier or
// no hit is inconclusive (nil, nil). Multiple catalog rows sharing one
// identifier is an upstream data problem the matcher refuses to guess on; it
// returns a DataQualityError so the cascade can record a warning and fall
// through to the fuzzy stage.
func (m *ExactMatcher) Match(ctx context.Context, nl NormalizedListing) (*domain.MatchCandidate, error) {
	if nl.EAN == "" {
		return nil, nil
	}
	entries, err := m.catalog.GetByEAN(ctx, nl.EAN)
	if err != nil {
		return nil, &domain.DependencyError{Dependency: "catalog", Err: err}
	}
	switch len(entries) {
	case 0:
		return nil, nil
	case 1:
		return &domain.MatchCandidate{
			ListingID:  nl.Listing.ID,
			EntryID:    entries[0].ID,
			Confidence: m.confidence,
			Method:     domain.MatchMethodExact,
			Detail:     map[string]any{"ean": nl.EAN},
			CreatedAt:  time.Now().UTC(),
		}, nil
	default:
		return nil, &domain.DataQualityError{
			Reason:    fmt.Sprintf("identifier %s maps to %d catalog entries", nl.EAN, len(entries)),
			ListingID: nl.Listing.ID,
		}
	}
}
