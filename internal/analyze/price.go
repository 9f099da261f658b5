// Package analyze turns a matched listing into a profit-scored opportunity:
// trailing-window price statistics on the target marketplace plus a net-profit
// model over fees and shipping. All money math is fixed-point decimal.
package analyze

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dmiguens/arbscout/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// targetAverage fetches the trailing price window for an entry and validates
// it carries enough samples to be trustworthy.
func (a *Analyzer) targetAverage(ctx context.Context, listingID, entryID string) (decimal.Decimal, error) {
	series, err := a.history.TrailingWindow(ctx, entryID, a.cfg.HistoryWindow)
	if err != nil {
		return decimal.Zero, &domain.DependencyError{Dependency: "price-history", Err: err}
	}
	if series.Len() < a.cfg.MinPricePoints {
		return decimal.Zero, &domain.DataQualityError{
			Reason:    "insufficient price history",
			ListingID: listingID,
			EntryID:   entryID,
		}
	}
	if !series.Average.IsPositive() {
		return decimal.Zero, &domain.DataQualityError{
			Reason:    "non-positive trailing average",
			ListingID: listingID,
			EntryID:   entryID,
		}
	}
	return series.Average, nil
}

// discountPct computes the listing's advertised discount against its own
// pre-discount price, clamped to [0, 100]. A missing or non-positive original
// price yields zero rather than an error.
func discountPct(l domain.SourceListing) decimal.Decimal {
	if !l.HasOriginalPrice() {
		return decimal.Zero
	}
	pct := l.OriginalPrice.Sub(l.Price).Div(l.OriginalPrice).Mul(hundred)
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}
