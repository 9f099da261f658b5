package analyze

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmiguens/arbscout/internal/domain"
)

// Config holds the analyzer's window and fee model parameters.
type Config struct {
	HistoryWindow  int
	MinPricePoints int
	// FeePercentage is the marketplace referral fee as a percentage of the
	// target sale price, e.g. 15 for 15%.
	FeePercentage decimal.Decimal
	// ShippingCost is a flat per-unit fulfilment estimate.
	ShippingCost decimal.Decimal
	// MinNetProfit rejects opportunities below this floor; zero keeps every
	// positive-profit result.
	MinNetProfit decimal.Decimal
}

// Analyzer scores matched pairs. It is stateless and safe for concurrent use.
type Analyzer struct {
	history domain.PriceHistoryStore
	cfg     Config
}

func New(history domain.PriceHistoryStore, cfg Config) *Analyzer {
	return &Analyzer{history: history, cfg: cfg}
}

// Score builds an opportunity for a matched (listing, entry) pair.
//
// net = targetAvg − sourcePrice − fee%·targetAvg − shipping
//
// ok is false when the pair is soundly analyzed but unprofitable; errors are
// reserved for data-quality and dependency problems.
func (a *Analyzer) Score(ctx context.Context, listing domain.SourceListing, cand domain.MatchCandidate) (domain.Opportunity, bool, error) {
	if !listing.Price.IsPositive() {
		return domain.Opportunity{}, false, &domain.DataQualityError{
			Reason:    "non-positive listing price",
			ListingID: listing.ID,
		}
	}

	targetAvg, err := a.targetAverage(ctx, listing.ID, cand.EntryID)
	if err != nil {
		return domain.Opportunity{}, false, err
	}

	fee := targetAvg.Mul(a.cfg.FeePercentage).Div(hundred)
	net := targetAvg.Sub(listing.Price).Sub(fee).Sub(a.cfg.ShippingCost)

	if !net.IsPositive() || net.LessThan(a.cfg.MinNetProfit) {
		return domain.Opportunity{}, false, nil
	}

	return domain.Opportunity{
		ListingID:      listing.ID,
		EntryID:        cand.EntryID,
		CurrentPrice:   listing.Price,
		TargetAvgPrice: targetAvg,
		DiscountPct:    discountPct(listing),
		NetProfit:      net,
		ProfitPct:      net.Div(listing.Price).Mul(hundred),
		Confidence:     cand.Confidence,
		Method:         cand.Method,
		Status:         domain.OpportunityStatusOpen,
		DetectedAt:     time.Now().UTC(),
		LastObservedAt: listing.ObservedAt,
	}, true, nil
}
