package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogEntry is a product record from the target marketplace catalog. It is
// supplied by the catalog collaborator and is immutable from the core's
// perspective.
type CatalogEntry struct {
	ID          string // marketplace-assigned identifier
	Title       string
	Brand       string
	Category    string
	Marketplace string // marketplace code, e.g. "DE", "ES"
	EAN         string // normalized trade identifier when known
	// ReferencePrice is the marketplace's last observed listing price. It is
	// only used for tie-breaking between near-equal fuzzy candidates.
	ReferencePrice decimal.Decimal
	UpdatedAt      time.Time
}

// PriceSample is a single observed (timestamp, price) point for a catalog
// entry.
type PriceSample struct {
	ObservedAt time.Time
	Price      decimal.Decimal
}

// PriceSeries is the ordered price history for a CatalogEntry over a trailing
// window, oldest sample first, plus aggregates derived from the samples.
type PriceSeries struct {
	EntryID string
	Samples []PriceSample
	Average decimal.Decimal
	Min     decimal.Decimal
	Max     decimal.Decimal
}

// Len returns the number of samples in the series.
func (ps PriceSeries) Len() int { return len(ps.Samples) }

// Recompute recalculates Average, Min and Max from Samples. It is a no-op on
// an empty series.
func (ps *PriceSeries) Recompute() {
	if len(ps.Samples) == 0 {
		return
	}
	sum := decimal.Zero
	minP := ps.Samples[0].Price
	maxP := ps.Samples[0].Price
	for _, s := range ps.Samples {
		sum = sum.Add(s.Price)
		if s.Price.LessThan(minP) {
			minP = s.Price
		}
		if s.Price.GreaterThan(maxP) {
			maxP = s.Price
		}
	}
	ps.Average = sum.Div(decimal.NewFromInt(int64(len(ps.Samples))))
	ps.Min = minP
	ps.Max = maxP
}
