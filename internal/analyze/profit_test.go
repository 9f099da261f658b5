package analyze

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmiguens/arbscout/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeHistory replays a fixed series per entry.
type fakeHistory struct {
	series map[string]domain.PriceSeries
	err    error
}

func (f *fakeHistory) TrailingWindow(_ context.Context, entryID string, _ int) (domain.PriceSeries, error) {
	if f.err != nil {
		return domain.PriceSeries{}, f.err
	}
	return f.series[entryID], nil
}

func seriesOf(entryID string, prices ...string) domain.PriceSeries {
	s := domain.PriceSeries{EntryID: entryID}
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range prices {
		s.Samples = append(s.Samples, domain.PriceSample{
			ObservedAt: base.Add(time.Duration(i) * 24 * time.Hour),
			Price:      dec(p),
		})
	}
	s.Recompute()
	return s
}

func testConfig() Config {
	return Config{
		HistoryWindow:  30,
		MinPricePoints: 5,
		FeePercentage:  dec("15"),
		ShippingCost:   dec("4.90"),
	}
}

func TestScoreProfitable(t *testing.T) {
	// Target averages 500.00; fee 75.00, shipping 4.90, buy at 299.00:
	// net = 500 - 299 - 75 - 4.90 = 121.10.
	hist := &fakeHistory{series: map[string]domain.PriceSeries{
		"e1": seriesOf("e1", "480.00", "490.00", "500.00", "510.00", "520.00"),
	}}
	a := New(hist, testConfig())
	listing := domain.SourceListing{
		ID:            "l1",
		Price:         dec("299.00"),
		OriginalPrice: dec("598.00"),
		ObservedAt:    time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
	cand := domain.MatchCandidate{ListingID: "l1", EntryID: "e1", Confidence: 0.95, Method: domain.MatchMethodExact}

	opp, ok, err := a.Score(context.Background(), listing, cand)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, opp.NetProfit.Equal(dec("121.10")), "net = %s", opp.NetProfit)
	assert.True(t, opp.TargetAvgPrice.Equal(dec("500.00")), "avg = %s", opp.TargetAvgPrice)
	assert.True(t, opp.DiscountPct.Equal(dec("50")), "discount = %s", opp.DiscountPct)
	assert.Equal(t, 0.95, opp.Confidence)
	assert.Equal(t, domain.OpportunityStatusOpen, opp.Status)
	assert.Equal(t, listing.ObservedAt, opp.LastObservedAt)
}

func TestScoreUnprofitableIsRejectionNotError(t *testing.T) {
	hist := &fakeHistory{series: map[string]domain.PriceSeries{
		"e1": seriesOf("e1", "100", "100", "100", "100", "100"),
	}}
	a := New(hist, testConfig())
	listing := domain.SourceListing{ID: "l1", Price: dec("95.00")}
	cand := domain.MatchCandidate{EntryID: "e1"}

	// net = 100 - 95 - 15 - 4.90 < 0
	_, ok, err := a.Score(context.Background(), listing, cand)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestScoreThinHistoryIsDataQuality(t *testing.T) {
	// Two samples only: below the five-point floor, so no verdict.
	hist := &fakeHistory{series: map[string]domain.PriceSeries{
		"e1": seriesOf("e1", "100", "110"),
	}}
	a := New(hist, testConfig())
	listing := domain.SourceListing{ID: "l1", Price: dec("50.00")}

	_, ok, err := a.Score(context.Background(), listing, domain.MatchCandidate{EntryID: "e1"})
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, domain.IsDataQuality(err))
}

func TestScoreHistoryStoreFailureIsDependency(t *testing.T) {
	hist := &fakeHistory{err: errors.New("timeout")}
	a := New(hist, testConfig())
	listing := domain.SourceListing{ID: "l1", Price: dec("50.00")}

	_, ok, err := a.Score(context.Background(), listing, domain.MatchCandidate{EntryID: "e1"})
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, domain.IsDependency(err))
}

func TestScoreMinNetProfitFloor(t *testing.T) {
	cfg := testConfig()
	cfg.MinNetProfit = dec("10.00")
	hist := &fakeHistory{series: map[string]domain.PriceSeries{
		"e1": seriesOf("e1", "100", "100", "100", "100", "100"),
	}}
	a := New(hist, cfg)

	// net = 100 - 75 - 15 - 4.90 = 5.10, positive but under the floor.
	_, ok, err := a.Score(context.Background(), domain.SourceListing{ID: "l1", Price: dec("75.00")}, domain.MatchCandidate{EntryID: "e1"})
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestDiscountPct(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		original string
		want     string
	}{
		{"half off", "50", "100", "50"},
		{"no original price", "50", "0", "0"},
		{"price above original clamps to zero", "120", "100", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := domain.SourceListing{Price: dec(tt.price), OriginalPrice: dec(tt.original)}
			assert.True(t, discountPct(l).Equal(dec(tt.want)), "got %s", discountPct(l))
		})
	}
}
