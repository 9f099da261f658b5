package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmiguens/arbscout/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testBands(t *testing.T) []Band {
	t.Helper()
	bands, err := DefaultBands("200.00", 50, "75.00", 30, "30.00", 15, "10.00", 5)
	require.NoError(t, err)
	return bands
}

func testConfig(t *testing.T) Config {
	return Config{
		Bands:         testBands(t),
		DedupEpsilon:  dec("1.00"),
		DedupWindow:   6 * time.Hour,
		SignalChannel: "alerts",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOppCache scripts the dedup decision.
type fakeOppCache struct {
	decision domain.AlertDecision
	err      error
	released []string
	reserved []string
}

func (f *fakeOppCache) Reserve(_ context.Context, pairKey, _, _ string, _ time.Duration) (domain.AlertDecision, error) {
	f.reserved = append(f.reserved, pairKey)
	return f.decision, f.err
}

func (f *fakeOppCache) Release(_ context.Context, pairKey string) error {
	f.released = append(f.released, pairKey)
	return nil
}

// memOppCache mirrors the Redis reservation semantics in memory: profit kept
// per pair, suppress on a sub-epsilon delta, supersede otherwise.
type memOppCache struct {
	profits  map[string]decimal.Decimal
	released []string
}

func newMemOppCache() *memOppCache {
	return &memOppCache{profits: map[string]decimal.Decimal{}}
}

func (c *memOppCache) Reserve(_ context.Context, pairKey, netProfit, epsilon string, _ time.Duration) (domain.AlertDecision, error) {
	np := decimal.RequireFromString(netProfit)
	prior, ok := c.profits[pairKey]
	if !ok {
		c.profits[pairKey] = np
		return domain.AlertCreate, nil
	}
	if np.Sub(prior).Abs().LessThan(decimal.RequireFromString(epsilon)) {
		return domain.AlertSuppress, nil
	}
	c.profits[pairKey] = np
	return domain.AlertSupersede, nil
}

func (c *memOppCache) Release(_ context.Context, pairKey string) error {
	c.released = append(c.released, pairKey)
	delete(c.profits, pairKey)
	return nil
}

// fakeOppStore records writes and keeps the open record per pair, enforcing
// the one-open-record constraint the way the real store does.
type fakeOppStore struct {
	domain.OpportunityStore
	open         map[string]domain.Opportunity
	created      []domain.Opportunity
	superseded   []string
	createErr    error
	supersedeErr error // consumed by the next Supersede call
}

func (f *fakeOppStore) Create(_ context.Context, opp domain.Opportunity) error {
	if f.createErr != nil {
		return f.createErr
	}
	key := opp.ListingID + ":" + opp.EntryID
	if _, ok := f.open[key]; ok {
		return domain.ErrAlreadyExists
	}
	f.created = append(f.created, opp)
	if f.open == nil {
		f.open = map[string]domain.Opportunity{}
	}
	f.open[key] = opp
	return nil
}

func (f *fakeOppStore) GetOpen(_ context.Context, listingID, entryID string) (domain.Opportunity, error) {
	opp, ok := f.open[listingID+":"+entryID]
	if !ok {
		return domain.Opportunity{}, domain.ErrNotFound
	}
	return opp, nil
}

func (f *fakeOppStore) Supersede(_ context.Context, priorID string, next domain.Opportunity) error {
	if f.supersedeErr != nil {
		err := f.supersedeErr
		f.supersedeErr = nil
		return err
	}
	f.superseded = append(f.superseded, priorID)
	f.created = append(f.created, next)
	if f.open == nil {
		f.open = map[string]domain.Opportunity{}
	}
	f.open[next.ListingID+":"+next.EntryID] = next
	return nil
}

func opp(net, pct string) domain.Opportunity {
	return domain.Opportunity{
		ListingID:  "l1",
		EntryID:    "e1",
		NetProfit:  dec(net),
		ProfitPct:  dec(pct),
		Confidence: 0.9,
		Method:     domain.MatchMethodFuzzy,
		DetectedAt: time.Now().UTC(),
	}
}

func TestClassify(t *testing.T) {
	g := NewGenerator(&fakeOppCache{}, &fakeOppStore{}, nil, discardLogger(), testConfig(t))

	tests := []struct {
		name string
		net  string
		pct  string
		want domain.Severity
		ok   bool
	}{
		{"critical by absolute", "250.00", "20", domain.SeverityCritical, true},
		{"critical by percentage", "40.00", "55", domain.SeverityCritical, true},
		{"high", "80.00", "10", domain.SeverityHigh, true},
		{"medium", "35.00", "10", domain.SeverityMedium, true},
		{"low", "12.00", "6", domain.SeverityLow, true},
		{"boundary is inclusive", "200.00", "0", domain.SeverityCritical, true},
		{"below every band", "8.00", "4", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sev, ok := g.Classify(dec(tt.net), dec(tt.pct))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, sev)
		})
	}
}

func TestClassifySeverityMonotonicInProfit(t *testing.T) {
	// With the percentage held fixed, a larger profit may never classify
	// below a smaller one.
	g := NewGenerator(newMemOppCache(), &fakeOppStore{}, nil, discardLogger(), testConfig(t))

	profits := []string{"5.00", "10.00", "12.00", "30.00", "74.99", "75.00", "120.00", "200.00", "450.00"}
	prevRank := 0
	for _, p := range profits {
		sev, ok := g.Classify(dec(p), dec("0"))
		rank := 0
		if ok {
			rank = sev.Rank()
		}
		assert.GreaterOrEqual(t, rank, prevRank, "profit %s ranked below a smaller profit", p)
		prevRank = rank
	}
}

func TestEmitCreates(t *testing.T) {
	cache := &fakeOppCache{decision: domain.AlertCreate}
	store := &fakeOppStore{}
	g := NewGenerator(cache, store, nil, discardLogger(), testConfig(t))

	decision, err := g.Emit(context.Background(), opp("121.10", "40.5"))
	require.NoError(t, err)
	assert.Equal(t, domain.AlertCreate, decision)
	require.Len(t, store.created, 1)
	assert.Equal(t, domain.SeverityHigh, store.created[0].Severity)
	assert.NotEmpty(t, store.created[0].ID)
	assert.Equal(t, []string{"l1:e1"}, cache.reserved)
}

func TestEmitSuppressesDuplicate(t *testing.T) {
	cache := &fakeOppCache{decision: domain.AlertSuppress}
	store := &fakeOppStore{}
	g := NewGenerator(cache, store, nil, discardLogger(), testConfig(t))

	decision, err := g.Emit(context.Background(), opp("121.10", "40.5"))
	require.NoError(t, err)
	assert.Equal(t, domain.AlertSuppress, decision)
	assert.Empty(t, store.created, "suppression writes nothing")
}

func TestEmitSupersedes(t *testing.T) {
	cache := &fakeOppCache{decision: domain.AlertSupersede}
	store := &fakeOppStore{open: map[string]domain.Opportunity{
		"l1:e1": {ID: "prior-1", ListingID: "l1", EntryID: "e1"},
	}}
	g := NewGenerator(cache, store, nil, discardLogger(), testConfig(t))

	decision, err := g.Emit(context.Background(), opp("300.00", "60"))
	require.NoError(t, err)
	assert.Equal(t, domain.AlertSupersede, decision)
	assert.Equal(t, []string{"prior-1"}, store.superseded)
	require.Len(t, store.created, 1)
	assert.Equal(t, domain.SeverityCritical, store.created[0].Severity)
}

func TestEmitSupersedeWithoutOpenRecordFallsBackToCreate(t *testing.T) {
	cache := &fakeOppCache{decision: domain.AlertSupersede}
	store := &fakeOppStore{}
	g := NewGenerator(cache, store, nil, discardLogger(), testConfig(t))

	decision, err := g.Emit(context.Background(), opp("121.10", "40.5"))
	require.NoError(t, err)
	assert.Equal(t, domain.AlertCreate, decision)
	require.Len(t, store.created, 1)
}

func TestEmitSupersedeFailureDoesNotSuppressRetry(t *testing.T) {
	// A transient store failure after the reservation must not leave the
	// cache holding a profit that was never persisted: the next pass would
	// then see a sub-epsilon delta and suppress materially changed pricing.
	cache := newMemOppCache()
	store := &fakeOppStore{
		open: map[string]domain.Opportunity{
			"l1:e1": {ID: "prior-1", ListingID: "l1", EntryID: "e1", NetProfit: dec("50.00")},
		},
		supersedeErr: errors.New("connection reset"),
	}
	_, err := cache.Reserve(context.Background(), "l1:e1", "50.00", "1.00", time.Hour)
	require.NoError(t, err)
	g := NewGenerator(cache, store, nil, discardLogger(), testConfig(t))

	_, err = g.Emit(context.Background(), opp("300.00", "60"))
	require.Error(t, err)
	assert.True(t, domain.IsDependency(err))
	assert.Equal(t, []string{"l1:e1"}, cache.released, "failed supersede must free the pair")
	assert.Empty(t, store.superseded)

	decision, err := g.Emit(context.Background(), opp("300.00", "60"))
	require.NoError(t, err)
	assert.Equal(t, domain.AlertSupersede, decision)
	assert.Equal(t, []string{"prior-1"}, store.superseded)
	assert.True(t, store.open["l1:e1"].NetProfit.Equal(dec("300.00")),
		"retry must persist the observed profit")
}

func TestEmitBelowBandsDropped(t *testing.T) {
	cache := &fakeOppCache{decision: domain.AlertCreate}
	store := &fakeOppStore{}
	g := NewGenerator(cache, store, nil, discardLogger(), testConfig(t))

	decision, err := g.Emit(context.Background(), opp("5.00", "2"))
	require.NoError(t, err)
	assert.Empty(t, decision)
	assert.Empty(t, cache.reserved, "dedup not consulted for dropped opportunities")
	assert.Empty(t, store.created)
}

func TestEmitReleasesReservationOnStoreFailure(t *testing.T) {
	cache := &fakeOppCache{decision: domain.AlertCreate}
	store := &fakeOppStore{createErr: errors.New("constraint violation")}
	g := NewGenerator(cache, store, nil, discardLogger(), testConfig(t))

	_, err := g.Emit(context.Background(), opp("121.10", "40.5"))
	require.Error(t, err)
	assert.True(t, domain.IsDependency(err))
	assert.Equal(t, []string{"l1:e1"}, cache.released, "failed write must free the pair")
}
