// Package alert classifies scored opportunities into severity bands and
// enforces the one-live-record-per-pair dedup contract before persisting.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmiguens/arbscout/internal/domain"
)

// Band is one severity threshold: an opportunity qualifies when its net
// profit reaches MinAbs or its profit percentage reaches MinPct.
type Band struct {
	Severity domain.Severity
	MinAbs   decimal.Decimal
	MinPct   decimal.Decimal
}

// Config holds the severity table and dedup parameters.
type Config struct {
	// Bands ordered most severe first; the first qualifying band wins.
	Bands         []Band
	DedupEpsilon  decimal.Decimal
	DedupWindow   time.Duration
	SignalChannel string
	SignalStream  string
}

// Generator owns the alert lifecycle for scored opportunities: severity
// classification, atomic dedup against the open-opportunity set, persistence
// and event publication.
type Generator struct {
	cache domain.OpenOpportunityCache
	store domain.OpportunityStore
	bus   domain.SignalBus // nil disables event publication
	log   *slog.Logger
	cfg   Config
}

func NewGenerator(cache domain.OpenOpportunityCache, store domain.OpportunityStore, bus domain.SignalBus, log *slog.Logger, cfg Config) *Generator {
	return &Generator{
		cache: cache,
		store: store,
		bus:   bus,
		log:   log.With(slog.String("component", "alert")),
		cfg:   cfg,
	}
}

// Classify returns the severity band for a profit figure, highest band first.
// ok is false when the opportunity clears no band and must be dropped.
func (g *Generator) Classify(netProfit, profitPct decimal.Decimal) (domain.Severity, bool) {
	for _, b := range g.cfg.Bands {
		if netProfit.GreaterThanOrEqual(b.MinAbs) || profitPct.GreaterThanOrEqual(b.MinPct) {
			return b.Severity, true
		}
	}
	return "", false
}

// Emit runs the full alert decision for one scored opportunity. The returned
// decision is empty when the opportunity fell below every severity band.
// Suppressed opportunities produce no writes. Create and supersede both
// persist a fresh record; supersession additionally closes the prior record
// without deleting it.
func (g *Generator) Emit(ctx context.Context, opp domain.Opportunity) (domain.AlertDecision, error) {
	sev, ok := g.Classify(opp.NetProfit, opp.ProfitPct)
	if !ok {
		g.log.Debug("below severity floor",
			slog.String("pair", opp.PairKey()),
			slog.String("net_profit", opp.NetProfit.String()))
		return "", nil
	}
	opp.Severity = sev
	opp.Status = domain.OpportunityStatusOpen
	if opp.ID == "" {
		opp.ID = uuid.NewString()
	}

	decision, err := g.cache.Reserve(ctx, opp.PairKey(), opp.NetProfit.String(), g.cfg.DedupEpsilon.String(), g.cfg.DedupWindow)
	if err != nil {
		return "", &domain.DependencyError{Dependency: "opportunity-cache", Err: err}
	}

	switch decision {
	case domain.AlertSuppress:
		g.log.Debug("duplicate suppressed", slog.String("pair", opp.PairKey()))
		return decision, nil

	case domain.AlertCreate:
		err := g.store.Create(ctx, opp)
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			// The store still holds an open record the cache lost track of,
			// e.g. after a failed supersede released the reservation. Close
			// it and insert the replacement.
			prior, getErr := g.store.GetOpen(ctx, opp.ListingID, opp.EntryID)
			if getErr != nil {
				g.release(ctx, opp.PairKey())
				return "", &domain.DependencyError{Dependency: "opportunity-store", Err: getErr}
			}
			decision = domain.AlertSupersede
			if err := g.store.Supersede(ctx, prior.ID, opp); err != nil {
				g.release(ctx, opp.PairKey())
				return "", &domain.DependencyError{Dependency: "opportunity-store", Err: err}
			}
		case err != nil:
			g.release(ctx, opp.PairKey())
			return "", &domain.DependencyError{Dependency: "opportunity-store", Err: err}
		}

	case domain.AlertSupersede:
		prior, err := g.store.GetOpen(ctx, opp.ListingID, opp.EntryID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// Cache said supersede but the store has no open record: recover
			// by creating.
			decision = domain.AlertCreate
			if err := g.store.Create(ctx, opp); err != nil {
				g.release(ctx, opp.PairKey())
				return "", &domain.DependencyError{Dependency: "opportunity-store", Err: err}
			}
		case err != nil:
			// Reserve has already recorded the new profit. Drop the
			// reservation so a retry is not suppressed against a value that
			// was never persisted.
			g.release(ctx, opp.PairKey())
			return "", &domain.DependencyError{Dependency: "opportunity-store", Err: err}
		default:
			if err := g.store.Supersede(ctx, prior.ID, opp); err != nil {
				g.release(ctx, opp.PairKey())
				return "", &domain.DependencyError{Dependency: "opportunity-store", Err: err}
			}
		}

	default:
		return "", &domain.DependencyError{
			Dependency: "opportunity-cache",
			Err:        fmt.Errorf("unknown decision %q", decision),
		}
	}

	g.publish(ctx, decision, opp)
	g.log.Info("opportunity recorded",
		slog.String("pair", opp.PairKey()),
		slog.String("decision", string(decision)),
		slog.String("severity", string(opp.Severity)),
		slog.String("net_profit", opp.NetProfit.String()))
	return decision, nil
}

func (g *Generator) release(ctx context.Context, pairKey string) {
	if err := g.cache.Release(ctx, pairKey); err != nil {
		g.log.Warn("cache release failed", slog.String("pair", pairKey), slog.String("error", err.Error()))
	}
}

// alertEvent is the wire payload published for downstream delivery consumers.
type alertEvent struct {
	ID         string          `json:"id"`
	Decision   string          `json:"decision"`
	ListingID  string          `json:"listing_id"`
	EntryID    string          `json:"entry_id"`
	Severity   string          `json:"severity"`
	Method     string          `json:"method"`
	NetProfit  decimal.Decimal `json:"net_profit"`
	ProfitPct  decimal.Decimal `json:"profit_pct"`
	Confidence float64         `json:"confidence"`
	DetectedAt time.Time       `json:"detected_at"`
}

// publish is best effort: a dead bus must never undo a persisted record.
func (g *Generator) publish(ctx context.Context, decision domain.AlertDecision, opp domain.Opportunity) {
	if g.bus == nil {
		return
	}
	payload, err := json.Marshal(alertEvent{
		ID:         opp.ID,
		Decision:   string(decision),
		ListingID:  opp.ListingID,
		EntryID:    opp.EntryID,
		Severity:   string(opp.Severity),
		Method:     string(opp.Method),
		NetProfit:  opp.NetProfit,
		ProfitPct:  opp.ProfitPct,
		Confidence: opp.Confidence,
		DetectedAt: opp.DetectedAt,
	})
	if err != nil {
		return
	}
	if err := g.bus.Publish(ctx, g.cfg.SignalChannel, payload); err != nil {
		g.log.Warn("alert publish failed", slog.String("error", err.Error()))
	}
	if g.cfg.SignalStream != "" {
		if err := g.bus.StreamAppend(ctx, g.cfg.SignalStream, payload); err != nil {
			g.log.Warn("alert stream append failed", slog.String("error", err.Error()))
		}
	}
}

// DefaultBands builds the standard severity table from decimal threshold
// strings, most severe first.
func DefaultBands(criticalAbs string, criticalPct float64, highAbs string, highPct float64, mediumAbs string, mediumPct float64, lowAbs string, lowPct float64) ([]Band, error) {
	mk := func(sev domain.Severity, abs string, pct float64) (Band, error) {
		a, err := decimal.NewFromString(abs)
		if err != nil {
			return Band{}, fmt.Errorf("alert: bad threshold %q for %s: %w", abs, sev, err)
		}
		return Band{Severity: sev, MinAbs: a, MinPct: decimal.NewFromFloat(pct)}, nil
	}
	var bands []Band
	for _, spec := range []struct {
		sev domain.Severity
		abs string
		pct float64
	}{
		{domain.SeverityCritical, criticalAbs, criticalPct},
		{domain.SeverityHigh, highAbs, highPct},
		{domain.SeverityMedium, mediumAbs, mediumPct},
		{domain.SeverityLow, lowAbs, lowPct},
	} {
		b, err := mk(spec.sev, spec.abs, spec.pct)
		if err != nil {
			return nil, err
		}
		bands = append(bands, b)
	}
	return bands, nil
}
