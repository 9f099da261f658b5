package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmiguens/arbscout/internal/alert"
	"github.com/dmiguens/arbscout/internal/analyze"
	"github.com/dmiguens/arbscout/internal/domain"
)

// OpportunityService scores matched listings and drives the alert lifecycle.
type OpportunityService struct {
	analyzer  *analyze.Analyzer
	generator *alert.Generator
	opps      domain.OpportunityStore
	events    domain.AuditStore
	logger    *slog.Logger
}

// NewOpportunityService creates an OpportunityService with all required
// dependencies.
func NewOpportunityService(
	analyzer *analyze.Analyzer,
	generator *alert.Generator,
	opps domain.OpportunityStore,
	events domain.AuditStore,
	logger *slog.Logger,
) *OpportunityService {
	return &OpportunityService{
		analyzer:  analyzer,
		generator: generator,
		opps:      opps,
		events:    events,
		logger:    logger,
	}
}

// Process scores one matched listing and, when the profit model and a
// severity band both accept it, emits the alert decision. It returns the
// decision taken: empty when the opportunity was rejected by the profit
// model or fell below every band.
func (s *OpportunityService) Process(ctx context.Context, listing domain.SourceListing, cand domain.MatchCandidate) (domain.AlertDecision, error) {
	opp, ok, err := s.analyzer.Score(ctx, listing, cand)
	if err != nil {
		if domain.IsDataQuality(err) {
			s.logger.DebugContext(ctx, "opportunity_service: scoring refused",
				slog.String("listing_id", listing.ID),
				slog.String("entry_id", cand.EntryID),
				slog.String("reason", err.Error()),
			)
			if logErr := s.events.Log(ctx, "analyze.data_quality", map[string]any{
				"listing_id": listing.ID,
				"entry_id":   cand.EntryID,
				"reason":     err.Error(),
			}); logErr != nil {
				s.logger.WarnContext(ctx, "opportunity_service: event log failed",
					slog.String("error", logErr.Error()),
				)
			}
			return "", nil
		}
		return "", fmt.Errorf("score listing %s: %w", listing.ID, err)
	}
	if !ok {
		return "", nil
	}

	decision, err := s.generator.Emit(ctx, opp)
	if err != nil {
		return "", fmt.Errorf("emit alert for pair %s: %w", opp.PairKey(), err)
	}

	if decision != "" && decision != domain.AlertSuppress {
		s.logger.InfoContext(ctx, "opportunity recorded",
			slog.String("pair", opp.PairKey()),
			slog.String("decision", string(decision)),
			slog.String("severity", string(opp.Severity)),
			slog.String("net_profit", opp.NetProfit.String()),
			slog.String("method", string(opp.Method)),
		)
	}
	return decision, nil
}

// ExpireUnseen closes open opportunities whose listing has not been observed
// within staleAfter, and records the sweep in the event log.
func (s *OpportunityService) ExpireUnseen(ctx context.Context, staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)

	n, err := s.opps.ExpireUnseen(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire unseen opportunities: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	s.logger.InfoContext(ctx, "expired stale opportunities",
		slog.Int64("count", n),
		slog.Time("cutoff", cutoff),
	)
	if err := s.events.Log(ctx, "opportunity.expired", map[string]any{
		"count":  n,
		"cutoff": cutoff.Format(time.RFC3339),
	}); err != nil {
		s.logger.WarnContext(ctx, "opportunity_service: event log failed",
			slog.String("error", err.Error()),
		)
	}
	return n, nil
}
