// Package service wires the matching, analysis, and alerting cores to the
// persistence and audit layers. Services own the side effects; the cores
// underneath them stay pure.
package service

import (
	"context"
	"log/slog"

	"github.com/dmiguens/arbscout/internal/domain"
	"github.com/dmiguens/arbscout/internal/match"
)

// MatchService runs the match cascade for listings and persists the audit
// trail. The semantic stage is handed out separately so the batch runner can
// split it off and batch embeddings across listings.
type MatchService struct {
	cascade  *match.Cascade
	semantic *match.SemanticMatcher
	audit    domain.MatchAuditStore
	events   domain.AuditStore
	logger   *slog.Logger
}

// NewMatchService creates a MatchService. The cascade must contain the
// lexical stages only (exact, fuzzy); semantic may be nil when the embedding
// stage is disabled.
func NewMatchService(
	cascade *match.Cascade,
	semantic *match.SemanticMatcher,
	audit domain.MatchAuditStore,
	events domain.AuditStore,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		cascade:  cascade,
		semantic: semantic,
		audit:    audit,
		events:   events,
		logger:   logger,
	}
}

// Prepare normalizes a listing once so both the lexical and the semantic
// phase work from the same form.
func (s *MatchService) Prepare(listing domain.SourceListing) match.NormalizedListing {
	return s.cascade.Normalize(listing)
}

// ResolveLexical walks the exact and fuzzy stages for an already-normalized
// listing. An unmatched result here is provisional when a semantic stage is
// configured; the runner feeds those listings into the batched semantic pass.
func (s *MatchService) ResolveLexical(ctx context.Context, nl match.NormalizedListing) domain.MatchResult {
	return s.cascade.ResolvePrepared(ctx, nl)
}

// Semantic returns the semantic stage, or nil when embeddings are disabled.
func (s *MatchService) Semantic() *match.SemanticMatcher {
	return s.semantic
}

// Record persists a listing's verdict: the candidate goes to the match audit
// table, data-quality warnings to the event log. Audit persistence is best
// effort; a failed write is logged and never turns a verdict into a failure.
func (s *MatchService) Record(ctx context.Context, res domain.MatchResult) {
	if res.Outcome == domain.OutcomeMatched {
		if err := s.audit.Record(ctx, res.Candidate); err != nil {
			s.logger.WarnContext(ctx, "match_service: audit record failed",
				slog.String("listing_id", res.ListingID),
				slog.String("entry_id", res.Candidate.EntryID),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, warning := range res.Warnings {
		if err := s.events.Log(ctx, "match.data_quality", map[string]any{
			"listing_id": res.ListingID,
			"warning":    warning,
		}); err != nil {
			s.logger.WarnContext(ctx, "match_service: warning log failed",
				slog.String("listing_id", res.ListingID),
				slog.String("error", err.Error()),
			)
		}
	}

	if res.Outcome == domain.OutcomeFailed && res.Err != nil {
		s.logger.ErrorContext(ctx, "match_service: listing failed",
			slog.String("listing_id", res.ListingID),
			slog.String("error", res.Err.Error()),
		)
	}
}
