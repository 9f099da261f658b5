// Package pipeline drives scan runs: it pages listings out of storage,
// resolves them through the match cascade on a bounded worker pool, batches
// semantic embeddings across pending listings, and hands matches to the
// opportunity service. Listings are isolated from each other; one failure
// never aborts its siblings.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmiguens/arbscout/internal/domain"
	"github.com/dmiguens/arbscout/internal/match"
	"github.com/dmiguens/arbscout/internal/service"
)

// embedAttempts bounds how often a failed embedding batch is retried before
// the pending listings of that batch are marked failed.
const embedAttempts = 3

// embedBackoff is the initial wait between embedding retries; it doubles per
// attempt.
const embedBackoff = 500 * time.Millisecond

// Config holds the runner's concurrency and paging parameters.
type Config struct {
	// Workers is the size of the per-listing worker pool.
	Workers int
	// BatchSize is the number of listings fetched and processed per page.
	BatchSize int
}

// Summary aggregates the counts of one scan run.
type Summary struct {
	Listings   int
	Matched    int
	Unmatched  int
	Failed     int
	Created    int
	Superseded int
	Suppressed int
}

func (s *Summary) add(o Summary) {
	s.Listings += o.Listings
	s.Matched += o.Matched
	s.Unmatched += o.Unmatched
	s.Failed += o.Failed
	s.Created += o.Created
	s.Superseded += o.Superseded
	s.Suppressed += o.Suppressed
}

// Runner executes scan runs over recently observed listings.
type Runner struct {
	listings domain.ListingStore
	matches  *service.MatchService
	opps     *service.OpportunityService
	cfg      Config
	logger   *slog.Logger
}

// NewRunner creates a Runner. Workers and BatchSize are clamped to sane
// minimums.
func NewRunner(
	listings domain.ListingStore,
	matches *service.MatchService,
	opps *service.OpportunityService,
	cfg Config,
	logger *slog.Logger,
) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	return &Runner{
		listings: listings,
		matches:  matches,
		opps:     opps,
		cfg:      cfg,
		logger:   logger,
	}
}

// Scan processes every listing observed since the given time, in pages of
// BatchSize. It returns the aggregate summary; the error is non-nil only for
// paging failures or context cancellation, never for individual listings.
func (r *Runner) Scan(ctx context.Context, since time.Time) (Summary, error) {
	var sum Summary
	offset := 0

	for {
		page, err := r.listings.ListObservedSince(ctx, since, domain.ListOpts{
			Limit:  r.cfg.BatchSize,
			Offset: offset,
		})
		if err != nil {
			return sum, fmt.Errorf("list listings: %w", err)
		}
		if len(page) == 0 {
			break
		}

		sum.add(r.processBatch(ctx, page))

		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if len(page) < r.cfg.BatchSize {
			break
		}
		offset += len(page)
	}

	r.logger.InfoContext(ctx, "scan run complete",
		slog.Int("listings", sum.Listings),
		slog.Int("matched", sum.Matched),
		slog.Int("unmatched", sum.Unmatched),
		slog.Int("failed", sum.Failed),
		slog.Int("created", sum.Created),
		slog.Int("superseded", sum.Superseded),
		slog.Int("suppressed", sum.Suppressed),
	)
	return sum, nil
}

// processBatch resolves one page of listings. Phase one runs the lexical
// stages concurrently; listings those stages leave unmatched go through one
// batched semantic pass; finally every verdict is recorded and matches are
// scored.
func (r *Runner) processBatch(ctx context.Context, batch []domain.SourceListing) Summary {
	nls := make([]match.NormalizedListing, len(batch))
	for i, l := range batch {
		nls[i] = r.matches.Prepare(l)
	}

	results := make([]domain.MatchResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := range batch {
		i := i
		g.Go(func() error {
			results[i] = r.matches.ResolveLexical(gctx, nls[i])
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures live in results

	if sem := r.matches.Semantic(); sem != nil {
		r.semanticPass(ctx, sem, nls, results)
	}

	return r.finalize(ctx, batch, results)
}

// pendingSemantic is one unmatched listing's candidate set awaiting the
// batched embedding call. off locates its texts inside the combined slice.
type pendingSemantic struct {
	idx     int
	entries []domain.CatalogEntry
	texts   []string
	off     int
}

// semanticPass runs the split semantic stage for every listing the lexical
// stages left unmatched: candidate sets are fetched on the worker pool, all
// texts go to the embedder in one combined batch, and the pure selection
// step runs per listing. Combining the batch cannot change any verdict
// because the embedder is deterministic and selection only sees the
// listing's own vectors.
func (r *Runner) semanticPass(ctx context.Context, sem *match.SemanticMatcher, nls []match.NormalizedListing, results []domain.MatchResult) {
	pending := make([]*pendingSemantic, 0, len(results))
	for i, res := range results {
		if res.Outcome == domain.OutcomeUnmatched {
			pending = append(pending, &pendingSemantic{idx: i})
		}
	}
	if len(pending) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, p := range pending {
		p := p
		g.Go(func() error {
			entries, texts, err := sem.Candidates(gctx, nls[p.idx])
			if err != nil {
				res := &results[p.idx]
				res.Outcome = domain.OutcomeFailed
				res.Err = err
				return nil
			}
			p.entries = entries
			p.texts = texts
			return nil
		})
	}
	_ = g.Wait()

	var allTexts []string
	embeddable := pending[:0]
	for _, p := range pending {
		if len(p.entries) == 0 || results[p.idx].Outcome == domain.OutcomeFailed {
			continue
		}
		p.off = len(allTexts)
		allTexts = append(allTexts, p.texts...)
		embeddable = append(embeddable, p)
	}
	if len(embeddable) == 0 {
		return
	}

	vecs, err := r.embedWithRetry(ctx, sem, allTexts)
	if err != nil {
		// Phase-one verdicts stand; only the listings waiting on the
		// embedder fail, and a later run retries them.
		r.logger.ErrorContext(ctx, "embedding batch failed",
			slog.Int("listings", len(embeddable)),
			slog.String("error", err.Error()),
		)
		for _, p := range embeddable {
			res := &results[p.idx]
			res.Outcome = domain.OutcomeFailed
			res.Err = err
		}
		return
	}

	for _, p := range embeddable {
		res := &results[p.idx]
		cand, err := sem.Select(nls[p.idx], p.entries, vecs[p.off:p.off+len(p.texts)])
		if err != nil {
			if domain.IsDataQuality(err) {
				res.Warnings = append(res.Warnings, err.Error())
				continue
			}
			res.Outcome = domain.OutcomeFailed
			res.Err = err
			continue
		}
		if cand != nil {
			res.Outcome = domain.OutcomeMatched
			res.Candidate = *cand
		}
	}
}

// embedWithRetry calls the embedder with bounded exponential backoff.
func (r *Runner) embedWithRetry(ctx context.Context, sem *match.SemanticMatcher, texts []string) ([][]float32, error) {
	backoff := embedBackoff
	for attempt := 1; ; attempt++ {
		vecs, err := sem.Embed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if attempt == embedAttempts || ctx.Err() != nil {
			return nil, err
		}
		r.logger.WarnContext(ctx, "embedding batch retry",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// finalize records every verdict and scores the matches on the worker pool,
// then tallies the batch. Scoring failures count the listing as failed but
// never touch its siblings.
func (r *Runner) finalize(ctx context.Context, batch []domain.SourceListing, results []domain.MatchResult) Summary {
	decisions := make([]domain.AlertDecision, len(batch))
	procErrs := make([]error, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := range batch {
		i := i
		g.Go(func() error {
			r.matches.Record(gctx, results[i])
			if results[i].Outcome == domain.OutcomeMatched {
				decisions[i], procErrs[i] = r.opps.Process(gctx, batch[i], results[i].Candidate)
			}
			return nil
		})
	}
	_ = g.Wait()

	var sum Summary
	sum.Listings = len(batch)
	for i := range batch {
		switch results[i].Outcome {
		case domain.OutcomeMatched:
			if procErrs[i] != nil {
				sum.Failed++
				r.logger.ErrorContext(ctx, "opportunity processing failed",
					slog.String("listing_id", batch[i].ID),
					slog.String("error", procErrs[i].Error()),
				)
				continue
			}
			sum.Matched++
			switch decisions[i] {
			case domain.AlertCreate:
				sum.Created++
			case domain.AlertSupersede:
				sum.Superseded++
			case domain.AlertSuppress:
				sum.Suppressed++
			}
		case domain.OutcomeUnmatched:
			sum.Unmatched++
		case domain.OutcomeFailed:
			sum.Failed++
		}
	}
	return sum
}
