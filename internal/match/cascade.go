package match

import (
	"context"

	"github.com/dmiguens/arbscout/internal/domain"
)

// Matcher is one stage of the cascade. A (nil, nil) return is inconclusive;
// a DataQualityError means the stage refuses to guess but later stages may
// still succeed; any other error is a dependency failure that aborts the
// listing.
type Matcher interface {
	Method() domain.MatchMethod
	Match(ctx context.Context, nl NormalizedListing) (*domain.MatchCandidate, error)
}

// Cascade runs matchers in fixed order and stops at the first candidate, so
// each (listing, entry) pair is attributed to exactly one method.
type Cascade struct {
	normalizer *Normalizer
	stages     []Matcher
}

func NewCascade(normalizer *Normalizer, stages ...Matcher) *Cascade {
	return &Cascade{normalizer: normalizer, stages: stages}
}

// Resolve normalizes a listing and walks the stages sequentially. Every stage
// inconclusive is OutcomeUnmatched, a final negative rather than an error;
// data-quality refusals become warnings on the result.
func (c *Cascade) Resolve(ctx context.Context, listing domain.SourceListing) domain.MatchResult {
	return c.ResolvePrepared(ctx, c.normalizer.Normalize(listing))
}

// Normalize exposes the cascade's normalizer so the batch runner can prepare
// listings once and reuse the result across split stages.
func (c *Cascade) Normalize(listing domain.SourceListing) NormalizedListing {
	return c.normalizer.Normalize(listing)
}

// ResolvePrepared is Resolve for a listing that was already normalized, used
// by the batch runner to avoid normalizing twice when it splits the semantic
// stage out for batching.
func (c *Cascade) ResolvePrepared(ctx context.Context, nl NormalizedListing) domain.MatchResult {
	res := domain.MatchResult{ListingID: nl.Listing.ID}

	for _, stage := range c.stages {
		if err := ctx.Err(); err != nil {
			res.Outcome = domain.OutcomeFailed
			res.Err = domain.ErrContextDone
			return res
		}
		cand, err := stage.Match(ctx, nl)
		if err != nil {
			if domain.IsDataQuality(err) {
				res.Warnings = append(res.Warnings, err.Error())
				continue
			}
			res.Outcome = domain.OutcomeFailed
			res.Err = err
			return res
		}
		if cand != nil {
			res.Outcome = domain.OutcomeMatched
			res.Candidate = *cand
			return res
		}
	}

	res.Outcome = domain.OutcomeUnmatched
	return res
}
