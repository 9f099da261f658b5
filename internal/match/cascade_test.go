package match

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmiguens/arbscout/internal/domain"
)

// stubMatcher counts invocations and plays back a scripted result.
type stubMatcher struct {
	method domain.MatchMethod
	cand   *domain.MatchCandidate
	err    error
	calls  int
}

func (s *stubMatcher) Method() domain.MatchMethod { return s.method }

func (s *stubMatcher) Match(context.Context, NormalizedListing) (*domain.MatchCandidate, error) {
	s.calls++
	return s.cand, s.err
}

func TestCascadeShortCircuitsOnFirstCandidate(t *testing.T) {
	exact := &stubMatcher{
		method: domain.MatchMethodExact,
		cand:   &domain.MatchCandidate{ListingID: "l1", EntryID: "e1", Confidence: 0.95, Method: domain.MatchMethodExact},
	}
	fuzzy := &stubMatcher{method: domain.MatchMethodFuzzy}
	semantic := &stubMatcher{method: domain.MatchMethodSemantic}

	c := NewCascade(NewNormalizer(), exact, fuzzy, semantic)
	res := c.Resolve(context.Background(), domain.SourceListing{ID: "l1", Title: "x"})

	assert.Equal(t, domain.OutcomeMatched, res.Outcome)
	assert.Equal(t, "e1", res.Candidate.EntryID)
	assert.Equal(t, 1, exact.calls)
	assert.Equal(t, 0, fuzzy.calls, "later stages must not run after a hit")
	assert.Equal(t, 0, semantic.calls)
}

func TestCascadeAllInconclusiveIsUnmatched(t *testing.T) {
	stages := []*stubMatcher{
		{method: domain.MatchMethodExact},
		{method: domain.MatchMethodFuzzy},
		{method: domain.MatchMethodSemantic},
	}
	c := NewCascade(NewNormalizer(), stages[0], stages[1], stages[2])
	res := c.Resolve(context.Background(), domain.SourceListing{ID: "l1", Title: "x"})

	assert.Equal(t, domain.OutcomeUnmatched, res.Outcome)
	assert.NoError(t, res.Err)
	for _, s := range stages {
		assert.Equal(t, 1, s.calls)
	}
}

func TestCascadeDataQualityFallsThroughWithWarning(t *testing.T) {
	exact := &stubMatcher{
		method: domain.MatchMethodExact,
		err:    &domain.DataQualityError{Reason: "identifier collision", ListingID: "l1"},
	}
	fuzzy := &stubMatcher{
		method: domain.MatchMethodFuzzy,
		cand:   &domain.MatchCandidate{ListingID: "l1", EntryID: "e2", Confidence: 0.9, Method: domain.MatchMethodFuzzy},
	}
	c := NewCascade(NewNormalizer(), exact, fuzzy)
	res := c.Resolve(context.Background(), domain.SourceListing{ID: "l1", Title: "x"})

	assert.Equal(t, domain.OutcomeMatched, res.Outcome)
	assert.Equal(t, "e2", res.Candidate.EntryID)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "identifier collision")
}

func TestCascadeDependencyErrorFailsListing(t *testing.T) {
	exact := &stubMatcher{
		method: domain.MatchMethodExact,
		err:    &domain.DependencyError{Dependency: "catalog", Err: errors.New("connection refused")},
	}
	fuzzy := &stubMatcher{method: domain.MatchMethodFuzzy}
	c := NewCascade(NewNormalizer(), exact, fuzzy)
	res := c.Resolve(context.Background(), domain.SourceListing{ID: "l1", Title: "x"})

	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.True(t, domain.IsDependency(res.Err))
	assert.Equal(t, 0, fuzzy.calls, "failed listings stop immediately")
}

func TestCascadeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exact := &stubMatcher{method: domain.MatchMethodExact}
	c := NewCascade(NewNormalizer(), exact)
	res := c.Resolve(ctx, domain.SourceListing{ID: "l1", Title: "x"})

	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, domain.ErrContextDone)
	assert.Equal(t, 0, exact.calls)
}
