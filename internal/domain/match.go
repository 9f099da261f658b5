package domain

import "time"

// MatchMethod identifies which matcher stage produced a candidate.
type MatchMethod string

const (
	MatchMethodExact    MatchMethod = "exact"
	MatchMethodFuzzy    MatchMethod = "fuzzy"
	MatchMethodSemantic MatchMethod = "semantic"
)

// MatchCandidate is a scored, method-tagged proposed pairing between a
// SourceListing and a CatalogEntry. Candidates are transient: the core hands
// them to the caller for audit persistence but does not own their lifecycle.
type MatchCandidate struct {
	ListingID  string
	EntryID    string
	Confidence float64 // always in [0,1]
	Method     MatchMethod
	Detail     map[string]any // per-method scoring breakdown, for audit only
	CreatedAt  time.Time
}

// ListingOutcome is the terminal state of one listing's pass through the
// match cascade.
type ListingOutcome string

const (
	// OutcomeMatched means a stage produced a candidate.
	OutcomeMatched ListingOutcome = "matched"
	// OutcomeUnmatched means every stage was inconclusive. This is a final
	// negative, not an error.
	OutcomeUnmatched ListingOutcome = "unmatched"
	// OutcomeFailed means a dependency error prevented a verdict; the listing
	// should be retried in a later run rather than treated as a negative.
	OutcomeFailed ListingOutcome = "failed"
)

// MatchResult is the cascade's verdict for a single listing.
type MatchResult struct {
	ListingID string
	Outcome   ListingOutcome
	Candidate MatchCandidate // zero value unless Outcome == OutcomeMatched
	// Warnings carries data-quality observations (identifier collisions,
	// malformed fields) that did not block matching but should reach
	// operators.
	Warnings []string
	Err      error // set only when Outcome == OutcomeFailed
}
