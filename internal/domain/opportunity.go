package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Severity classifies an opportunity by profit potential. Ordering is
// critical > high > medium > low.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRank orders severities for comparison; higher is more severe.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric order of the severity, 0 for unknown values.
func (s Severity) Rank() int { return severityRank[s] }

// OpportunityStatus is the lifecycle state of an opportunity record.
type OpportunityStatus string

const (
	// OpportunityStatusOpen is a live opportunity; at most one open record may
	// exist per (listing, entry) pair at any instant.
	OpportunityStatusOpen OpportunityStatus = "open"
	// OpportunityStatusSuperseded marks a record replaced by a newer
	// observation with materially different pricing. Supersession is additive;
	// superseded rows are never deleted.
	OpportunityStatusSuperseded OpportunityStatus = "superseded"
	// OpportunityStatusExpired marks a record whose source listing is no
	// longer observed.
	OpportunityStatusExpired OpportunityStatus = "expired"
)

// Opportunity is a matched, profit-scored, severity-tagged arbitrage finding
// for a (SourceListing, CatalogEntry) pair.
type Opportunity struct {
	ID              string
	ListingID       string
	EntryID         string
	CurrentPrice    decimal.Decimal // source listing price
	TargetAvgPrice  decimal.Decimal // trailing-window average on the target marketplace
	DiscountPct     decimal.Decimal // in [0,100], vs the listing's own original price
	NetProfit       decimal.Decimal
	ProfitPct       decimal.Decimal // net profit as a percentage of the source price
	Confidence      float64         // carried over from the match candidate, in [0,1]
	Method          MatchMethod
	Severity        Severity
	Status          OpportunityStatus
	DetectedAt      time.Time
	SupersededAt    *time.Time
	SupersededBy    string // ID of the replacing record, empty while open
	ArchivedAt      *time.Time
	LastObservedAt  time.Time
}

// PairKey returns the dedup key for the (listing, entry) pair.
func (o Opportunity) PairKey() string {
	return o.ListingID + ":" + o.EntryID
}

// AlertDecision is the outcome of the dedup check for a scored opportunity.
type AlertDecision string

const (
	// AlertCreate means no open record exists for the pair; a new one is
	// created.
	AlertCreate AlertDecision = "create"
	// AlertSuppress means an open record exists and the profit delta is below
	// epsilon; no new record is emitted.
	AlertSuppress AlertDecision = "suppress"
	// AlertSupersede means an open record exists but pricing changed
	// materially; the prior record is marked superseded and a new one created.
	AlertSupersede AlertDecision = "supersede"
)
