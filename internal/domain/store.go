package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ListingStore reads scraped listings ingested by the scraping collaborator.
type ListingStore interface {
	GetByID(ctx context.Context, id string) (SourceListing, error)
	ListObservedSince(ctx context.Context, since time.Time, opts ListOpts) ([]SourceListing, error)
	Count(ctx context.Context) (int64, error)
}

// CatalogStore queries the target-marketplace catalog maintained by the
// catalog collaborator.
type CatalogStore interface {
	// GetByEAN returns every entry sharing the normalized identifier. More
	// than one row indicates an upstream data-quality problem that the exact
	// matcher must refuse to guess on.
	GetByEAN(ctx context.Context, ean string) ([]CatalogEntry, error)
	// ListCandidates returns a bounded candidate set pre-filtered by category
	// and, when non-empty, brand. Full-corpus scans are not supported.
	ListCandidates(ctx context.Context, category, brand string, limit int) ([]CatalogEntry, error)
	GetByID(ctx context.Context, id string) (CatalogEntry, error)
}

// PriceHistoryStore reads price series recorded by the price-history
// collaborator.
type PriceHistoryStore interface {
	// TrailingWindow returns the most recent n samples for an entry, oldest
	// first, with aggregates populated.
	TrailingWindow(ctx context.Context, entryID string, n int) (PriceSeries, error)
}

// OpportunityStore persists opportunity records. All writes are idempotent
// upserts keyed by (listing, entry); history is append-only: records are
// superseded or expired, never deleted.
type OpportunityStore interface {
	Create(ctx context.Context, opp Opportunity) error
	// GetOpen returns the live record for a pair, or ErrNotFound.
	GetOpen(ctx context.Context, listingID, entryID string) (Opportunity, error)
	// Supersede atomically marks the open record for the pair superseded by
	// the given new record and inserts the new record.
	Supersede(ctx context.Context, priorID string, next Opportunity) error
	// ExpireUnseen marks open records expired when their listing has not been
	// observed since the cutoff. Returns the number of rows expired.
	ExpireUnseen(ctx context.Context, cutoff time.Time) (int64, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]Opportunity, error)
	// ListClosedBefore returns superseded/expired, not-yet-archived records
	// older than the cutoff, for cold-storage archival.
	ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Opportunity, error)
	MarkArchived(ctx context.Context, ids []string) error
}

// MatchAuditStore persists match candidates for offline calibration review.
type MatchAuditStore interface {
	// Record upserts the audit row keyed by (listing, entry), keeping the
	// highest-confidence observation.
	Record(ctx context.Context, cand MatchCandidate) error
	ListByListing(ctx context.Context, listingID string) ([]MatchCandidate, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
