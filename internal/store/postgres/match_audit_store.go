package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmiguens/arbscout/internal/domain"
)

// MatchAuditStore implements domain.MatchAuditStore using PostgreSQL.
type MatchAuditStore struct {
	pool *pgxpool.Pool
}

// NewMatchAuditStore creates a new MatchAuditStore backed by the given
// connection pool.
func NewMatchAuditStore(pool *pgxpool.Pool) *MatchAuditStore {
	return &MatchAuditStore{pool: pool}
}

// Record upserts the audit row for a (listing, entry) pair, keeping whichever
// observation scored highest.
func (s *MatchAuditStore) Record(ctx context.Context, cand domain.MatchCandidate) error {
	detailJSON, err := json.Marshal(cand.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal match detail: %w", err)
	}

	const query = `
		INSERT INTO match_audit (listing_id, entry_id, confidence, method, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (listing_id, entry_id) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			method     = EXCLUDED.method,
			detail     = EXCLUDED.detail,
			created_at = EXCLUDED.created_at
		WHERE match_audit.confidence < EXCLUDED.confidence`

	_, err = s.pool.Exec(ctx, query,
		cand.ListingID, cand.EntryID, cand.Confidence, string(cand.Method), detailJSON, cand.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: record match %s/%s: %w", cand.ListingID, cand.EntryID, err)
	}
	return nil
}

// ListByListing returns every recorded candidate for a listing, highest
// confidence first.
func (s *MatchAuditStore) ListByListing(ctx context.Context, listingID string) ([]domain.MatchCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT listing_id, entry_id, confidence, method, detail, created_at
		FROM match_audit
		WHERE listing_id = $1
		ORDER BY confidence DESC`, listingID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list match audit for %s: %w", listingID, err)
	}
	defer rows.Close()

	var cands []domain.MatchCandidate
	for rows.Next() {
		var c domain.MatchCandidate
		var method string
		var detailJSON []byte
		if err := rows.Scan(&c.ListingID, &c.EntryID, &c.Confidence, &method, &detailJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan match audit row: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &c.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal match detail: %w", err)
			}
		}
		c.Method = domain.MatchMethod(method)
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list match audit rows: %w", err)
	}
	return cands, nil
}
