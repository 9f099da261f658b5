package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmiguens/arbscout/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// Records are append-only: lifecycle changes flip status, nothing is deleted.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const oppCols = `id, listing_id, entry_id, current_price::text, target_avg_price::text,
	discount_pct::text, net_profit::text, profit_pct::text, confidence, method,
	severity, status, detected_at, superseded_at, superseded_by, archived_at,
	last_observed_at`

const insertOpp = `
	INSERT INTO opportunities (
		id, listing_id, entry_id, current_price, target_avg_price,
		discount_pct, net_profit, profit_pct, confidence, method,
		severity, status, detected_at, superseded_by, last_observed_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12, $13, '', $14
	)`

func oppArgs(o domain.Opportunity) []any {
	return []any{
		o.ID, o.ListingID, o.EntryID, o.CurrentPrice.String(), o.TargetAvgPrice.String(),
		o.DiscountPct.String(), o.NetProfit.String(), o.ProfitPct.String(), o.Confidence, string(o.Method),
		string(o.Severity), string(o.Status), o.DetectedAt, o.LastObservedAt,
	}
}

func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var o domain.Opportunity
	var current, target, discount, net, pct, method, severity, status string
	if err := row.Scan(
		&o.ID, &o.ListingID, &o.EntryID, &current, &target,
		&discount, &net, &pct, &o.Confidence, &method,
		&severity, &status, &o.DetectedAt, &o.SupersededAt, &o.SupersededBy, &o.ArchivedAt,
		&o.LastObservedAt,
	); err != nil {
		return domain.Opportunity{}, err
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&o.CurrentPrice, current},
		{&o.TargetAvgPrice, target},
		{&o.DiscountPct, discount},
		{&o.NetProfit, net},
		{&o.ProfitPct, pct},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return domain.Opportunity{}, fmt.Errorf("parse decimal %q: %w", f.src, err)
		}
		*f.dst = d
	}
	o.Method = domain.MatchMethod(method)
	o.Severity = domain.Severity(severity)
	o.Status = domain.OpportunityStatus(status)
	return o, nil
}

// Create inserts a new open record. A concurrent open record for the same
// pair surfaces as domain.ErrAlreadyExists via the partial unique index.
func (s *OpportunityStore) Create(ctx context.Context, opp domain.Opportunity) error {
	tag, err := s.pool.Exec(ctx, insertOpp+` ON CONFLICT (listing_id, entry_id) WHERE status = 'open' DO NOTHING`,
		oppArgs(opp)...)
	if err != nil {
		return fmt.Errorf("postgres: create opportunity %s: %w", opp.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// GetOpen returns the live record for a pair.
func (s *OpportunityStore) GetOpen(ctx context.Context, listingID, entryID string) (domain.Opportunity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+oppCols+` FROM opportunities
		 WHERE listing_id = $1 AND entry_id = $2 AND status = 'open'`,
		listingID, entryID)
	o, err := scanOpportunity(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Opportunity{}, domain.ErrNotFound
		}
		return domain.Opportunity{}, fmt.Errorf("postgres: get open opportunity %s/%s: %w", listingID, entryID, err)
	}
	return o, nil
}

// Supersede closes the prior record and inserts its replacement in one
// transaction, so no observer ever sees zero or two open records for the pair.
func (s *OpportunityStore) Supersede(ctx context.Context, priorID string, next domain.Opportunity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin supersede: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE opportunities
		SET status = 'superseded', superseded_at = NOW(), superseded_by = $2
		WHERE id = $1 AND status = 'open'`,
		priorID, next.ID)
	if err != nil {
		return fmt.Errorf("postgres: supersede %s: %w", priorID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.Exec(ctx, insertOpp, oppArgs(next)...); err != nil {
		return fmt.Errorf("postgres: insert replacement %s: %w", next.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit supersede: %w", err)
	}
	return nil
}

// ExpireUnseen closes open records whose listing has not been observed since
// the cutoff. Returns the number of rows expired.
func (s *OpportunityStore) ExpireUnseen(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE opportunities
		SET status = 'expired'
		WHERE status = 'open' AND last_observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: expire unseen: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListOpen returns live records, newest first.
func (s *OpportunityStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppCols + ` FROM opportunities WHERE status = 'open' ORDER BY detected_at DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return s.list(ctx, query, args...)
}

// ListClosedBefore returns superseded or expired records older than the
// cutoff that have not been archived yet.
func (s *OpportunityStore) ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error) {
	return s.list(ctx, `
		SELECT `+oppCols+` FROM opportunities
		WHERE status <> 'open' AND archived_at IS NULL AND detected_at < $1
		ORDER BY detected_at ASC
		LIMIT $2`, cutoff, limit)
}

// MarkArchived stamps records as moved to cold storage.
func (s *OpportunityStore) MarkArchived(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET archived_at = NOW() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("postgres: mark archived: %w", err)
	}
	return nil
}

func (s *OpportunityStore) list(ctx context.Context, query string, args ...any) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities rows: %w", err)
	}
	return opps, nil
}
