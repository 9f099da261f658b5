package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmiguens/arbscout/internal/domain"
)

// PriceHistoryStore implements domain.PriceHistoryStore using PostgreSQL.
// The store is read-only here; the price-history collaborator owns the
// writes to price_history.
type PriceHistoryStore struct {
	pool *pgxpool.Pool
}

// NewPriceHistoryStore creates a new PriceHistoryStore backed by the given
// connection pool.
func NewPriceHistoryStore(pool *pgxpool.Pool) *PriceHistoryStore {
	return &PriceHistoryStore{pool: pool}
}

// TrailingWindow returns the most recent n samples for an entry, oldest
// first, with aggregates recomputed. An entry with no history yields an empty
// series, not an error.
func (s *PriceHistoryStore) TrailingWindow(ctx context.Context, entryID string, n int) (domain.PriceSeries, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT observed_at, price::text
		FROM price_history
		WHERE entry_id = $1
		ORDER BY observed_at DESC
		LIMIT $2`, entryID, n)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("postgres: trailing window for %s: %w", entryID, err)
	}
	defer rows.Close()

	series := domain.PriceSeries{EntryID: entryID}
	for rows.Next() {
		var sample domain.PriceSample
		var price string
		if err := rows.Scan(&sample.ObservedAt, &price); err != nil {
			return domain.PriceSeries{}, fmt.Errorf("postgres: scan price sample: %w", err)
		}
		if sample.Price, err = decimal.NewFromString(price); err != nil {
			return domain.PriceSeries{}, fmt.Errorf("postgres: parse price %q: %w", price, err)
		}
		series.Samples = append(series.Samples, sample)
	}
	if err := rows.Err(); err != nil {
		return domain.PriceSeries{}, fmt.Errorf("postgres: trailing window rows: %w", err)
	}

	// Query returned newest first; flip to oldest first.
	for i, j := 0, len(series.Samples)-1; i < j; i, j = i+1, j-1 {
		series.Samples[i], series.Samples[j] = series.Samples[j], series.Samples[i]
	}
	series.Recompute()
	return series, nil
}
