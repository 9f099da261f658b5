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

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingCols = `id, title, brand, category, price::text, original_price::text,
	ean, stock, url, observed_at`

func scanListing(row pgx.Row) (domain.SourceListing, error) {
	var l domain.SourceListing
	var price, origPrice, stock string
	if err := row.Scan(
		&l.ID, &l.Title, &l.Brand, &l.Category, &price, &origPrice,
		&l.EAN, &stock, &l.URL, &l.ObservedAt,
	); err != nil {
		return domain.SourceListing{}, err
	}

	var err error
	if l.Price, err = decimal.NewFromString(price); err != nil {
		return domain.SourceListing{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	if l.OriginalPrice, err = decimal.NewFromString(origPrice); err != nil {
		return domain.SourceListing{}, fmt.Errorf("parse original price %q: %w", origPrice, err)
	}
	l.Stock = domain.StockStatus(stock)
	return l, nil
}

// GetByID retrieves a listing by its primary key.
func (s *ListingStore) GetByID(ctx context.Context, id string) (domain.SourceListing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingCols+` FROM source_listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.SourceListing{}, domain.ErrNotFound
		}
		return domain.SourceListing{}, fmt.Errorf("postgres: get listing %s: %w", id, err)
	}
	return l, nil
}

// ListObservedSince returns listings observed at or after the given time,
// oldest first so batch runs process stable pages.
func (s *ListingStore) ListObservedSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.SourceListing, error) {
	query := `SELECT ` + listingCols + ` FROM source_listings WHERE observed_at >= $1 ORDER BY observed_at ASC, id ASC`
	args := []any{since}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.SourceListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list listings rows: %w", err)
	}
	return listings, nil
}

// Count returns the total number of listings.
func (s *ListingStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM source_listings").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count listings: %w", err)
	}
	return count, nil
}
