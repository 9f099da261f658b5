package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmiguens/arbscout/internal/domain"
)

// CatalogStore implements domain.CatalogStore using PostgreSQL.
type CatalogStore struct {
	pool *pgxpool.Pool
}

// NewCatalogStore creates a new CatalogStore backed by the given connection pool.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

const catalogCols = `id, title, brand, category, marketplace, ean,
	reference_price::text, updated_at`

func scanCatalogEntry(row pgx.Row) (domain.CatalogEntry, error) {
	var e domain.CatalogEntry
	var refPrice string
	if err := row.Scan(
		&e.ID, &e.Title, &e.Brand, &e.Category, &e.Marketplace, &e.EAN,
		&refPrice, &e.UpdatedAt,
	); err != nil {
		return domain.CatalogEntry{}, err
	}
	var err error
	if e.ReferencePrice, err = decimal.NewFromString(refPrice); err != nil {
		return domain.CatalogEntry{}, fmt.Errorf("parse reference price %q: %w", refPrice, err)
	}
	return e, nil
}

// GetByEAN returns every entry carrying the normalized identifier, ordered by
// id for deterministic collision reporting.
func (s *CatalogStore) GetByEAN(ctx context.Context, ean string) ([]domain.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+catalogCols+` FROM catalog_entries WHERE ean = $1 ORDER BY id`, ean)
	if err != nil {
		return nil, fmt.Errorf("postgres: get catalog by ean %s: %w", ean, err)
	}
	defer rows.Close()

	var entries []domain.CatalogEntry
	for rows.Next() {
		e, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan catalog entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get catalog by ean rows: %w", err)
	}
	return entries, nil
}

// ListCandidates returns a bounded, deterministic candidate set filtered by
// category and, when non-empty, case-insensitive brand.
func (s *CatalogStore) ListCandidates(ctx context.Context, category, brand string, limit int) ([]domain.CatalogEntry, error) {
	query := `SELECT ` + catalogCols + ` FROM catalog_entries WHERE category = $1`
	args := []any{category}
	argIdx := 2

	if brand != "" {
		query += fmt.Sprintf(" AND LOWER(brand) = LOWER($%d)", argIdx)
		args = append(args, brand)
		argIdx++
	}

	query += " ORDER BY id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list catalog candidates: %w", err)
	}
	defer rows.Close()

	var entries []domain.CatalogEntry
	for rows.Next() {
		e, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan catalog candidate: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list catalog candidates rows: %w", err)
	}
	return entries, nil
}

// GetByID retrieves a catalog entry by its primary key.
func (s *CatalogStore) GetByID(ctx context.Context, id string) (domain.CatalogEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+catalogCols+` FROM catalog_entries WHERE id = $1`, id)
	e, err := scanCatalogEntry(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.CatalogEntry{}, domain.ErrNotFound
		}
		return domain.CatalogEntry{}, fmt.Errorf("postgres: get catalog entry %s: %w", id, err)
	}
	return e, nil
}
