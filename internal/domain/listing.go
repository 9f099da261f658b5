package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockStatus represents the availability of a scraped listing.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "in_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
	StockStatusUnknown    StockStatus = "unknown"
)

// SourceListing is a product record scraped from the origin retailer. It is
// produced by the scraping collaborator and read immutably by the matching
// core.
type SourceListing struct {
	ID            string // source-assigned stable id
	Title         string
	Brand         string // optional, empty when the scraper could not extract it
	Category      string
	Price         decimal.Decimal
	OriginalPrice decimal.Decimal // pre-discount price; zero when absent
	EAN           string          // optional global trade identifier, raw form
	Stock         StockStatus
	URL           string
	ObservedAt    time.Time
}

// HasOriginalPrice reports whether the listing carries a usable pre-discount
// price. Non-positive values are treated as absent.
func (l SourceListing) HasOriginalPrice() bool {
	return l.OriginalPrice.IsPositive()
}
