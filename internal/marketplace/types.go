// Package marketplace implements the per-URL price extraction pipeline:
// source detection, URL canonicalization, page-data fetching and tiered
// title/price extraction.
package marketplace

import (
	"context"

	"github.com/shopspring/decimal"
)

// Marketplace identifies a supported price source
type Marketplace string

const (
	Ozon        Marketplace = "ozon"
	Wildberries Marketplace = "wildberries"
)

// PlaceholderTitle is used when no title could be extracted from a payload
const PlaceholderTitle = "Marketplace item"

// ProductSnapshot is the ephemeral result of one fetch. A snapshot without
// prices is valid; extraction failure is soft.
type ProductSnapshot struct {
	Title           string
	DiscountedPrice *decimal.Decimal
	StandardPrice   *decimal.Decimal
}

// ComparePrice returns the price compared against the target threshold:
// the discounted price when present, otherwise the standard price.
func (s *ProductSnapshot) ComparePrice() *decimal.Decimal {
	if s.DiscountedPrice != nil {
		return s.DiscountedPrice
	}
	return s.StandardPrice
}

// Client defines the contract for all marketplace fetch clients
type Client interface {
	// Fetch retrieves a product snapshot for the given URL
	Fetch(ctx context.Context, rawURL string) (*ProductSnapshot, error)

	// Marketplace returns the source this client serves
	Marketplace() Marketplace
}

// PageSession is the part of the browser session the fetch clients depend on
type PageSession interface {
	EnsureStarted(ctx context.Context) error
	FetchJSON(ctx context.Context, url string, headers map[string]string) ([]byte, error)
	SolveChallenge(ctx context.Context) bool
	PersistCookies() error

	// Reset tears the session down so the next EnsureStarted relaunches it
	Reset()
}
