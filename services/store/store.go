// Package store persists tracked items and their price observations.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Notification states recorded per tracked item. StateNone means the item was
// never evaluated; the state records which notification was last sent.
const (
	StateNone  = ""
	StateBelow = "below"
	StateAbove = "above"
)

// Observation sources
const (
	SourceAdded     = "added"
	SourceScheduled = "scheduled"
	SourceManual    = "manual"
)

// TrackedItem is a product URL watched for a price threshold crossing
type TrackedItem struct {
	ID                int64
	OwnerID           int64
	SourceURL         string
	Title             string
	TargetPrice       decimal.Decimal
	CurrentPrice      *decimal.Decimal
	LastNotifiedPrice *decimal.Decimal
	LastState         string
	Active            bool
}

// PriceObservation is one recorded price point. Observations are append-only
// and never mutated or reordered after insert.
type PriceObservation struct {
	ID         int64
	ItemID     int64
	Price      decimal.Decimal
	ObservedAt time.Time
	Source     string
}

// Store defines the persistence interface for tracked items and observations
type Store interface {
	// CreateItem inserts a tracked item and returns its id
	CreateItem(ctx context.Context, item TrackedItem) (int64, error)

	// GetItem returns a tracked item by id
	GetItem(ctx context.Context, id int64) (*TrackedItem, error)

	// ListActiveItems returns all active items in id order
	ListActiveItems(ctx context.Context) ([]TrackedItem, error)

	// CountByOwner counts the items registered by one owner
	CountByOwner(ctx context.Context, ownerID int64) (int, error)

	// UpdateTargetPrice changes the threshold of an item
	UpdateTargetPrice(ctx context.Context, id int64, price decimal.Decimal) error

	// DeleteItem removes an item and cascades its observations
	DeleteItem(ctx context.Context, id int64) error

	// AppendObservation records a price point for an item
	AppendObservation(ctx context.Context, itemID int64, price decimal.Decimal, source string) error

	// LatestObservation returns the most recently appended observation for an
	// item, with the insert id breaking ties between equal timestamps
	LatestObservation(ctx context.Context, itemID int64) (*PriceObservation, error)

	// SetCurrentPrice updates the last fetched price of an item
	SetCurrentPrice(ctx context.Context, id int64, price decimal.Decimal) error

	// SetNotificationState records which notification was last sent
	SetNotificationState(ctx context.Context, id int64, state string, lastNotified *decimal.Decimal) error

	// Close releases the underlying database
	Close() error
}
