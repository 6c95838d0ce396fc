// Package notifier delivers deal events to the downstream bot.
package notifier

import (
	"context"

	"github.com/shopspring/decimal"

	"pricesentry/services/store"
)

// Event kinds pushed to the outbound stream
const (
	KindDealReached = "deal_reached"
	KindDealEnded   = "deal_ended"
)

// Notifier represents a service for delivering deal notifications
type Notifier interface {
	// DealReached reports that an item's price dropped to or below its target
	DealReached(ctx context.Context, item store.TrackedItem, price decimal.Decimal) error

	// DealEnded reports that an item's price rose back above its target
	DealEnded(ctx context.Context, item store.TrackedItem, price decimal.Decimal) error

	// Close closes the notifier connection
	Close() error
}
