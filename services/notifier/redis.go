package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"pricesentry/logger"
	errs "pricesentry/pkg/errors"
	"pricesentry/services/store"
)

// dealEvent is the wire format appended to the outbound stream
type dealEvent struct {
	Kind        string `json:"kind"`
	ItemID      int64  `json:"item_id"`
	OwnerID     int64  `json:"owner_id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Price       string `json:"price"`
	TargetPrice string `json:"target_price"`
	At          string `json:"at"`
}

// RedisNotifier implements Notifier on a Redis stream. Consumers read the
// stream and render the actual user-facing messages.
type RedisNotifier struct {
	client    *redis.Client
	stream    string
	maxLength int64
	log       *logger.Logger
}

var _ Notifier = (*RedisNotifier)(nil)

// NewRedisNotifier creates a new Redis-backed notifier
func NewRedisNotifier(addr string, db int, stream string, maxLength int64) *RedisNotifier {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisNotifier{
		client:    client,
		stream:    stream,
		maxLength: maxLength,
		log:       logger.ForNotifier(),
	}
}

// DealReached reports that an item's price dropped to or below its target
func (n *RedisNotifier) DealReached(ctx context.Context, item store.TrackedItem, price decimal.Decimal) error {
	return n.publish(ctx, KindDealReached, item, price)
}

// DealEnded reports that an item's price rose back above its target
func (n *RedisNotifier) DealEnded(ctx context.Context, item store.TrackedItem, price decimal.Decimal) error {
	return n.publish(ctx, KindDealEnded, item, price)
}

func (n *RedisNotifier) publish(ctx context.Context, kind string, item store.TrackedItem, price decimal.Decimal) error {
	event := dealEvent{
		Kind:        kind,
		ItemID:      item.ID,
		OwnerID:     item.OwnerID,
		Title:       item.Title,
		URL:         item.SourceURL,
		Price:       price.String(),
		TargetPrice: item.TargetPrice.String(),
		At:          time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errs.NewNotify("encode deal event", err)
	}

	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLength,
		Approx: true,
		Values: map[string]interface{}{
			"event": string(payload),
		},
	}).Err()
	if err != nil {
		return errs.NewNotify("publish deal event", err)
	}

	n.log.Info().
		Str("kind", kind).
		Int64("item_id", item.ID).
		Str("price", price.String()).
		Msg("Deal event published")
	return nil
}

// Close closes the Redis connection
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
