package notifier

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricesentry/services/store"
)

func TestRedisNotifierPublish(t *testing.T) {
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   0,
	})
	defer client.Close()

	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	stream := "test_deal_events"
	client.Del(ctx, stream)

	n := NewRedisNotifier("localhost:6379", 0, stream, 100)
	defer n.Close()

	item := store.TrackedItem{
		ID:          7,
		OwnerID:     42,
		SourceURL:   "https://www.ozon.ru/product/x-1/",
		Title:       "Чайник",
		TargetPrice: decimal.RequireFromString("100"),
	}

	err := n.DealReached(ctx, item, decimal.RequireFromString("95"))
	require.NoError(t, err)

	messages, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)

	var event dealEvent
	require.NoError(t, json.Unmarshal([]byte(messages[0].Values["event"].(string)), &event))
	assert.Equal(t, KindDealReached, event.Kind)
	assert.Equal(t, int64(7), event.ItemID)
	assert.Equal(t, int64(42), event.OwnerID)
	assert.Equal(t, "95", event.Price)
	assert.Equal(t, "100", event.TargetPrice)

	at, err := time.Parse(time.RFC3339, event.At)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), at, time.Minute)

	err = n.DealEnded(ctx, item, decimal.RequireFromString("130"))
	require.NoError(t, err)

	messages, err = client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 2)

	require.NoError(t, json.Unmarshal([]byte(messages[1].Values["event"].(string)), &event))
	assert.Equal(t, KindDealEnded, event.Kind)
	assert.Equal(t, "130", event.Price)

	client.Del(ctx, stream)
}
