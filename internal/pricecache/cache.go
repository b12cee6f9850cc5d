// Package pricecache maintains the last traded price per (item, region)
// in Redis, written after each committed tick batch. Read traffic comes
// from surfaces outside this repo; the cache is advisory and never feeds
// back into settlement.
package pricecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/corpsim/corpsim/internal/model"
)

const keyPrefix = "corpsim:price:"

// Quote is the cached value for one book.
type Quote struct {
	PriceCents int64 `json:"price_cents"`
	Tick       int64 `json:"tick"`
}

// Cache wraps a Redis client.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a cache on an existing client.
func New(client *redis.Client, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, logger: logger}
}

func key(itemID, regionID string) string {
	return keyPrefix + itemID + ":" + regionID
}

// Publish writes the closing prices of one tick batch in a single
// pipeline round trip.
func (c *Cache) Publish(ctx context.Context, tick int64, prices map[model.BookKey]int64) error {
	if len(prices) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for book, price := range prices {
		payload, err := json.Marshal(Quote{PriceCents: price, Tick: tick})
		if err != nil {
			return fmt.Errorf("marshal quote: %w", err)
		}
		pipe.Set(ctx, key(book.ItemID, book.RegionID), payload, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish prices: %w", err)
	}
	c.logger.Debug("prices published", "tick", tick, "books", len(prices))
	return nil
}

// Last returns the cached quote for one book. The second return is false
// when no trade has been cached yet.
func (c *Cache) Last(ctx context.Context, itemID, regionID string) (Quote, bool, error) {
	raw, err := c.client.Get(ctx, key(itemID, regionID)).Result()
	if errors.Is(err, redis.Nil) {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, fmt.Errorf("get quote: %w", err)
	}
	var q Quote
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return Quote{}, false, fmt.Errorf("decode quote: %w", err)
	}
	return q, true, nil
}
