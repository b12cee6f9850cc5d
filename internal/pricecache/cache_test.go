package pricecache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/corpsim/corpsim/internal/model"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, nil), mr
}

func TestPublishAndLast(t *testing.T) {
	cache, _ := newTestCache(t)

	prices := map[model.BookKey]int64{
		{ItemID: "iron", RegionID: "eu"}:   100,
		{ItemID: "copper", RegionID: "us"}: 250,
	}
	if err := cache.Publish(context.Background(), 7, prices); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	quote, ok, err := cache.Last(context.Background(), "iron", "eu")
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if !ok {
		t.Fatal("quote missing after publish")
	}
	if quote.PriceCents != 100 || quote.Tick != 7 {
		t.Errorf("quote = %+v, want price 100 at tick 7", quote)
	}

	quote, ok, err = cache.Last(context.Background(), "copper", "us")
	if err != nil || !ok {
		t.Fatalf("Last copper/us: ok=%v err=%v", ok, err)
	}
	if quote.PriceCents != 250 {
		t.Errorf("copper price = %d, want 250", quote.PriceCents)
	}
}

func TestPublishOverwrites(t *testing.T) {
	cache, _ := newTestCache(t)
	book := model.BookKey{ItemID: "iron", RegionID: "eu"}

	if err := cache.Publish(context.Background(), 1, map[model.BookKey]int64{book: 100}); err != nil {
		t.Fatal(err)
	}
	if err := cache.Publish(context.Background(), 2, map[model.BookKey]int64{book: 130}); err != nil {
		t.Fatal(err)
	}

	quote, ok, err := cache.Last(context.Background(), "iron", "eu")
	if err != nil || !ok {
		t.Fatalf("Last: ok=%v err=%v", ok, err)
	}
	if quote.PriceCents != 130 || quote.Tick != 2 {
		t.Errorf("quote = %+v, want latest price 130 at tick 2", quote)
	}
}

func TestLastMissingKey(t *testing.T) {
	cache, _ := newTestCache(t)

	quote, ok, err := cache.Last(context.Background(), "iron", "mars")
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if ok {
		t.Errorf("ok = true for an uncached book, quote = %+v", quote)
	}
}

func TestPublishEmptyIsNoOp(t *testing.T) {
	cache, mr := newTestCache(t)
	if err := cache.Publish(context.Background(), 1, nil); err != nil {
		t.Fatalf("Publish(nil): %v", err)
	}
	if got := len(mr.Keys()); got != 0 {
		t.Errorf("keys written = %d, want 0", got)
	}
}
