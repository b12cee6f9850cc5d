// Package stream broadcasts tick and trade events to websocket observers.
// Delivery is best-effort: a subscriber that cannot keep up is dropped
// rather than allowed to stall the worker.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/corpsim/corpsim/internal/model"
)

// TickEvent is published after each committed tick batch.
type TickEvent struct {
	Type        string      `json:"type"` // always "tick"
	CurrentTick int64       `json:"current_tick"`
	Ticks       int         `json:"ticks_advanced"`
	Trades      int         `json:"trades"`
	Prices      []BookPrice `json:"prices,omitempty"`
}

// BookPrice is one book's closing price within a tick event.
type BookPrice struct {
	ItemID     string `json:"item_id"`
	RegionID   string `json:"region_id"`
	PriceCents int64  `json:"price_cents"`
}

// Hub fans events out to subscribers.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// PublishTick broadcasts one tick event.
func (h *Hub) PublishTick(currentTick int64, ticks, trades int, prices map[model.BookKey]int64) {
	ev := TickEvent{
		Type:        "tick",
		CurrentTick: currentTick,
		Ticks:       ticks,
		Trades:      trades,
	}
	for book, price := range prices {
		ev.Prices = append(ev.Prices, BookPrice{
			ItemID:     book.ItemID,
			RegionID:   book.RegionID,
			PriceCents: price,
		})
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal tick event", "error", err)
		return
	}
	h.broadcast(payload)
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- payload:
		default:
			// Slow subscriber: drop it instead of blocking the tick path.
			close(sub.send)
			delete(h.subs, sub)
			h.logger.Warn("dropped slow stream subscriber")
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) subscribe() *subscriber {
	sub := &subscriber{send: make(chan []byte, 64)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		close(sub.send)
		delete(h.subs, sub)
	}
}
