package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
)

// tx operates on the cloned state owned by one InTx call.
type tx struct {
	st  *state
	now func() time.Time
}

var _ store.Tx = (*tx)(nil)

func (t *tx) Clock(ctx context.Context) (model.WorldClock, error) {
	return t.st.clock, nil
}

func (t *tx) AdvanceClock(ctx context.Context, observedLockVersion int64, now time.Time) (bool, error) {
	if t.st.clock.LockVersion != observedLockVersion {
		return false, nil
	}
	t.st.clock.CurrentTick++
	t.st.clock.LockVersion++
	stamp := now.UTC()
	t.st.clock.LastAdvancedAt = &stamp
	return true, nil
}

func (t *tx) ResetClock(ctx context.Context) error {
	t.st.clock.CurrentTick = 0
	t.st.clock.LockVersion++
	stamp := t.now().UTC()
	t.st.clock.LastAdvancedAt = &stamp
	return nil
}

func (t *tx) Company(ctx context.Context, id string) (model.Company, error) {
	c, ok := t.st.companies[id]
	if !ok {
		return model.Company{}, store.ErrNotFound
	}
	return c, nil
}

func (t *tx) UpdateCompanyCash(ctx context.Context, id string, cashCents, reservedCashCents int64) error {
	c, ok := t.st.companies[id]
	if !ok {
		return store.ErrNotFound
	}
	c.CashCents = cashCents
	c.ReservedCashCents = reservedCashCents
	t.st.companies[id] = c
	return nil
}

func (t *tx) Item(ctx context.Context, id string) (model.Item, error) {
	it, ok := t.st.items[id]
	if !ok {
		return model.Item{}, store.ErrNotFound
	}
	return it, nil
}

func (t *tx) Inventory(ctx context.Context, companyID, itemID, regionID string) (model.Inventory, error) {
	inv, ok := t.st.inventories[invKey{companyID, itemID, regionID}]
	if !ok {
		return model.Inventory{}, store.ErrNotFound
	}
	return inv, nil
}

func (t *tx) UpsertInventory(ctx context.Context, inv model.Inventory) error {
	t.st.inventories[invKey{inv.CompanyID, inv.ItemID, inv.RegionID}] = inv
	return nil
}

func (t *tx) InsertOrder(ctx context.Context, o model.MarketOrder) error {
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) Order(ctx context.Context, id string) (model.MarketOrder, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return model.MarketOrder{}, store.ErrNotFound
	}
	return o, nil
}

func (t *tx) UpdateOrder(ctx context.Context, o model.MarketOrder) error {
	if _, ok := t.st.orders[o.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) OpenOrders(ctx context.Context, itemID, regionID string) ([]model.MarketOrder, error) {
	var out []model.MarketOrder
	for _, o := range t.st.orders {
		if o.ItemID == itemID && o.RegionID == regionID && !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TickPlaced != out[j].TickPlaced {
			return out[i].TickPlaced < out[j].TickPlaced
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) ActiveBooks(ctx context.Context) ([]model.BookKey, error) {
	seen := make(map[model.BookKey]bool)
	for _, o := range t.st.orders {
		if !o.Status.Terminal() {
			seen[o.Book()] = true
		}
	}
	out := make([]model.BookKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].RegionID < out[j].RegionID
	})
	return out, nil
}

func (t *tx) InsertTrade(ctx context.Context, tr model.Trade) error {
	t.st.trades = append(t.st.trades, tr)
	return nil
}

func (t *tx) AppendLedger(ctx context.Context, e model.LedgerEntry) error {
	t.st.ledger = append(t.st.ledger, e)
	return nil
}

func (t *tx) UpsertCandle(ctx context.Context, c model.Candle) error {
	t.st.candles[candleKey{c.ItemID, c.RegionID, c.Tick}] = c
	return nil
}

func (t *tx) ControlState(ctx context.Context) (model.ControlState, error) {
	return t.st.control, nil
}

func (t *tx) SetControlState(ctx context.Context, s model.ControlState) error {
	t.st.control = s
	return nil
}

func (t *tx) JournalExists(ctx context.Context, executionKey string) (bool, error) {
	_, ok := t.st.journal[executionKey]
	return ok, nil
}

func (t *tx) InsertJournal(ctx context.Context, executionKey string, tickAfter int64) error {
	t.st.journal[executionKey] = model.TickExecutionJournal{
		ExecutionKey: executionKey,
		TickAfter:    tickAfter,
		CreatedAt:    t.now().UTC(),
	}
	return nil
}
