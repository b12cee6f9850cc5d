package market

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/corpsim/corpsim/internal/ledger"
	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
)

// MatchResult reports what one book produced in one tick.
type MatchResult struct {
	Book   model.BookKey
	Trades []model.Trade
	Candle *model.Candle // nil when nothing traded
}

// TickResult aggregates MatchAll over every active book.
type TickResult struct {
	Books      []MatchResult
	TradeCount int
	// LastPrices holds the closing trade price per book that traded.
	LastPrices map[model.BookKey]int64
}

// MatchAll runs MatchTick for every book with open orders.
func (e *Engine) MatchAll(ctx context.Context, tx store.Tx, tick int64) (TickResult, error) {
	books, err := tx.ActiveBooks(ctx)
	if err != nil {
		return TickResult{}, err
	}

	result := TickResult{LastPrices: make(map[model.BookKey]int64)}
	for _, book := range books {
		r, err := e.MatchTick(ctx, tx, book.ItemID, book.RegionID, tick)
		if err != nil {
			return TickResult{}, fmt.Errorf("match book %s/%s: %w", book.ItemID, book.RegionID, err)
		}
		result.Books = append(result.Books, r)
		result.TradeCount += len(r.Trades)
		if r.Candle != nil {
			result.LastPrices[book] = r.Candle.CloseCents
		}
	}
	return result, nil
}

// MatchTick repeatedly executes the best crossing pair in one book until no
// cross remains, then writes the tick's candle. Deterministic: ties break
// by earliest tickPlaced, then order id.
func (e *Engine) MatchTick(ctx context.Context, tx store.Tx, itemID, regionID string, tick int64) (MatchResult, error) {
	result := MatchResult{Book: model.BookKey{ItemID: itemID, RegionID: regionID}}

	open, err := tx.OpenOrders(ctx, itemID, regionID)
	if err != nil {
		return MatchResult{}, err
	}

	var buys, sells []*model.MarketOrder
	for i := range open {
		switch open[i].Side {
		case model.SideBuy:
			buys = append(buys, &open[i])
		case model.SideSell:
			sells = append(sells, &open[i])
		}
	}
	// Highest bid first; lowest ask first. Price-time priority with the
	// order id as the final tiebreak keeps replays byte-identical.
	sort.Slice(buys, func(i, j int) bool {
		if buys[i].UnitPriceCents != buys[j].UnitPriceCents {
			return buys[i].UnitPriceCents > buys[j].UnitPriceCents
		}
		if buys[i].TickPlaced != buys[j].TickPlaced {
			return buys[i].TickPlaced < buys[j].TickPlaced
		}
		return buys[i].ID < buys[j].ID
	})
	sort.Slice(sells, func(i, j int) bool {
		if sells[i].UnitPriceCents != sells[j].UnitPriceCents {
			return sells[i].UnitPriceCents < sells[j].UnitPriceCents
		}
		if sells[i].TickPlaced != sells[j].TickPlaced {
			return sells[i].TickPlaced < sells[j].TickPlaced
		}
		return sells[i].ID < sells[j].ID
	})

	m := &matcher{engine: e, tx: tx, tick: tick}

	bi, si := 0, 0
	for bi < len(buys) && si < len(sells) {
		buy, sell := buys[bi], sells[si]
		if buy.RemainingQuantity == 0 {
			bi++
			continue
		}
		if sell.RemainingQuantity == 0 {
			si++
			continue
		}
		if buy.UnitPriceCents < sell.UnitPriceCents {
			break
		}

		trade, err := m.execute(ctx, buy, sell)
		if err != nil {
			return MatchResult{}, err
		}
		result.Trades = append(result.Trades, trade)
	}

	if len(result.Trades) > 0 {
		candle := buildCandle(itemID, regionID, tick, result.Trades)
		if err := tx.UpsertCandle(ctx, candle); err != nil {
			return MatchResult{}, err
		}
		result.Candle = &candle
		e.logger.Debug("book matched",
			"item_id", itemID,
			"region_id", regionID,
			"tick", tick,
			"trades", len(result.Trades),
			"close_cents", candle.CloseCents,
		)
	}
	return result, nil
}

// matcher carries per-call caches so one company touched by several matches
// is read once and written through consistently.
type matcher struct {
	engine *Engine
	tx     store.Tx
	tick   int64

	companies   map[string]model.Company
	inventories map[model.BookKey]map[string]model.Inventory // book-region keyed per company
}

func (m *matcher) company(ctx context.Context, id string) (model.Company, error) {
	if m.companies == nil {
		m.companies = make(map[string]model.Company)
	}
	if c, ok := m.companies[id]; ok {
		return c, nil
	}
	c, err := m.tx.Company(ctx, id)
	if err != nil {
		return model.Company{}, fmt.Errorf("load company %s: %w", id, err)
	}
	m.companies[id] = c
	return c, nil
}

func (m *matcher) saveCompany(ctx context.Context, c model.Company) error {
	m.companies[c.ID] = c
	return m.tx.UpdateCompanyCash(ctx, c.ID, c.CashCents, c.ReservedCashCents)
}

func (m *matcher) inventory(ctx context.Context, companyID, itemID, regionID string) (model.Inventory, error) {
	key := model.BookKey{ItemID: itemID, RegionID: regionID}
	if m.inventories == nil {
		m.inventories = make(map[model.BookKey]map[string]model.Inventory)
	}
	if m.inventories[key] == nil {
		m.inventories[key] = make(map[string]model.Inventory)
	}
	if inv, ok := m.inventories[key][companyID]; ok {
		return inv, nil
	}
	inv, err := m.tx.Inventory(ctx, companyID, itemID, regionID)
	if errors.Is(err, store.ErrNotFound) {
		inv = model.Inventory{CompanyID: companyID, ItemID: itemID, RegionID: regionID}
		err = nil
	}
	if err != nil {
		return model.Inventory{}, fmt.Errorf("load inventory: %w", err)
	}
	m.inventories[key][companyID] = inv
	return inv, nil
}

func (m *matcher) saveInventory(ctx context.Context, inv model.Inventory) error {
	m.inventories[model.BookKey{ItemID: inv.ItemID, RegionID: inv.RegionID}][inv.CompanyID] = inv
	return m.tx.UpsertInventory(ctx, inv)
}

// execute settles one match between a crossing buy and sell.
func (m *matcher) execute(ctx context.Context, buy, sell *model.MarketOrder) (model.Trade, error) {
	quantity := buy.RemainingQuantity
	if sell.RemainingQuantity < quantity {
		quantity = sell.RemainingQuantity
	}
	price := sell.UnitPriceCents
	total := quantity * price
	// The buyer reserved at their own limit; the spread between that and
	// the clearing price is unreserved, not spent.
	buyerRelease := quantity * buy.UnitPriceCents

	trade := model.Trade{
		ID:              uuid.NewString(),
		BuyOrderID:      buy.ID,
		SellOrderID:     sell.ID,
		ItemID:          buy.ItemID,
		RegionID:        buy.RegionID,
		Quantity:        quantity,
		UnitPriceCents:  price,
		TotalPriceCents: total,
		Tick:            m.tick,
	}

	// Buyer: release reservation at the buyer's limit, debit cash at the
	// trade price, receive inventory in the buy order's region.
	buyer, err := m.company(ctx, buy.CompanyID)
	if err != nil {
		return model.Trade{}, err
	}
	buyer.ReservedCashCents -= buyerRelease
	buyer.CashCents -= total
	if err := m.saveCompany(ctx, buyer); err != nil {
		return model.Trade{}, err
	}
	if err := ledger.Post(ctx, m.tx, ledger.Posting{
		CompanyID:              buyer.ID,
		Tick:                   m.tick,
		EntryType:              model.EntryTradeDebit,
		DeltaCashCents:         -total,
		DeltaReservedCashCents: -buyerRelease,
		BalanceAfterCents:      buyer.CashCents,
		ReferenceType:          "trade",
		ReferenceID:            trade.ID,
	}); err != nil {
		return model.Trade{}, err
	}

	buyerInv, err := m.inventory(ctx, buy.CompanyID, buy.ItemID, buy.RegionID)
	if err != nil {
		return model.Trade{}, err
	}
	buyerInv.Quantity += quantity
	if err := m.saveInventory(ctx, buyerInv); err != nil {
		return model.Trade{}, err
	}

	// Seller: credit cash at the trade price, hand over reserved stock
	// from the sell order's region.
	seller, err := m.company(ctx, sell.CompanyID)
	if err != nil {
		return model.Trade{}, err
	}
	seller.CashCents += total
	if err := m.saveCompany(ctx, seller); err != nil {
		return model.Trade{}, err
	}
	if err := ledger.Post(ctx, m.tx, ledger.Posting{
		CompanyID:         seller.ID,
		Tick:              m.tick,
		EntryType:         model.EntryTradeCredit,
		DeltaCashCents:    total,
		BalanceAfterCents: seller.CashCents,
		ReferenceType:     "trade",
		ReferenceID:       trade.ID,
	}); err != nil {
		return model.Trade{}, err
	}

	sellerInv, err := m.inventory(ctx, sell.CompanyID, sell.ItemID, sell.RegionID)
	if err != nil {
		return model.Trade{}, err
	}
	sellerInv.Quantity -= quantity
	sellerInv.ReservedQuantity -= quantity
	if err := m.saveInventory(ctx, sellerInv); err != nil {
		return model.Trade{}, err
	}

	// Order transitions. FILLED is terminal and stamps tickClosed.
	buy.RemainingQuantity -= quantity
	buy.ReservedCashCents -= buyerRelease
	if buy.RemainingQuantity == 0 {
		buy.Status = model.OrderFilled
		tick := m.tick
		buy.TickClosed = &tick
	} else {
		buy.Status = model.OrderPartiallyFilled
	}
	if err := m.tx.UpdateOrder(ctx, *buy); err != nil {
		return model.Trade{}, err
	}

	sell.RemainingQuantity -= quantity
	sell.ReservedQuantity -= quantity
	if sell.RemainingQuantity == 0 {
		sell.Status = model.OrderFilled
		tick := m.tick
		sell.TickClosed = &tick
	} else {
		sell.Status = model.OrderPartiallyFilled
	}
	if err := m.tx.UpdateOrder(ctx, *sell); err != nil {
		return model.Trade{}, err
	}

	if err := m.tx.InsertTrade(ctx, trade); err != nil {
		return model.Trade{}, err
	}
	return trade, nil
}

// buildCandle aggregates one (item, region, tick) OHLCV row from the
// tick's trades, in execution order.
func buildCandle(itemID, regionID string, tick int64, trades []model.Trade) model.Candle {
	c := model.Candle{
		ItemID:     itemID,
		RegionID:   regionID,
		Tick:       tick,
		OpenCents:  trades[0].UnitPriceCents,
		HighCents:  trades[0].UnitPriceCents,
		LowCents:   trades[0].UnitPriceCents,
		CloseCents: trades[len(trades)-1].UnitPriceCents,
	}
	var notional int64
	for _, t := range trades {
		if t.UnitPriceCents > c.HighCents {
			c.HighCents = t.UnitPriceCents
		}
		if t.UnitPriceCents < c.LowCents {
			c.LowCents = t.UnitPriceCents
		}
		c.Volume += t.Quantity
		c.TradeCount++
		notional += t.UnitPriceCents * t.Quantity
	}
	c.VWAPCents = notional / c.Volume
	return c
}
