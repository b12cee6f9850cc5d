package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
)

const orderColumns = `SELECT id, company_id, item_id, region_id, side, status,
       quantity, remaining_quantity, unit_price_cents,
       reserved_cash_cents, reserved_quantity, tick_placed, tick_closed
  FROM market_orders`

// tx implements store.Tx on a pgx transaction.
type tx struct {
	tx pgx.Tx
}

var _ store.Tx = (*tx)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClock(row rowScanner) (model.WorldClock, error) {
	var c model.WorldClock
	if err := row.Scan(&c.CurrentTick, &c.LockVersion, &c.LastAdvancedAt); err != nil {
		return model.WorldClock{}, fmt.Errorf("read world clock: %w", err)
	}
	return c, nil
}

func (t *tx) Clock(ctx context.Context) (model.WorldClock, error) {
	return scanClock(t.tx.QueryRow(ctx,
		`SELECT current_tick, lock_version, last_advanced_at FROM world_clock WHERE id = 1`))
}

func (t *tx) AdvanceClock(ctx context.Context, observedLockVersion int64, now time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE world_clock
		    SET current_tick = current_tick + 1,
		        lock_version = lock_version + 1,
		        last_advanced_at = $2
		  WHERE id = 1 AND lock_version = $1`,
		observedLockVersion, now.UTC())
	if err != nil {
		return false, fmt.Errorf("advance world clock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *tx) ResetClock(ctx context.Context) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE world_clock
		    SET current_tick = 0,
		        lock_version = lock_version + 1,
		        last_advanced_at = now()
		  WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("reset world clock: %w", err)
	}
	return nil
}

func (t *tx) Company(ctx context.Context, id string) (model.Company, error) {
	var c model.Company
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, cash_cents, reserved_cash_cents, research_tier, regions
		   FROM companies WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.CashCents, &c.ReservedCashCents, &c.ResearchTier, &c.Regions)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Company{}, store.ErrNotFound
	}
	if err != nil {
		return model.Company{}, fmt.Errorf("get company %s: %w", id, err)
	}
	return c, nil
}

func (t *tx) UpdateCompanyCash(ctx context.Context, id string, cashCents, reservedCashCents int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE companies SET cash_cents = $2, reserved_cash_cents = $3 WHERE id = $1`,
		id, cashCents, reservedCashCents)
	if err != nil {
		return fmt.Errorf("update company cash %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) Item(ctx context.Context, id string) (model.Item, error) {
	var it model.Item
	err := t.tx.QueryRow(ctx,
		`SELECT id, name, tier FROM items WHERE id = $1`, id).
		Scan(&it.ID, &it.Name, &it.Tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Item{}, store.ErrNotFound
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return it, nil
}

func (t *tx) Inventory(ctx context.Context, companyID, itemID, regionID string) (model.Inventory, error) {
	var inv model.Inventory
	err := t.tx.QueryRow(ctx,
		`SELECT company_id, item_id, region_id, quantity, reserved_quantity
		   FROM inventories WHERE company_id = $1 AND item_id = $2 AND region_id = $3`,
		companyID, itemID, regionID).
		Scan(&inv.CompanyID, &inv.ItemID, &inv.RegionID, &inv.Quantity, &inv.ReservedQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Inventory{}, store.ErrNotFound
	}
	if err != nil {
		return model.Inventory{}, fmt.Errorf("get inventory: %w", err)
	}
	return inv, nil
}

func (t *tx) UpsertInventory(ctx context.Context, inv model.Inventory) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO inventories (company_id, item_id, region_id, quantity, reserved_quantity)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (company_id, item_id, region_id)
		 DO UPDATE SET quantity = EXCLUDED.quantity, reserved_quantity = EXCLUDED.reserved_quantity`,
		inv.CompanyID, inv.ItemID, inv.RegionID, inv.Quantity, inv.ReservedQuantity)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	return nil
}

func (t *tx) InsertOrder(ctx context.Context, o model.MarketOrder) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO market_orders
		 (id, company_id, item_id, region_id, side, status, quantity, remaining_quantity,
		  unit_price_cents, reserved_cash_cents, reserved_quantity, tick_placed, tick_closed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.CompanyID, o.ItemID, o.RegionID, o.Side, o.Status, o.Quantity, o.RemainingQuantity,
		o.UnitPriceCents, o.ReservedCashCents, o.ReservedQuantity, o.TickPlaced, o.TickClosed)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *tx) Order(ctx context.Context, id string) (model.MarketOrder, error) {
	row := t.tx.QueryRow(ctx, orderColumns+` WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.MarketOrder{}, store.ErrNotFound
	}
	if err != nil {
		return model.MarketOrder{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func (t *tx) UpdateOrder(ctx context.Context, o model.MarketOrder) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE market_orders
		    SET status = $2, remaining_quantity = $3, reserved_cash_cents = $4,
		        reserved_quantity = $5, tick_closed = $6
		  WHERE id = $1`,
		o.ID, o.Status, o.RemainingQuantity, o.ReservedCashCents, o.ReservedQuantity, o.TickClosed)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) OpenOrders(ctx context.Context, itemID, regionID string) ([]model.MarketOrder, error) {
	rows, err := t.tx.Query(ctx,
		orderColumns+`
		  WHERE item_id = $1 AND region_id = $2 AND status IN ('OPEN', 'PARTIALLY_FILLED')
		  ORDER BY tick_placed, id`,
		itemID, regionID)
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (t *tx) ActiveBooks(ctx context.Context) ([]model.BookKey, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT DISTINCT item_id, region_id
		   FROM market_orders
		  WHERE status IN ('OPEN', 'PARTIALLY_FILLED')
		  ORDER BY item_id, region_id`)
	if err != nil {
		return nil, fmt.Errorf("active books: %w", err)
	}
	defer rows.Close()

	var out []model.BookKey
	for rows.Next() {
		var k model.BookKey
		if err := rows.Scan(&k.ItemID, &k.RegionID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (t *tx) InsertTrade(ctx context.Context, tr model.Trade) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO trades
		 (id, buy_order_id, sell_order_id, item_id, region_id, quantity,
		  unit_price_cents, total_price_cents, tick)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tr.ID, tr.BuyOrderID, tr.SellOrderID, tr.ItemID, tr.RegionID, tr.Quantity,
		tr.UnitPriceCents, tr.TotalPriceCents, tr.Tick)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (t *tx) AppendLedger(ctx context.Context, e model.LedgerEntry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_entries
		 (id, company_id, tick, entry_type, delta_cash_cents, delta_reserved_cash_cents,
		  balance_after_cents, reference_type, reference_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.CompanyID, e.Tick, e.EntryType, e.DeltaCashCents, e.DeltaReservedCashCents,
		e.BalanceAfterCents, e.ReferenceType, e.ReferenceID, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (t *tx) UpsertCandle(ctx context.Context, c model.Candle) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO candles
		 (item_id, region_id, tick, open_cents, high_cents, low_cents, close_cents,
		  volume, trade_count, vwap_cents)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (item_id, region_id, tick)
		 DO UPDATE SET open_cents = EXCLUDED.open_cents, high_cents = EXCLUDED.high_cents,
		               low_cents = EXCLUDED.low_cents, close_cents = EXCLUDED.close_cents,
		               volume = EXCLUDED.volume, trade_count = EXCLUDED.trade_count,
		               vwap_cents = EXCLUDED.vwap_cents`,
		c.ItemID, c.RegionID, c.Tick, c.OpenCents, c.HighCents, c.LowCents, c.CloseCents,
		c.Volume, c.TradeCount, c.VWAPCents)
	if err != nil {
		return fmt.Errorf("upsert candle: %w", err)
	}
	return nil
}

func (t *tx) ControlState(ctx context.Context) (model.ControlState, error) {
	var s model.ControlState
	err := t.tx.QueryRow(ctx,
		`SELECT bots_paused, processing_stopped FROM control_state WHERE id = 1`).
		Scan(&s.BotsPaused, &s.ProcessingStopped)
	if err != nil {
		return model.ControlState{}, fmt.Errorf("read control state: %w", err)
	}
	return s, nil
}

func (t *tx) SetControlState(ctx context.Context, s model.ControlState) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE control_state SET bots_paused = $1, processing_stopped = $2 WHERE id = 1`,
		s.BotsPaused, s.ProcessingStopped)
	if err != nil {
		return fmt.Errorf("set control state: %w", err)
	}
	return nil
}

func (t *tx) JournalExists(ctx context.Context, executionKey string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tick_execution_journal WHERE execution_key = $1)`,
		executionKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check journal: %w", err)
	}
	return exists, nil
}

func (t *tx) InsertJournal(ctx context.Context, executionKey string, tickAfter int64) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO tick_execution_journal (execution_key, tick_after) VALUES ($1, $2)`,
		executionKey, tickAfter)
	if err != nil {
		return fmt.Errorf("insert journal row: %w", err)
	}
	return nil
}

func scanOrder(row rowScanner) (model.MarketOrder, error) {
	var o model.MarketOrder
	err := row.Scan(&o.ID, &o.CompanyID, &o.ItemID, &o.RegionID, &o.Side, &o.Status,
		&o.Quantity, &o.RemainingQuantity, &o.UnitPriceCents,
		&o.ReservedCashCents, &o.ReservedQuantity, &o.TickPlaced, &o.TickClosed)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]model.MarketOrder, error) {
	var out []model.MarketOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
