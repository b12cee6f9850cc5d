// Package postgres implements store.Store on a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Store is the Postgres-backed implementation of store.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ensure applies the idempotent schema.
func (s *Store) Ensure(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// InTx runs fn inside one database transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(ptx pgx.Tx) error {
		return fn(&tx{tx: ptx})
	})
}

// ReadClock returns the committed clock without opening a transaction.
func (s *Store) ReadClock(ctx context.Context) (model.WorldClock, error) {
	return scanClock(s.pool.QueryRow(ctx,
		`SELECT current_tick, lock_version, last_advanced_at FROM world_clock WHERE id = 1`))
}

// TryAcquireLease implements the lock-free lease protocol: one conditional
// update, falling back to an insert for a first-ever claim. A unique
// conflict on the insert means a concurrent acquirer won.
func (s *Store) TryAcquireLease(ctx context.Context, name, ownerID string, ttl time.Duration, allowReentry bool) (bool, error) {
	expires := time.Now().UTC().Add(ttl)

	tag, err := s.pool.Exec(ctx,
		`UPDATE simulation_leases
		    SET owner_id = $2, expires_at = $3
		  WHERE name = $1
		    AND (expires_at <= now() OR (owner_id = $2 AND $4))`,
		name, ownerID, expires, allowReentry)
	if err != nil {
		return false, fmt.Errorf("acquire lease %q: %w", name, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	tag, err = s.pool.Exec(ctx,
		`INSERT INTO simulation_leases (name, owner_id, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		name, ownerID, expires)
	if err != nil {
		return false, fmt.Errorf("claim lease %q: %w", name, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseLease deletes the lease only if still owned by ownerID.
func (s *Store) ReleaseLease(ctx context.Context, name, ownerID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM simulation_leases WHERE name = $1 AND owner_id = $2`,
		name, ownerID)
	if err != nil {
		return fmt.Errorf("release lease %q: %w", name, err)
	}
	return nil
}

// GetLease returns the lease row for name.
func (s *Store) GetLease(ctx context.Context, name string) (model.SimulationLease, error) {
	var l model.SimulationLease
	err := s.pool.QueryRow(ctx,
		`SELECT name, owner_id, expires_at FROM simulation_leases WHERE name = $1`,
		name).Scan(&l.Name, &l.OwnerID, &l.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SimulationLease{}, store.ErrNotFound
	}
	if err != nil {
		return model.SimulationLease{}, fmt.Errorf("get lease %q: %w", name, err)
	}
	return l, nil
}

// PruneJournal deletes journal rows applied before beforeTick.
func (s *Store) PruneJournal(ctx context.Context, beforeTick int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM tick_execution_journal WHERE tick_after < $1`, beforeTick)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return tag.RowsAffected(), nil
}

// BrokenCompanies returns companies violating the cash bounds.
func (s *Store) BrokenCompanies(ctx context.Context, limit int) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, cash_cents, reserved_cash_cents, research_tier, regions
		   FROM companies
		  WHERE cash_cents < 0 OR reserved_cash_cents < 0 OR reserved_cash_cents > cash_cents
		  ORDER BY id
		  LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("scan companies: %w", err)
	}
	defer rows.Close()
	return collectCompanies(rows)
}

// BrokenInventories returns inventory rows violating the quantity bounds.
func (s *Store) BrokenInventories(ctx context.Context, limit int) ([]model.Inventory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company_id, item_id, region_id, quantity, reserved_quantity
		   FROM inventories
		  WHERE quantity < 0 OR reserved_quantity < 0 OR reserved_quantity > quantity
		  ORDER BY company_id, item_id, region_id
		  LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("scan inventories: %w", err)
	}
	defer rows.Close()

	var out []model.Inventory
	for rows.Next() {
		var inv model.Inventory
		if err := rows.Scan(&inv.CompanyID, &inv.ItemID, &inv.RegionID, &inv.Quantity, &inv.ReservedQuantity); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// BrokenOrders returns orders violating structural bounds.
func (s *Store) BrokenOrders(ctx context.Context, limit int) ([]model.MarketOrder, error) {
	rows, err := s.pool.Query(ctx,
		orderColumns+`
		  WHERE remaining_quantity > quantity
		     OR remaining_quantity < 0
		     OR (status IN ('OPEN', 'PARTIALLY_FILLED') AND side = 'BUY'
		         AND reserved_cash_cents <> remaining_quantity * unit_price_cents)
		     OR (status IN ('OPEN', 'PARTIALLY_FILLED') AND side = 'SELL'
		         AND reserved_quantity <> remaining_quantity)
		  ORDER BY id
		  LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// LedgerDrift returns companies whose latest ledger balance does not match
// their cash.
func (s *Store) LedgerDrift(ctx context.Context, limit int) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.name, c.cash_cents, c.reserved_cash_cents, c.research_tier, c.regions
		   FROM companies c
		   JOIN LATERAL (
		        SELECT balance_after_cents
		          FROM ledger_entries
		         WHERE company_id = c.id
		         ORDER BY seq DESC
		         LIMIT 1
		   ) latest ON TRUE
		  WHERE latest.balance_after_cents <> c.cash_cents
		  ORDER BY c.id
		  LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("scan ledger drift: %w", err)
	}
	defer rows.Close()
	return collectCompanies(rows)
}

func collectCompanies(rows pgx.Rows) ([]model.Company, error) {
	var out []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.CashCents, &c.ReservedCashCents, &c.ResearchTier, &c.Regions); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
