// Package memstore is an in-memory store.Store used by tests and
// single-process experiments. Transactions clone the whole state up front
// and swap it back in on commit, so a failed callback leaves nothing
// behind, matching the rollback semantics of the Postgres store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
)

type invKey struct {
	CompanyID string
	ItemID    string
	RegionID  string
}

type candleKey struct {
	ItemID   string
	RegionID string
	Tick     int64
}

type state struct {
	clock       model.WorldClock
	companies   map[string]model.Company
	items       map[string]model.Item
	inventories map[invKey]model.Inventory
	orders      map[string]model.MarketOrder
	trades      []model.Trade
	ledger      []model.LedgerEntry
	candles     map[candleKey]model.Candle
	control     model.ControlState
	journal     map[string]model.TickExecutionJournal
}

func newState() *state {
	return &state{
		companies:   make(map[string]model.Company),
		items:       make(map[string]model.Item),
		inventories: make(map[invKey]model.Inventory),
		orders:      make(map[string]model.MarketOrder),
		candles:     make(map[candleKey]model.Candle),
		journal:     make(map[string]model.TickExecutionJournal),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.clock = s.clock
	if s.clock.LastAdvancedAt != nil {
		t := *s.clock.LastAdvancedAt
		c.clock.LastAdvancedAt = &t
	}
	for k, v := range s.companies {
		v.Regions = append([]string(nil), v.Regions...)
		c.companies[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.inventories {
		c.inventories[k] = v
	}
	for k, v := range s.orders {
		if v.TickClosed != nil {
			t := *v.TickClosed
			v.TickClosed = &t
		}
		c.orders[k] = v
	}
	c.trades = append([]model.Trade(nil), s.trades...)
	c.ledger = append([]model.LedgerEntry(nil), s.ledger...)
	for k, v := range s.candles {
		c.candles[k] = v
	}
	c.control = s.control
	for k, v := range s.journal {
		c.journal[k] = v
	}
	return c
}

// Store is the in-memory implementation of store.Store.
type Store struct {
	mu     sync.Mutex
	st     *state
	leases map[string]model.SimulationLease

	// now lets tests pin the clock for lease expiry.
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		st:     newState(),
		leases: make(map[string]model.SimulationLease),
		now:    time.Now,
	}
}

// SetNow overrides the wall clock. Tests only.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// InTx runs fn against a clone of the state and swaps the clone in on
// success. The store mutex is held for the duration, mirroring the
// single-writer reality of tick processing.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.clone()
	if err := fn(&tx{st: next, now: s.now}); err != nil {
		return err
	}
	s.st = next
	return nil
}

// ReadClock returns the committed clock.
func (s *Store) ReadClock(ctx context.Context) (model.WorldClock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clock, nil
}

// -----------------------------------------------------------------------------
// Leases
// -----------------------------------------------------------------------------

// TryAcquireLease implements the conditional-upsert lease protocol on the
// live lease map. Exactly one caller can win a contended name.
func (s *Store) TryAcquireLease(ctx context.Context, name, ownerID string, ttl time.Duration, allowReentry bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cur, ok := s.leases[name]
	if ok {
		if !cur.ExpiredAt(now) && !(allowReentry && cur.OwnerID == ownerID) {
			return false, nil
		}
	}
	s.leases[name] = model.SimulationLease{
		Name:      name,
		OwnerID:   ownerID,
		ExpiresAt: now.Add(ttl),
	}
	return true, nil
}

// ReleaseLease deletes the lease only if still owned by ownerID.
func (s *Store) ReleaseLease(ctx context.Context, name, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.leases[name]; ok && cur.OwnerID == ownerID {
		delete(s.leases, name)
	}
	return nil
}

// GetLease returns the lease row for name.
func (s *Store) GetLease(ctx context.Context, name string) (model.SimulationLease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.leases[name]
	if !ok {
		return model.SimulationLease{}, store.ErrNotFound
	}
	return cur, nil
}

// -----------------------------------------------------------------------------
// Maintenance and scans
// -----------------------------------------------------------------------------

// PruneJournal deletes journal rows applied before beforeTick.
func (s *Store) PruneJournal(ctx context.Context, beforeTick int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, row := range s.st.journal {
		if row.TickAfter < beforeTick {
			delete(s.st.journal, k)
			n++
		}
	}
	return n, nil
}

// BrokenCompanies returns companies violating the cash bounds.
func (s *Store) BrokenCompanies(ctx context.Context, limit int) ([]model.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Company
	for _, id := range sortedKeys(s.st.companies) {
		c := s.st.companies[id]
		if c.CashCents < 0 || c.ReservedCashCents < 0 || c.ReservedCashCents > c.CashCents {
			out = append(out, c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// BrokenInventories returns inventory rows violating the quantity bounds.
func (s *Store) BrokenInventories(ctx context.Context, limit int) ([]model.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]invKey, 0, len(s.st.inventories))
	for k := range s.st.inventories {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.CompanyID != b.CompanyID {
			return a.CompanyID < b.CompanyID
		}
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		return a.RegionID < b.RegionID
	})
	var out []model.Inventory
	for _, k := range keys {
		inv := s.st.inventories[k]
		if inv.Quantity < 0 || inv.ReservedQuantity < 0 || inv.ReservedQuantity > inv.Quantity {
			out = append(out, inv)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// BrokenOrders returns orders violating structural bounds.
func (s *Store) BrokenOrders(ctx context.Context, limit int) ([]model.MarketOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MarketOrder
	for _, id := range sortedKeys(s.st.orders) {
		o := s.st.orders[id]
		if brokenOrder(o) {
			out = append(out, o)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func brokenOrder(o model.MarketOrder) bool {
	if o.RemainingQuantity > o.Quantity || o.RemainingQuantity < 0 {
		return true
	}
	if o.Status.Terminal() {
		return false
	}
	if o.Side == model.SideBuy {
		return o.ReservedCashCents != o.RemainingQuantity*o.UnitPriceCents
	}
	return o.ReservedQuantity != o.RemainingQuantity
}

// LedgerDrift returns companies whose latest ledger balance_after does not
// match their cash.
func (s *Store) LedgerDrift(ctx context.Context, limit int) ([]model.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := make(map[string]int64)
	seen := make(map[string]bool)
	for i := len(s.st.ledger) - 1; i >= 0; i-- {
		e := s.st.ledger[i]
		if !seen[e.CompanyID] {
			seen[e.CompanyID] = true
			latest[e.CompanyID] = e.BalanceAfterCents
		}
	}
	var out []model.Company
	for _, id := range sortedKeys(s.st.companies) {
		c := s.st.companies[id]
		if bal, ok := latest[id]; ok && bal != c.CashCents {
			out = append(out, c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// -----------------------------------------------------------------------------
// Seeding and inspection helpers (tests, local bootstrap)
// -----------------------------------------------------------------------------

// SeedCompany inserts or replaces a company outside any transaction.
func (s *Store) SeedCompany(c model.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.companies[c.ID] = c
}

// SeedItem inserts or replaces a catalog item.
func (s *Store) SeedItem(it model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.items[it.ID] = it
}

// SeedInventory inserts or replaces an inventory row.
func (s *Store) SeedInventory(inv model.Inventory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.inventories[invKey{inv.CompanyID, inv.ItemID, inv.RegionID}] = inv
}

// Trades returns a copy of all trades, in execution order.
func (s *Store) Trades() []model.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Trade(nil), s.st.trades...)
}

// Ledger returns a copy of all ledger entries for a company, in posting
// order. Empty companyID returns everything.
func (s *Store) Ledger(companyID string) []model.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LedgerEntry
	for _, e := range s.st.ledger {
		if companyID == "" || e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out
}

// CandleAt returns the candle for one (item, region, tick), if any.
func (s *Store) CandleAt(itemID, regionID string, tick int64) (model.Candle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.candles[candleKey{itemID, regionID, tick}]
	return c, ok
}
