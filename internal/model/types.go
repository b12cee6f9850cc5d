package model

import "time"

// -----------------------------------------------------------------------------
// World State
// -----------------------------------------------------------------------------

// WorldClock is the single versioned row holding the current simulation tick.
// Only the tick engine mutates it, and only through the conditional update
// keyed on LockVersion.
type WorldClock struct {
	CurrentTick    int64      // Current simulation tick (starts at 0)
	LockVersion    int64      // Optimistic concurrency counter (starts at 0)
	LastAdvancedAt *time.Time // When the last tick committed (nil before the first)
}

// Company holds the cash columns the core constrains. The wider company
// record (name, owner, buildings) belongs to the domain layer.
type Company struct {
	ID                string
	Name              string
	CashCents         int64    // Total cash; never negative
	ReservedCashCents int64    // Cash held against open BUY orders; 0 <= reserved <= cash
	ResearchTier      int      // Highest unlocked item tier
	Regions           []string // Regions the company operates in
}

// AvailableCashCents is the cash not held by open order reservations.
func (c Company) AvailableCashCents() int64 {
	return c.CashCents - c.ReservedCashCents
}

// OperatesIn reports whether the company has a presence in the region.
func (c Company) OperatesIn(regionID string) bool {
	for _, r := range c.Regions {
		if r == regionID {
			return true
		}
	}
	return false
}

// Item is a tradeable good from the catalog.
type Item struct {
	ID   string
	Name string
	Tier int // Research tier required to trade the item
}

// Inventory is a company's stock of one item in one region.
type Inventory struct {
	CompanyID        string
	ItemID           string
	RegionID         string
	Quantity         int64 // Never negative
	ReservedQuantity int64 // Held against open SELL orders; 0 <= reserved <= quantity
}

// AvailableQuantity is the stock not held by open order reservations.
func (i Inventory) AvailableQuantity() int64 {
	return i.Quantity - i.ReservedQuantity
}

// ControlState is the persisted worker control row. It survives restarts so
// an invariant-policy escalation stays in force until an operator clears it.
type ControlState struct {
	BotsPaused        bool
	ProcessingStopped bool
}

// -----------------------------------------------------------------------------
// Coordination
// -----------------------------------------------------------------------------

// SimulationLease is exclusive, time-bound ownership of a named role.
type SimulationLease struct {
	Name      string // Unique role name (e.g., "scheduler", "tick-processor")
	OwnerID   string
	ExpiresAt time.Time
}

// ExpiredAt reports whether the lease has expired as of now.
func (l SimulationLease) ExpiredAt(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// TickExecutionJournal marks a logical tick-advance as already applied.
// Rows are pruned by retention policy keyed off TickAfter.
type TickExecutionJournal struct {
	ExecutionKey string // Unique idempotency token
	TickAfter    int64  // Clock tick after the advance was applied
	CreatedAt    time.Time
}

// BookKey identifies one market order book.
type BookKey struct {
	ItemID   string
	RegionID string
}

// -----------------------------------------------------------------------------
// Auditing
// -----------------------------------------------------------------------------

// InvariantIssue is one violation found by a consistency scan.
type InvariantIssue struct {
	Kind        string `json:"kind"` // e.g., "negative_cash", "inventory_over_reserved"
	CompanyID   string `json:"company_id,omitempty"`
	ItemID      string `json:"item_id,omitempty"` // Set for inventory issues
	RegionID    string `json:"region_id,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"` // Set for order/ledger issues
	Detail      string `json:"detail"`
}
