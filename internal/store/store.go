package store

import (
	"context"
	"errors"
	"time"

	"github.com/corpsim/corpsim/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Tx is the set of state operations available inside one simulation
// transaction. Implementations roll the whole transaction back when the
// InTx callback returns an error.
type Tx interface {
	// World clock.
	Clock(ctx context.Context) (model.WorldClock, error)
	// AdvanceClock conditionally increments currentTick and lockVersion by
	// one and stamps lastAdvancedAt, but only if the stored lockVersion
	// still equals observedLockVersion. Returns false when another advancer
	// committed first.
	AdvanceClock(ctx context.Context, observedLockVersion int64, now time.Time) (bool, error)
	// ResetClock sets currentTick back to zero. The lock version keeps
	// increasing so concurrent advancers still conflict cleanly.
	ResetClock(ctx context.Context) error

	// Companies and catalog.
	Company(ctx context.Context, id string) (model.Company, error)
	UpdateCompanyCash(ctx context.Context, id string, cashCents, reservedCashCents int64) error
	Item(ctx context.Context, id string) (model.Item, error)

	// Inventory.
	Inventory(ctx context.Context, companyID, itemID, regionID string) (model.Inventory, error)
	UpsertInventory(ctx context.Context, inv model.Inventory) error

	// Orders and trades.
	InsertOrder(ctx context.Context, o model.MarketOrder) error
	Order(ctx context.Context, id string) (model.MarketOrder, error)
	UpdateOrder(ctx context.Context, o model.MarketOrder) error
	// OpenOrders returns non-terminal orders for one book, oldest first.
	OpenOrders(ctx context.Context, itemID, regionID string) ([]model.MarketOrder, error)
	// ActiveBooks returns every (item, region) with at least one open order.
	ActiveBooks(ctx context.Context) ([]model.BookKey, error)
	InsertTrade(ctx context.Context, t model.Trade) error

	// Ledger and candles. The ledger is append-only: no update or delete
	// exists on this interface by design of the data model.
	AppendLedger(ctx context.Context, e model.LedgerEntry) error
	UpsertCandle(ctx context.Context, c model.Candle) error

	// Worker control state.
	ControlState(ctx context.Context) (model.ControlState, error)
	SetControlState(ctx context.Context, s model.ControlState) error

	// Tick execution journal.
	JournalExists(ctx context.Context, executionKey string) (bool, error)
	InsertJournal(ctx context.Context, executionKey string, tickAfter int64) error
}

// Store is the full persistence surface.
type Store interface {
	// InTx runs fn inside one transaction, committing on nil and rolling
	// back on error.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// ReadClock is a non-transactional snapshot for status endpoints.
	// It may trail an in-flight advance but never shows partial state.
	ReadClock(ctx context.Context) (model.WorldClock, error)

	// Lease operations. Each is exactly one round trip and never blocks.
	// TryAcquireLease succeeds when the lease is absent, expired, or,
	// with allowReentry, already held by ownerID.
	TryAcquireLease(ctx context.Context, name, ownerID string, ttl time.Duration, allowReentry bool) (bool, error)
	// ReleaseLease deletes the lease only if still owned by ownerID.
	ReleaseLease(ctx context.Context, name, ownerID string) error
	GetLease(ctx context.Context, name string) (model.SimulationLease, error)

	// PruneJournal deletes journal rows with tickAfter < beforeTick and
	// reports how many were removed.
	PruneJournal(ctx context.Context, beforeTick int64) (int64, error)

	// Invariant scan queries. Read-only, each capped at limit rows.
	BrokenCompanies(ctx context.Context, limit int) ([]model.Company, error)
	BrokenInventories(ctx context.Context, limit int) ([]model.Inventory, error)
	BrokenOrders(ctx context.Context, limit int) ([]model.MarketOrder, error)
	// LedgerDrift returns companies whose latest ledger balance_after does
	// not equal their current cash.
	LedgerDrift(ctx context.Context, limit int) ([]model.Company, error)
}
