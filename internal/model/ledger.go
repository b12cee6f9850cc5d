package model

import "time"

// Ledger entry types posted by the core. Domain resolvers post their own
// free-form types (e.g., "PRODUCTION_WAGES") through the same append path.
const (
	EntryOrderReserve = "ORDER_RESERVE"
	EntryOrderRelease = "ORDER_RELEASE"
	EntryTradeDebit   = "TRADE_DEBIT"
	EntryTradeCredit  = "TRADE_CREDIT"
)

// LedgerEntry is one posting in the append-only cash ledger. Rows are never
// updated or deleted; the ledger is the audit trail every invariant check
// reconciles against.
type LedgerEntry struct {
	ID                     string
	CompanyID              string
	Tick                   int64
	EntryType              string
	DeltaCashCents         int64 // Change to cash_cents
	DeltaReservedCashCents int64 // Change to reserved_cash_cents
	BalanceAfterCents      int64 // cash_cents after this posting
	ReferenceType          string // e.g., "order", "trade"
	ReferenceID            string
	CreatedAt              time.Time
}
