// Package ledger posts entries to the append-only cash ledger.
//
// Every mutation of company cash or cash reservations goes through Post in
// the same transaction as the mutation itself, carrying the resulting
// balance. The ledger is what the invariant scanner and the test suite
// reconcile against; nothing in this package (or the store contract) can
// update or delete a posted entry.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
)

// Posting describes one ledger entry to append.
type Posting struct {
	CompanyID              string
	Tick                   int64
	EntryType              string
	DeltaCashCents         int64
	DeltaReservedCashCents int64
	BalanceAfterCents      int64 // Company cash after the mutation this posting records
	ReferenceType          string
	ReferenceID            string
}

// Post appends one entry. The caller must already have applied the cash
// mutation the posting records, inside the same transaction.
func Post(ctx context.Context, tx store.Tx, p Posting) error {
	e := model.LedgerEntry{
		ID:                     uuid.NewString(),
		CompanyID:              p.CompanyID,
		Tick:                   p.Tick,
		EntryType:              p.EntryType,
		DeltaCashCents:         p.DeltaCashCents,
		DeltaReservedCashCents: p.DeltaReservedCashCents,
		BalanceAfterCents:      p.BalanceAfterCents,
		ReferenceType:          p.ReferenceType,
		ReferenceID:            p.ReferenceID,
		CreatedAt:              time.Now().UTC(),
	}
	if err := tx.AppendLedger(ctx, e); err != nil {
		return fmt.Errorf("post %s for company %s: %w", p.EntryType, p.CompanyID, err)
	}
	return nil
}
