package invariant

import (
	"context"
	"testing"

	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
	"github.com/corpsim/corpsim/internal/store/memstore"
)

func TestScanCleanStore(t *testing.T) {
	st := memstore.New()
	st.SeedCompany(model.Company{ID: "a", CashCents: 1000, ReservedCashCents: 200})
	st.SeedInventory(model.Inventory{CompanyID: "a", ItemID: "iron", RegionID: "eu", Quantity: 10, ReservedQuantity: 3})

	report, err := NewScanner(st, nil).Scan(context.Background(), 100)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.HasViolations {
		t.Errorf("clean store reported violations: %+v", report.Issues)
	}
	if report.Truncated {
		t.Error("clean store reported truncation")
	}
}

func TestScanDetectsViolations(t *testing.T) {
	tests := []struct {
		name     string
		seed     func(st *memstore.Store)
		wantKind string
	}{
		{
			name: "negative cash",
			seed: func(st *memstore.Store) {
				st.SeedCompany(model.Company{ID: "a", CashCents: -5})
			},
			wantKind: "negative_cash",
		},
		{
			name: "reserved over cash",
			seed: func(st *memstore.Store) {
				st.SeedCompany(model.Company{ID: "a", CashCents: 100, ReservedCashCents: 200})
			},
			wantKind: "reserved_over_cash",
		},
		{
			name: "negative inventory",
			seed: func(st *memstore.Store) {
				st.SeedInventory(model.Inventory{CompanyID: "a", ItemID: "iron", RegionID: "eu", Quantity: -1})
			},
			wantKind: "negative_inventory",
		},
		{
			name: "reserved over quantity",
			seed: func(st *memstore.Store) {
				st.SeedInventory(model.Inventory{CompanyID: "a", ItemID: "iron", RegionID: "eu", Quantity: 5, ReservedQuantity: 9})
			},
			wantKind: "reserved_over_quantity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memstore.New()
			tt.seed(st)

			report, err := NewScanner(st, nil).Scan(context.Background(), 100)
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if !report.HasViolations {
				t.Fatal("violation not detected")
			}
			if len(report.Issues) != 1 {
				t.Fatalf("issues = %d, want 1", len(report.Issues))
			}
			if report.Issues[0].Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", report.Issues[0].Kind, tt.wantKind)
			}
		})
	}
}

func TestScanDetectsBrokenOrder(t *testing.T) {
	st := memstore.New()
	err := st.InTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertOrder(context.Background(), model.MarketOrder{
			ID: "o1", CompanyID: "a", ItemID: "iron", RegionID: "eu",
			Side: model.SideBuy, Status: model.OrderOpen,
			Quantity: 5, RemainingQuantity: 7, UnitPriceCents: 100,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := NewScanner(st, nil).Scan(context.Background(), 100)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !report.HasViolations || report.Issues[0].Kind != "order_bounds" {
		t.Errorf("report = %+v, want an order_bounds issue", report)
	}
}

func TestScanDetectsLedgerDrift(t *testing.T) {
	st := memstore.New()
	st.SeedCompany(model.Company{ID: "a", CashCents: 1000})
	err := st.InTx(context.Background(), func(tx store.Tx) error {
		return tx.AppendLedger(context.Background(), model.LedgerEntry{
			ID: "e1", CompanyID: "a", EntryType: model.EntryTradeCredit,
			DeltaCashCents: 500, BalanceAfterCents: 500,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := NewScanner(st, nil).Scan(context.Background(), 100)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !report.HasViolations || report.Issues[0].Kind != "ledger_drift" {
		t.Errorf("report = %+v, want a ledger_drift issue", report)
	}
}

func TestScanTruncatesAtLimit(t *testing.T) {
	st := memstore.New()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		st.SeedCompany(model.Company{ID: id, CashCents: -1})
	}

	report, err := NewScanner(st, nil).Scan(context.Background(), 3)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.Issues) != 3 {
		t.Errorf("issues = %d, want the limit 3", len(report.Issues))
	}
	if !report.Truncated {
		t.Error("Truncated not set at the limit")
	}
}
