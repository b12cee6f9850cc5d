package market

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
	"github.com/corpsim/corpsim/internal/store/memstore"
)

func TestPropertyPriceCompatibilityDeterminesMatching(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bidPrice := rapid.Int64Range(1, 10_000).Draw(t, "bidPrice")
		askPrice := rapid.Int64Range(1, 10_000).Draw(t, "askPrice")
		qty := rapid.Int64Range(1, 100).Draw(t, "qty")

		st := memstore.New()
		st.SeedCompany(model.Company{
			ID: "b", CashCents: bidPrice * qty, ResearchTier: 1, Regions: []string{"eu"},
		})
		st.SeedCompany(model.Company{
			ID: "s", ResearchTier: 1, Regions: []string{"eu"},
		})
		st.SeedItem(model.Item{ID: "iron", Tier: 1})
		st.SeedInventory(model.Inventory{
			CompanyID: "s", ItemID: "iron", RegionID: "eu", Quantity: qty,
		})
		e := NewEngine(nil)

		var result MatchResult
		err := st.InTx(context.Background(), func(tx store.Tx) error {
			ctx := context.Background()
			if _, err := e.PlaceOrder(ctx, tx, PlaceOrderRequest{
				CompanyID: "s", ItemID: "iron", RegionID: "eu",
				Side: model.SideSell, Quantity: qty, UnitPriceCents: askPrice, Tick: 1,
			}); err != nil {
				return fmt.Errorf("place ask: %w", err)
			}
			if _, err := e.PlaceOrder(ctx, tx, PlaceOrderRequest{
				CompanyID: "b", ItemID: "iron", RegionID: "eu",
				Side: model.SideBuy, Quantity: qty, UnitPriceCents: bidPrice, Tick: 1,
			}); err != nil {
				return fmt.Errorf("place bid: %w", err)
			}
			var err error
			result, err = e.MatchTick(ctx, tx, "iron", "eu", 2)
			return err
		})
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}

		shouldMatch := bidPrice >= askPrice
		if shouldMatch && len(result.Trades) == 0 {
			t.Fatalf("expected trade when bid=%d >= ask=%d, got none", bidPrice, askPrice)
		}
		if !shouldMatch && len(result.Trades) != 0 {
			t.Fatalf("expected no trade when bid=%d < ask=%d, got %d", bidPrice, askPrice, len(result.Trades))
		}
		if shouldMatch && result.Trades[0].UnitPriceCents != askPrice {
			t.Fatalf("clearing price = %d, want the ask %d", result.Trades[0].UnitPriceCents, askPrice)
		}
	})
}

func TestPropertyConservationAndBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := memstore.New()
		const region = "eu"
		nCompanies := rapid.IntRange(2, 4).Draw(t, "companies")
		var startCash int64
		for i := 0; i < nCompanies; i++ {
			cash := rapid.Int64Range(0, 1_000_000).Draw(t, fmt.Sprintf("cash%d", i))
			startCash += cash
			st.SeedCompany(model.Company{
				ID: fmt.Sprintf("c%d", i), CashCents: cash,
				ResearchTier: 1, Regions: []string{region},
			})
			st.SeedInventory(model.Inventory{
				CompanyID: fmt.Sprintf("c%d", i), ItemID: "iron", RegionID: region,
				Quantity: rapid.Int64Range(0, 500).Draw(t, fmt.Sprintf("inv%d", i)),
			})
		}
		st.SeedItem(model.Item{ID: "iron", Tier: 1})
		e := NewEngine(nil)

		nOrders := rapid.IntRange(1, 20).Draw(t, "orders")
		err := st.InTx(context.Background(), func(tx store.Tx) error {
			ctx := context.Background()
			for i := 0; i < nOrders; i++ {
				req := PlaceOrderRequest{
					CompanyID:      fmt.Sprintf("c%d", rapid.IntRange(0, nCompanies-1).Draw(t, fmt.Sprintf("company%d", i))),
					ItemID:         "iron",
					RegionID:       region,
					Side:           model.SideBuy,
					Quantity:       rapid.Int64Range(1, 50).Draw(t, fmt.Sprintf("qty%d", i)),
					UnitPriceCents: rapid.Int64Range(1, 500).Draw(t, fmt.Sprintf("price%d", i)),
					Tick:           1,
				}
				if rapid.Bool().Draw(t, fmt.Sprintf("sell%d", i)) {
					req.Side = model.SideSell
				}
				// Rejections for funds or stock are part of normal flow.
				if _, err := e.PlaceOrder(ctx, tx, req); err != nil {
					continue
				}
			}
			_, err := e.MatchTick(ctx, tx, "iron", region, 2)
			return err
		})
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}

		// Total cash is conserved and every row stays within bounds.
		var endCash int64
		err = st.InTx(context.Background(), func(tx store.Tx) error {
			ctx := context.Background()
			for i := 0; i < nCompanies; i++ {
				c, err := tx.Company(ctx, fmt.Sprintf("c%d", i))
				if err != nil {
					return err
				}
				endCash += c.CashCents
				if c.CashCents < 0 {
					t.Fatalf("company %s cash went negative: %d", c.ID, c.CashCents)
				}
				if c.ReservedCashCents < 0 || c.ReservedCashCents > c.CashCents {
					t.Fatalf("company %s reserved %d out of bounds for cash %d", c.ID, c.ReservedCashCents, c.CashCents)
				}
				inv, err := tx.Inventory(ctx, c.ID, "iron", region)
				if err != nil {
					return err
				}
				if inv.Quantity < 0 || inv.ReservedQuantity < 0 || inv.ReservedQuantity > inv.Quantity {
					t.Fatalf("inventory for %s out of bounds: qty=%d reserved=%d", c.ID, inv.Quantity, inv.ReservedQuantity)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if endCash != startCash {
			t.Fatalf("total cash drifted: start %d, end %d", startCash, endCash)
		}

		issues, err := st.BrokenCompanies(context.Background(), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(issues) != 0 {
			t.Fatalf("invariant scan found broken companies: %+v", issues)
		}
	})
}
