package model

import (
	"testing"
	"time"
)

func TestCompanyAvailableCash(t *testing.T) {
	c := Company{CashCents: 1000, ReservedCashCents: 300}
	if got := c.AvailableCashCents(); got != 700 {
		t.Errorf("AvailableCashCents() = %d, want 700", got)
	}
}

func TestCompanyOperatesIn(t *testing.T) {
	c := Company{Regions: []string{"eu", "us"}}
	if !c.OperatesIn("eu") {
		t.Error("OperatesIn(eu) = false, want true")
	}
	if c.OperatesIn("mars") {
		t.Error("OperatesIn(mars) = true, want false")
	}
	if (Company{}).OperatesIn("eu") {
		t.Error("company with no regions operates somewhere")
	}
}

func TestInventoryAvailableQuantity(t *testing.T) {
	inv := Inventory{Quantity: 50, ReservedQuantity: 20}
	if got := inv.AvailableQuantity(); got != 30 {
		t.Errorf("AvailableQuantity() = %d, want 30", got)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderOpen, false},
		{OrderPartiallyFilled, false},
		{OrderFilled, true},
		{OrderCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestLeaseExpiredAt(t *testing.T) {
	now := time.Now()
	l := SimulationLease{ExpiresAt: now.Add(time.Minute)}
	if l.ExpiredAt(now) {
		t.Error("lease expired before its TTL")
	}
	if !l.ExpiredAt(now.Add(time.Minute)) {
		t.Error("lease still live exactly at expiry")
	}
	if !l.ExpiredAt(now.Add(2 * time.Minute)) {
		t.Error("lease still live past expiry")
	}
}

func TestOrderBook(t *testing.T) {
	o := MarketOrder{ItemID: "iron", RegionID: "eu"}
	if got := o.Book(); got != (BookKey{ItemID: "iron", RegionID: "eu"}) {
		t.Errorf("Book() = %+v", got)
	}
}
