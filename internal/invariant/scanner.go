// Package invariant audits the consistency of company cash, inventory, and
// order state. Scans are read-only; violations are reported and never
// repaired, leaving the data intact for inspection.
package invariant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
)

// Report is the outcome of one scan.
type Report struct {
	HasViolations bool                   `json:"has_violations"`
	Truncated     bool                   `json:"truncated"`
	Issues        []model.InvariantIssue `json:"issues"`
}

// Scanner runs aggregate consistency queries against the store.
type Scanner struct {
	store  store.Store
	logger *slog.Logger
}

// NewScanner creates a scanner.
func NewScanner(st store.Store, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{store: st, logger: logger}
}

// Scan collects up to limit issues across all checks. Truncated is set
// when the issue count hits the limit, meaning there may be more.
func (s *Scanner) Scan(ctx context.Context, limit int) (Report, error) {
	if limit < 1 {
		limit = 1
	}
	var report Report

	add := func(issue model.InvariantIssue) bool {
		report.Issues = append(report.Issues, issue)
		if len(report.Issues) >= limit {
			report.Truncated = true
			return false
		}
		return true
	}

	companies, err := s.store.BrokenCompanies(ctx, limit)
	if err != nil {
		return Report{}, fmt.Errorf("scan companies: %w", err)
	}
	for _, c := range companies {
		if !add(companyIssue(c)) {
			break
		}
	}

	if !report.Truncated {
		inventories, err := s.store.BrokenInventories(ctx, limit-len(report.Issues))
		if err != nil {
			return Report{}, fmt.Errorf("scan inventories: %w", err)
		}
		for _, inv := range inventories {
			if !add(inventoryIssue(inv)) {
				break
			}
		}
	}

	if !report.Truncated {
		orders, err := s.store.BrokenOrders(ctx, limit-len(report.Issues))
		if err != nil {
			return Report{}, fmt.Errorf("scan orders: %w", err)
		}
		for _, o := range orders {
			if !add(model.InvariantIssue{
				Kind:        "order_bounds",
				CompanyID:   o.CompanyID,
				ReferenceID: o.ID,
				Detail: fmt.Sprintf("order %s: remaining=%d quantity=%d reserved_cash=%d reserved_qty=%d",
					o.ID, o.RemainingQuantity, o.Quantity, o.ReservedCashCents, o.ReservedQuantity),
			}) {
				break
			}
		}
	}

	if !report.Truncated {
		drifted, err := s.store.LedgerDrift(ctx, limit-len(report.Issues))
		if err != nil {
			return Report{}, fmt.Errorf("scan ledger drift: %w", err)
		}
		for _, c := range drifted {
			if !add(model.InvariantIssue{
				Kind:      "ledger_drift",
				CompanyID: c.ID,
				Detail:    fmt.Sprintf("latest ledger balance does not match cash %d", c.CashCents),
			}) {
				break
			}
		}
	}

	report.HasViolations = len(report.Issues) > 0
	if report.HasViolations {
		s.logger.Warn("invariant scan found violations",
			"issues", len(report.Issues),
			"truncated", report.Truncated,
		)
	}
	return report, nil
}

func companyIssue(c model.Company) model.InvariantIssue {
	kind := "reserved_over_cash"
	switch {
	case c.CashCents < 0:
		kind = "negative_cash"
	case c.ReservedCashCents < 0:
		kind = "negative_reserved_cash"
	}
	return model.InvariantIssue{
		Kind:      kind,
		CompanyID: c.ID,
		Detail:    fmt.Sprintf("cash=%d reserved=%d", c.CashCents, c.ReservedCashCents),
	}
}

func inventoryIssue(inv model.Inventory) model.InvariantIssue {
	kind := "reserved_over_quantity"
	switch {
	case inv.Quantity < 0:
		kind = "negative_inventory"
	case inv.ReservedQuantity < 0:
		kind = "negative_reserved_inventory"
	}
	return model.InvariantIssue{
		Kind:      kind,
		CompanyID: inv.CompanyID,
		ItemID:    inv.ItemID,
		RegionID:  inv.RegionID,
		Detail:    fmt.Sprintf("quantity=%d reserved=%d", inv.Quantity, inv.ReservedQuantity),
	}
}
