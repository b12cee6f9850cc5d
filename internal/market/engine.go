package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/corpsim/corpsim/internal/ledger"
	"github.com/corpsim/corpsim/internal/model"
	"github.com/corpsim/corpsim/internal/store"
)

// Engine places, matches, and cancels market orders.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a market engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// PlaceOrderRequest describes a new limit order.
type PlaceOrderRequest struct {
	CompanyID      string
	ItemID         string
	RegionID       string
	Side           model.OrderSide
	Quantity       int64
	UnitPriceCents int64
	Tick           int64
}

// PlaceOrder validates the request, reserves cash or inventory, and inserts
// the order OPEN. Validation failures happen before any reservation.
func (e *Engine) PlaceOrder(ctx context.Context, tx store.Tx, req PlaceOrderRequest) (model.MarketOrder, error) {
	if req.Quantity <= 0 {
		return model.MarketOrder{}, fmt.Errorf("market: quantity must be positive, got %d", req.Quantity)
	}
	if req.UnitPriceCents <= 0 {
		return model.MarketOrder{}, fmt.Errorf("market: unit price must be positive, got %d", req.UnitPriceCents)
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return model.MarketOrder{}, fmt.Errorf("market: unknown side %q", req.Side)
	}

	company, err := tx.Company(ctx, req.CompanyID)
	if err != nil {
		return model.MarketOrder{}, fmt.Errorf("load company: %w", err)
	}
	if !company.OperatesIn(req.RegionID) {
		return model.MarketOrder{}, ErrRegionMismatch
	}

	item, err := tx.Item(ctx, req.ItemID)
	if err != nil {
		return model.MarketOrder{}, fmt.Errorf("load item: %w", err)
	}
	if item.Tier > company.ResearchTier {
		return model.MarketOrder{}, ErrTierLocked
	}

	order := model.MarketOrder{
		ID:                uuid.NewString(),
		CompanyID:         req.CompanyID,
		ItemID:            req.ItemID,
		RegionID:          req.RegionID,
		Side:              req.Side,
		Status:            model.OrderOpen,
		Quantity:          req.Quantity,
		RemainingQuantity: req.Quantity,
		UnitPriceCents:    req.UnitPriceCents,
		TickPlaced:        req.Tick,
	}

	switch req.Side {
	case model.SideBuy:
		amount := req.Quantity * req.UnitPriceCents
		if company.AvailableCashCents() < amount {
			return model.MarketOrder{}, ErrInsufficientFunds
		}
		company.ReservedCashCents += amount
		if err := tx.UpdateCompanyCash(ctx, company.ID, company.CashCents, company.ReservedCashCents); err != nil {
			return model.MarketOrder{}, err
		}
		order.ReservedCashCents = amount
		if err := ledger.Post(ctx, tx, ledger.Posting{
			CompanyID:              company.ID,
			Tick:                   req.Tick,
			EntryType:              model.EntryOrderReserve,
			DeltaReservedCashCents: amount,
			BalanceAfterCents:      company.CashCents,
			ReferenceType:          "order",
			ReferenceID:            order.ID,
		}); err != nil {
			return model.MarketOrder{}, err
		}

	case model.SideSell:
		inv, err := tx.Inventory(ctx, req.CompanyID, req.ItemID, req.RegionID)
		if errors.Is(err, store.ErrNotFound) {
			return model.MarketOrder{}, ErrInsufficientInventory
		}
		if err != nil {
			return model.MarketOrder{}, fmt.Errorf("load inventory: %w", err)
		}
		if inv.AvailableQuantity() < req.Quantity {
			return model.MarketOrder{}, ErrInsufficientInventory
		}
		inv.ReservedQuantity += req.Quantity
		if err := tx.UpsertInventory(ctx, inv); err != nil {
			return model.MarketOrder{}, err
		}
		order.ReservedQuantity = req.Quantity
	}

	if err := tx.InsertOrder(ctx, order); err != nil {
		return model.MarketOrder{}, err
	}

	e.logger.Debug("order placed",
		"order_id", order.ID,
		"company_id", order.CompanyID,
		"item_id", order.ItemID,
		"region_id", order.RegionID,
		"side", order.Side,
		"quantity", order.Quantity,
		"unit_price_cents", order.UnitPriceCents,
	)
	return order, nil
}

// CancelOrder releases the remaining reservation and marks the order
// CANCELLED. Cancelling a terminal order is an idempotent no-op.
func (e *Engine) CancelOrder(ctx context.Context, tx store.Tx, orderID string, tick int64) (model.MarketOrder, error) {
	order, err := tx.Order(ctx, orderID)
	if err != nil {
		return model.MarketOrder{}, fmt.Errorf("load order: %w", err)
	}
	if order.Status.Terminal() {
		return order, nil
	}

	switch order.Side {
	case model.SideBuy:
		if order.ReservedCashCents > 0 {
			company, err := tx.Company(ctx, order.CompanyID)
			if err != nil {
				return model.MarketOrder{}, fmt.Errorf("load company: %w", err)
			}
			company.ReservedCashCents -= order.ReservedCashCents
			if err := tx.UpdateCompanyCash(ctx, company.ID, company.CashCents, company.ReservedCashCents); err != nil {
				return model.MarketOrder{}, err
			}
			if err := ledger.Post(ctx, tx, ledger.Posting{
				CompanyID:              company.ID,
				Tick:                   tick,
				EntryType:              model.EntryOrderRelease,
				DeltaReservedCashCents: -order.ReservedCashCents,
				BalanceAfterCents:      company.CashCents,
				ReferenceType:          "order",
				ReferenceID:            order.ID,
			}); err != nil {
				return model.MarketOrder{}, err
			}
			order.ReservedCashCents = 0
		}

	case model.SideSell:
		if order.ReservedQuantity > 0 {
			inv, err := tx.Inventory(ctx, order.CompanyID, order.ItemID, order.RegionID)
			if err != nil {
				return model.MarketOrder{}, fmt.Errorf("load inventory: %w", err)
			}
			inv.ReservedQuantity -= order.ReservedQuantity
			if err := tx.UpsertInventory(ctx, inv); err != nil {
				return model.MarketOrder{}, err
			}
			order.ReservedQuantity = 0
		}
	}

	order.Status = model.OrderCancelled
	order.TickClosed = &tick
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return model.MarketOrder{}, err
	}

	e.logger.Debug("order cancelled", "order_id", order.ID, "tick", tick)
	return order, nil
}
