package model

// OrderSide is the side of a market order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus is the lifecycle state of a market order. FILLED and CANCELLED
// are terminal; terminal orders are never mutated again.
type OrderStatus string

const (
	OrderOpen            OrderStatus = "OPEN"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further mutation.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled
}

// MarketOrder is a resting limit order on one (item, region) book.
//
// While the order is not terminal, ReservedCashCents equals
// RemainingQuantity*UnitPriceCents for BUY orders and ReservedQuantity
// equals RemainingQuantity for SELL orders.
type MarketOrder struct {
	ID                string
	CompanyID         string
	ItemID            string
	RegionID          string
	Side              OrderSide
	Status            OrderStatus
	Quantity          int64
	RemainingQuantity int64
	UnitPriceCents    int64
	ReservedCashCents int64 // BUY orders only
	ReservedQuantity  int64 // SELL orders only
	TickPlaced        int64
	TickClosed        *int64 // Set when the order reaches a terminal status
}

// Book returns the order's book key.
func (o MarketOrder) Book() BookKey {
	return BookKey{ItemID: o.ItemID, RegionID: o.RegionID}
}

// Trade is one execution between a BUY and a SELL order. Immutable.
type Trade struct {
	ID              string
	BuyOrderID      string
	SellOrderID     string
	ItemID          string
	RegionID        string
	Quantity        int64
	UnitPriceCents  int64 // Clearing price: the SELL order's limit price
	TotalPriceCents int64
	Tick            int64
}

// Candle is the OHLCV aggregate for one (item, region, tick) with trades.
type Candle struct {
	ItemID     string
	RegionID   string
	Tick       int64
	OpenCents  int64
	HighCents  int64
	LowCents   int64
	CloseCents int64
	Volume     int64
	TradeCount int64
	VWAPCents  int64
}
