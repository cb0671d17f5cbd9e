package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeMatch is an immutable record of one fill between a resting and an
// incoming order. Quantity is at most min(remaining of both sides) at
// execution time. Price is the sell order's price when two limit orders
// cross, and the resting order's price when a market order executes.
type TradeMatch struct {
	ID          string
	BuyOrderID  string
	SellOrderID string
	Buyer       string
	Seller      string
	Quantity    Quantity
	Price       Price
	ExecutedAt  time.Time

	// IsBuyerMaker is true when the buy order was resting (the sell order
	// crossed into it); false when the sell order was resting.
	IsBuyerMaker bool
}

// Notional returns price*quantity converted to an exact decimal, scaled back
// down from the fixed-point price/quantity representation (price scale 2,
// quantity scale 3) to ordinary currency units.
func (t *TradeMatch) Notional() decimal.Decimal {
	price := decimal.New(int64(t.Price), -2)
	qty := decimal.New(int64(t.Quantity), -3)
	return price.Mul(qty)
}
