package domain

import (
	"sync"
	"time"
)

// Side is the order side.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// OrderType distinguishes limit orders, which rest at a price, from market
// orders, which take liquidity at whatever price is available and never
// rest on the book.
type OrderType int

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
)

func (t OrderType) String() string {
	if t == OrderTypeMarket {
		return "market"
	}
	return "limit"
}

// OrderStatus is the lifecycle state of an Order. Filled, Cancelled, and
// Expired are terminal: once reached, Filled never changes again and the
// order is eligible for release back to the pool.
type OrderStatus int

const (
	OrderStatusOpen OrderStatus = iota
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusOpen:
		return "open"
	case OrderStatusPartiallyFilled:
		return "partially_filled"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCancelled:
		return "cancelled"
	case OrderStatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final; price, side, and filled
// quantity are immutable once an order reaches one of these.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// Quantity is milli-kWh, scale 3: 1_000 == 1.000 kWh. Fixed-point int64, no
// binary floating point, per the exact-decimal requirement on the hot path.
type Quantity int64

// Price is currency cents, scale 2: 100 == 1.00. Zero is valid only for a
// market order; a limit order's price must be strictly positive.
type Price int64

// Order is a single resting or incoming order.
//
// Hot fields touched by the matching loop are grouped first so they share a
// cache line; Owner/timestamps are read only on creation, cancellation, and
// logging.
type Order struct {
	ID       string
	Price    Price
	Quantity Quantity
	Filled   Quantity
	Side     Side
	Type     OrderType
	Status   OrderStatus
	Seq      uint64 // monotonic insertion counter; authoritative same-tick tie-break
	listElem interface{}

	Owner     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

var orderPool = sync.Pool{
	New: func() any { return &Order{} },
}

// NewOrder allocates an order from the pool. Seq is assigned by the book's
// single writer at insertion time, not here.
func NewOrder(id, owner string, side Side, typ OrderType, price Price, qty Quantity, createdAt, expiresAt time.Time) *Order {
	o := orderPool.Get().(*Order)
	o.ID = id
	o.Owner = owner
	o.Side = side
	o.Type = typ
	o.Price = price
	o.Quantity = qty
	o.Filled = 0
	o.Status = OrderStatusOpen
	o.Seq = 0
	o.listElem = nil
	o.CreatedAt = createdAt
	o.ExpiresAt = expiresAt
	return o
}

func (o *Order) IsFilled() bool {
	return o.Filled >= o.Quantity
}

func (o *Order) Remaining() Quantity {
	return o.Quantity - o.Filled
}

// Fill increases Filled and updates Status. Callers must hold the book's
// single-writer discipline (see matching.Engine). Fill never decreases
// Filled; it does not check for a terminal status, and the engine only
// fills orders still resting in the book, none of which are terminal.
func (o *Order) Fill(qty Quantity) {
	o.Filled += qty
	if o.IsFilled() {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
}

func (o *Order) Cancel() {
	o.Status = OrderStatusCancelled
}

func (o *Order) Expire() {
	o.Status = OrderStatusExpired
}

func (o *Order) ListElement() interface{} {
	return o.listElem
}

func (o *Order) SetListElement(e interface{}) {
	o.listElem = e
}

// Release returns a terminal order to the pool. Only call once it is no
// longer referenced by the book, event payloads, or the durable-store write
// path.
func (o *Order) Release() {
	*o = Order{}
	orderPool.Put(o)
}

// OrderSnapshot is a read-only, by-value copy safe to hand to callers
// outside the book's single writer (API reads, event payloads, journal
// rows).
type OrderSnapshot struct {
	ID        string
	Owner     string
	Side      Side
	Type      OrderType
	Price     Price
	Quantity  Quantity
	Filled    Quantity
	Status    OrderStatus
	Seq       uint64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Remaining returns the unfilled quantity.
func (o OrderSnapshot) Remaining() Quantity {
	return o.Quantity - o.Filled
}

func (o *Order) Snapshot() OrderSnapshot {
	return OrderSnapshot{
		ID:        o.ID,
		Owner:     o.Owner,
		Side:      o.Side,
		Type:      o.Type,
		Price:     o.Price,
		Quantity:  o.Quantity,
		Filled:    o.Filled,
		Status:    o.Status,
		Seq:       o.Seq,
		CreatedAt: o.CreatedAt,
		ExpiresAt: o.ExpiresAt,
	}
}
