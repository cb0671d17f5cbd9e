package orderbook

import "kwh-exchange/domain"

// IOrderBook is the interface the matching engine drives. A single goroutine
// owns the book end to end, so none of these methods take a lock.
type IOrderBook interface {
	AddOrder(order *domain.Order) error
	CancelOrder(orderID string) (*domain.Order, error)
	ExpireOrder(orderID string) (*domain.Order, error)
	GetOrder(orderID string) (*domain.Order, bool)
	GetBestBid() domain.Price
	GetBestAsk() domain.Price
	GetDepth(levels int) (bids, asks []PriceLevel)
}

// PriceLevel is a depth-snapshot row: one price, its aggregate resting
// quantity, and how many orders make it up.
type PriceLevel struct {
	Price    domain.Price
	Quantity domain.Quantity
	Orders   int
}

// OrderBook is a price-time priority order book for one market. It is not
// safe for concurrent use: the matching engine serializes all access to a
// book through its own single-writer command loop.
type OrderBook struct {
	symbol string
	bids   PriceTreeInterface // buy orders, best = highest price
	asks   PriceTreeInterface // sell orders, best = lowest price
	orders map[string]*domain.Order
}

// NewOrderBook creates an order book for a market, backed by the sharded
// red-black tree price index.
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		bids:   NewPriceTreeWithType(ShardedType, true),
		asks:   NewPriceTreeWithType(ShardedType, false),
		orders: make(map[string]*domain.Order),
	}
}

func (ob *OrderBook) Symbol() string { return ob.symbol }

// AddOrder rests an order in the book. The caller is responsible for having
// already run it through the matching loop; AddOrder never matches.
func (ob *OrderBook) AddOrder(order *domain.Order) error {
	if _, exists := ob.orders[order.ID]; exists {
		return domain.ErrDuplicateID
	}

	ob.orders[order.ID] = order
	if order.Side == domain.SideBuy {
		ob.bids.Insert(order)
	} else {
		ob.asks.Insert(order)
	}
	return nil
}

// CancelOrder removes a resting order and marks it cancelled. Returns
// ErrNotFound if the order isn't resting (already filled, cancelled, or
// never existed) and ErrAlreadyTerminal if it is known but no longer live.
func (ob *OrderBook) CancelOrder(orderID string) (*domain.Order, error) {
	order, exists := ob.orders[orderID]
	if !exists {
		return nil, domain.ErrNotFound
	}
	if order.Status.Terminal() {
		return nil, domain.ErrAlreadyTerminal
	}

	ob.remove(order)
	order.Cancel()
	return order, nil
}

// ExpireOrder removes a resting order past its expiry, distinct from
// CancelOrder so the caller can journal and publish it as an expiry rather
// than a user-initiated cancel.
func (ob *OrderBook) ExpireOrder(orderID string) (*domain.Order, error) {
	order, exists := ob.orders[orderID]
	if !exists {
		return nil, domain.ErrNotFound
	}
	if order.Status.Terminal() {
		return nil, domain.ErrAlreadyTerminal
	}

	ob.remove(order)
	order.Expire()
	return order, nil
}

// RemoveMatched removes a resting order that was just matched to completion
// by the engine. Unlike CancelOrder/ExpireOrder it does not change the
// order's status — the engine has already set it to Filled via Fill.
func (ob *OrderBook) RemoveMatched(orderID string) (*domain.Order, bool) {
	order, exists := ob.orders[orderID]
	if !exists {
		return nil, false
	}
	ob.remove(order)
	return order, true
}

func (ob *OrderBook) remove(order *domain.Order) {
	if order.Side == domain.SideBuy {
		ob.bids.Remove(order)
	} else {
		ob.asks.Remove(order)
	}
	delete(ob.orders, order.ID)
}

// GetOrder looks up a resting order by ID.
func (ob *OrderBook) GetOrder(orderID string) (*domain.Order, bool) {
	order, exists := ob.orders[orderID]
	return order, exists
}

func (ob *OrderBook) GetBestBid() domain.Price { return ob.bids.GetBestPrice() }
func (ob *OrderBook) GetBestAsk() domain.Price { return ob.asks.GetBestPrice() }

// GetDepth returns up to `levels` price rows on each side, best price first.
func (ob *OrderBook) GetDepth(levels int) (bids, asks []PriceLevel) {
	bidLevels := ob.bids.GetDepth(levels)
	askLevels := ob.asks.GetDepth(levels)

	restingQuantity := func(level PriceLevel_) domain.Quantity {
		var q domain.Quantity
		for el := level.Orders.Front(); el != nil; el = el.Next() {
			q += el.Value.(*domain.Order).Remaining()
		}
		return q
	}

	bids = make([]PriceLevel, len(bidLevels))
	for i, level := range bidLevels {
		bids[i] = PriceLevel{Price: level.Price, Quantity: restingQuantity(level), Orders: level.Orders.Len()}
	}

	asks = make([]PriceLevel, len(askLevels))
	for i, level := range askLevels {
		asks[i] = PriceLevel{Price: level.Price, Quantity: restingQuantity(level), Orders: level.Orders.Len()}
	}

	return bids, asks
}

// GetBestBuyOrders returns every order resting at the best bid.
func (ob *OrderBook) GetBestBuyOrders() []*domain.Order { return ob.bids.GetBestOrders() }

// GetBestSellOrders returns every order resting at the best ask.
func (ob *OrderBook) GetBestSellOrders() []*domain.Order { return ob.asks.GetBestOrders() }

// GetBestBuyLevel returns the best bid level without allocating a slice.
func (ob *OrderBook) GetBestBuyLevel() *PriceLevel_ { return ob.bids.GetBestLevel() }

// GetBestSellLevel returns the best ask level without allocating a slice.
func (ob *OrderBook) GetBestSellLevel() *PriceLevel_ { return ob.asks.GetBestLevel() }

// Count returns the number of resting orders.
func (ob *OrderBook) Count() int { return len(ob.orders) }

// AllOrders returns every resting order, for snapshotting. The caller must
// not mutate the returned orders.
func (ob *OrderBook) AllOrders() []*domain.Order {
	out := make([]*domain.Order, 0, len(ob.orders))
	for _, o := range ob.orders {
		out = append(out, o)
	}
	return out
}
