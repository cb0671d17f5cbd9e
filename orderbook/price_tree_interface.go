package orderbook

import "kwh-exchange/domain"

// PriceTreeInterface is implemented by each concrete price-level structure
// (HashMap+List, sharded red-black tree) so OrderBook can swap backing
// implementations without changing its own logic.
type PriceTreeInterface interface {
	// Insert adds an order to its price level, creating the level if needed.
	Insert(order *domain.Order)

	// Remove deletes an order from its price level, deleting the level if
	// it becomes empty.
	Remove(order *domain.Order)

	// GetBestPrice returns the best price in the tree, or 0 if empty.
	GetBestPrice() domain.Price

	// GetBestLevel returns the best price level, or nil if empty.
	GetBestLevel() *PriceLevel_

	// GetBestOrders returns every order resting at the best price level.
	GetBestOrders() []*domain.Order

	// GetLevel returns the price level at an exact price, or nil.
	GetLevel(price domain.Price) *PriceLevel_

	// GetDepth returns up to maxLevels price levels starting at the best
	// price, in priority order.
	GetDepth(maxLevels int) []PriceLevel_

	IsEmpty() bool
	Size() int
}
