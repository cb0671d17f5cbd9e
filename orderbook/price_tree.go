package orderbook

import (
	"container/list"

	"kwh-exchange/domain"
)

// HashMapListPriceTree is a price-ordered structure of orders.
//
// Layout: hash map for O(1) price level lookup, plus a doubly linked list
// threading the levels together in priority order so the best level is
// always a direct pointer dereference away.
//
// Insert at an existing level and Remove are O(1); inserting a brand-new
// price level is O(n) worst case (walking the linked list to find its
// slot), which is rare in practice since most incoming orders land at or
// near the best price.
type HashMapListPriceTree struct {
	levels     map[domain.Price]*PriceLevel_
	bestLevel  *PriceLevel_
	descending bool // true for bids (best = highest), false for asks (best = lowest)
}

var _ PriceTreeInterface = (*HashMapListPriceTree)(nil)

// NewHashMapListPriceTree creates a HashMap+List price tree.
func NewHashMapListPriceTree(descending bool) *HashMapListPriceTree {
	return &HashMapListPriceTree{
		levels:     make(map[domain.Price]*PriceLevel_),
		descending: descending,
	}
}

// PriceLevel_ holds every order resting at one price, FIFO by arrival.
type PriceLevel_ struct {
	Price  domain.Price
	Orders *list.List
	Volume domain.Quantity

	NextPrice *PriceLevel_
	PrevPrice *PriceLevel_
}

func (pt *HashMapListPriceTree) Insert(order *domain.Order) {
	level, exists := pt.levels[order.Price]
	if !exists {
		level = &PriceLevel_{
			Price:  order.Price,
			Orders: list.New(),
		}
		pt.levels[order.Price] = level
		pt.insertPriceLevel(level)
	}

	elem := level.Orders.PushBack(order)
	order.SetListElement(elem)
	level.Volume += order.Remaining()
}

func (pt *HashMapListPriceTree) Remove(order *domain.Order) {
	level, exists := pt.levels[order.Price]
	if !exists {
		return
	}

	if le := order.ListElement(); le != nil {
		elem := le.(*list.Element)
		level.Orders.Remove(elem)
		order.SetListElement(nil)
		level.Volume -= order.Remaining()
	}

	if level.Orders.Len() == 0 {
		pt.removePriceLevel(level)
	}
}

func (pt *HashMapListPriceTree) GetBestPrice() domain.Price {
	if pt.bestLevel == nil {
		return 0
	}
	return pt.bestLevel.Price
}

func (pt *HashMapListPriceTree) GetBestLevel() *PriceLevel_ {
	return pt.bestLevel
}

func (pt *HashMapListPriceTree) GetBestOrders() []*domain.Order {
	level := pt.bestLevel
	if level == nil {
		return nil
	}

	orders := make([]*domain.Order, 0, level.Orders.Len())
	for e := level.Orders.Front(); e != nil; e = e.Next() {
		orders = append(orders, e.Value.(*domain.Order))
	}
	return orders
}

func (pt *HashMapListPriceTree) GetLevel(price domain.Price) *PriceLevel_ {
	return pt.levels[price]
}

func (pt *HashMapListPriceTree) GetDepth(maxLevels int) []PriceLevel_ {
	if pt.bestLevel == nil {
		return nil
	}

	depth := make([]PriceLevel_, 0, maxLevels)
	current := pt.bestLevel
	for current != nil && len(depth) < maxLevels {
		depth = append(depth, *current)
		current = current.NextPrice
	}
	return depth
}

func (pt *HashMapListPriceTree) IsEmpty() bool {
	return pt.bestLevel == nil
}

func (pt *HashMapListPriceTree) Size() int {
	return len(pt.levels)
}

// insertPriceLevel threads a freshly created level into priority order.
func (pt *HashMapListPriceTree) insertPriceLevel(newLevel *PriceLevel_) {
	if pt.bestLevel == nil {
		pt.bestLevel = newLevel
		return
	}

	if pt.isBetterPrice(newLevel.Price, pt.bestLevel.Price) {
		newLevel.NextPrice = pt.bestLevel
		pt.bestLevel.PrevPrice = newLevel
		pt.bestLevel = newLevel
		return
	}

	current := pt.bestLevel
	for current.NextPrice != nil {
		if pt.isBetterPrice(newLevel.Price, current.NextPrice.Price) {
			break
		}
		current = current.NextPrice
	}

	newLevel.NextPrice = current.NextPrice
	newLevel.PrevPrice = current
	if current.NextPrice != nil {
		current.NextPrice.PrevPrice = newLevel
	}
	current.NextPrice = newLevel
}

func (pt *HashMapListPriceTree) removePriceLevel(level *PriceLevel_) {
	delete(pt.levels, level.Price)

	if level.PrevPrice != nil {
		level.PrevPrice.NextPrice = level.NextPrice
	}
	if level.NextPrice != nil {
		level.NextPrice.PrevPrice = level.PrevPrice
	}

	if pt.bestLevel == level {
		pt.bestLevel = level.NextPrice
	}
}

func (pt *HashMapListPriceTree) isBetterPrice(a, b domain.Price) bool {
	if pt.descending {
		return a > b
	}
	return a < b
}
