package orderbook

import (
	"container/list"

	"kwh-exchange/domain"
)

// PriceTreeType selects which PriceTreeInterface implementation a book side
// uses. Both give O(1) best-price access; they differ in insert/remove cost
// as the number of distinct price levels grows.
type PriceTreeType int

const (
	// HashMapListType: best for a small number of distinct price levels.
	HashMapListType PriceTreeType = iota

	// ShardedType: sharded red-black tree of buckets, each indexed by a
	// bitmask. Scales better once price levels number in the hundreds.
	ShardedType
)

// NewPriceTreeWithType builds a price tree for one side of the book.
func NewPriceTreeWithType(treeType PriceTreeType, descending bool) PriceTreeInterface {
	switch treeType {
	case ShardedType:
		return newShardedPriceTreeAdapter(descending, 128)
	case HashMapListType:
		fallthrough
	default:
		return NewHashMapListPriceTree(descending)
	}
}

// ShardedPriceTreeAdapter adapts ShardedPriceTree (which operates on raw
// int64 prices and must stay importable by tests using primitive keys) to
// PriceTreeInterface's domain.Price-typed methods.
type ShardedPriceTreeAdapter struct {
	tree *ShardedPriceTree
}

var _ PriceTreeInterface = (*ShardedPriceTreeAdapter)(nil)

func newShardedPriceTreeAdapter(descending bool, bucketSize int64) *ShardedPriceTreeAdapter {
	return &ShardedPriceTreeAdapter{
		tree: NewShardedPriceTree(descending, bucketSize), // descending == isBuy
	}
}

func (s *ShardedPriceTreeAdapter) Insert(order *domain.Order) {
	price := int64(order.Price)
	bucketID := price / s.tree.bucketSize

	bucket, exists := s.tree.buckets.Get(bucketID)
	if !exists {
		bucket = NewBucket(bucketID, s.tree.isBuy, s.tree.bucketSize)
		s.tree.buckets.Put(bucketID, bucket)
	}

	index := price & bucket.bucketMask
	level := bucket.levels[index]
	if level == nil {
		level = &PriceLevel_{
			Price:  order.Price,
			Orders: list.New(),
		}
		bucket.Insert(price, level)
	}

	elem := level.Orders.PushBack(order)
	order.SetListElement(elem)
	level.Volume += order.Remaining()

	s.tree.updateBestOnInsert(bucket)
}

func (s *ShardedPriceTreeAdapter) Remove(order *domain.Order) {
	price := int64(order.Price)
	bucket, exists := s.tree.buckets.Get(price / s.tree.bucketSize)
	if !exists {
		return
	}

	index := price & bucket.bucketMask
	level := bucket.levels[index]
	if level == nil {
		return
	}

	if le := order.ListElement(); le != nil {
		elem := le.(*list.Element)
		level.Orders.Remove(elem)
		order.SetListElement(nil)
		level.Volume -= order.Remaining()
	}

	if level.Orders.Len() == 0 {
		s.tree.Remove(price)
	}
}

func (s *ShardedPriceTreeAdapter) GetBestPrice() domain.Price {
	best := s.tree.GetBestPrice()
	if best == nil {
		return 0
	}
	return best.Price
}

func (s *ShardedPriceTreeAdapter) GetBestLevel() *PriceLevel_ {
	return s.tree.GetBestPrice()
}

func (s *ShardedPriceTreeAdapter) GetBestOrders() []*domain.Order {
	level := s.tree.GetBestPrice()
	if level == nil {
		return nil
	}

	orders := make([]*domain.Order, 0, level.Orders.Len())
	for e := level.Orders.Front(); e != nil; e = e.Next() {
		orders = append(orders, e.Value.(*domain.Order))
	}
	return orders
}

func (s *ShardedPriceTreeAdapter) GetLevel(price domain.Price) *PriceLevel_ {
	raw := int64(price)
	bucket, exists := s.tree.buckets.Get(raw / s.tree.bucketSize)
	if !exists {
		return nil
	}
	index := raw & bucket.bucketMask
	return bucket.levels[index]
}

func (s *ShardedPriceTreeAdapter) GetDepth(maxLevels int) []PriceLevel_ {
	if maxLevels <= 0 || s.tree.buckets.Empty() {
		return nil
	}

	result := make([]PriceLevel_, 0, maxLevels)
	count := 0

	it := s.tree.buckets.Iterator()
	for it.Next() && count < maxLevels {
		bucket := it.Value()

		current := bucket.bestLevel
		for current != nil && count < maxLevels {
			result = append(result, *current)
			count++
			current = current.NextPrice
		}
	}

	return result
}

func (s *ShardedPriceTreeAdapter) IsEmpty() bool {
	return s.tree.buckets.Empty()
}

func (s *ShardedPriceTreeAdapter) Size() int {
	count := 0
	it := s.tree.buckets.Iterator()
	for it.Next() {
		count += it.Value().size
	}
	return count
}
