package orderbook

import (
	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"

	"kwh-exchange/domain"
)

// ShardedPriceTree is a two-level structure: an outer red-black tree orders
// buckets of prices (O(log m), m = bucket count), and each bucket indexes
// its prices with a fixed array plus a bitwise mask instead of a modulo, so
// a price within the bucket resolves in O(1) without a hash lookup.
//
// This scales better than HashMapListPriceTree once the number of distinct
// price levels grows large, since inserting a never-seen price level only
// costs a tree insert into its bucket rather than a full linked-list walk.
type ShardedPriceTree struct {
	buckets    *rbt.Tree[int64, *Bucket]
	bestBucket *Bucket
	bestLevel  *PriceLevel_
	isBuy      bool
	bucketSize int64 // must be a power of two; price&bucketMask replaces price%bucketSize
}

// Bucket holds every price level whose bucket ID (price / bucketSize)
// matches, indexed by a fixed array sized to bucketSize and threaded into a
// doubly linked list in price order.
type Bucket struct {
	bucketID   int64
	levels     [128]*PriceLevel_
	bestLevel  *PriceLevel_
	size       int
	isBuy      bool
	bucketSize int64
	bucketMask int64
}

// NewShardedPriceTree creates a sharded price tree. bucketSize must be a
// power of two no greater than 128 (the Bucket array width).
func NewShardedPriceTree(isBuy bool, bucketSize int64) *ShardedPriceTree {
	var comparator func(a, b int64) int
	if isBuy {
		comparator = func(a, b int64) int {
			switch {
			case a > b:
				return -1
			case a < b:
				return 1
			default:
				return 0
			}
		}
	} else {
		comparator = func(a, b int64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		}
	}

	return &ShardedPriceTree{
		buckets:    rbt.NewWith[int64, *Bucket](comparator),
		isBuy:      isBuy,
		bucketSize: bucketSize,
	}
}

// NewBucket creates an empty bucket for the given bucket ID.
func NewBucket(bucketID int64, isBuy bool, bucketSize int64) *Bucket {
	return &Bucket{
		bucketID:   bucketID,
		isBuy:      isBuy,
		bucketSize: bucketSize,
		bucketMask: bucketSize - 1,
	}
}

func (spt *ShardedPriceTree) Insert(price int64, level *PriceLevel_) {
	bucketID := price / spt.bucketSize

	bucket, found := spt.buckets.Get(bucketID)
	if !found {
		bucket = NewBucket(bucketID, spt.isBuy, spt.bucketSize)
		spt.buckets.Put(bucketID, bucket)
	}

	bucket.Insert(price, level)
	spt.updateBestOnInsert(bucket)
}

func (spt *ShardedPriceTree) Remove(price int64) {
	bucketID := price / spt.bucketSize

	bucket, found := spt.buckets.Get(bucketID)
	if !found {
		return
	}

	bucket.Remove(price)

	if bucket.size == 0 {
		spt.buckets.Remove(bucketID)
		if spt.bestBucket == bucket {
			spt.bestBucket = nil
			spt.bestLevel = nil
			spt.refreshBestFromTree()
		}
	} else if spt.bestLevel != nil && domain.Price(spt.bestLevel.Price) == domain.Price(price) {
		spt.refreshBestFromTree()
	}
}

func (spt *ShardedPriceTree) GetBestPrice() *PriceLevel_ {
	return spt.bestLevel
}

func (spt *ShardedPriceTree) updateBestOnInsert(bucket *Bucket) {
	if spt.bestBucket == nil {
		spt.bestBucket = bucket
		spt.bestLevel = bucket.bestLevel
		return
	}

	if spt.isBetterBucket(bucket.bucketID, spt.bestBucket.bucketID) {
		spt.bestBucket = bucket
		spt.bestLevel = bucket.bestLevel
	} else if bucket == spt.bestBucket {
		spt.bestLevel = bucket.bestLevel
	}
}

// refreshBestFromTree re-derives the global best level from the tree's
// leftmost bucket (the comparator orders buckets so the best is always
// leftmost, for both bid and ask trees).
func (spt *ShardedPriceTree) refreshBestFromTree() {
	if spt.buckets.Empty() {
		spt.bestBucket = nil
		spt.bestLevel = nil
		return
	}

	node := spt.buckets.Left()
	if node != nil {
		spt.bestBucket = node.Value
		spt.bestLevel = node.Value.bestLevel
	}
}

func (spt *ShardedPriceTree) isBetterBucket(newID, existingID int64) bool {
	if spt.isBuy {
		return newID > existingID
	}
	return newID < existingID
}

func (b *Bucket) Insert(price int64, level *PriceLevel_) {
	index := price & b.bucketMask
	b.levels[index] = level
	b.size++

	if b.bestLevel == nil {
		b.bestLevel = level
		return
	}

	if b.isBetterPrice(int64(level.Price), int64(b.bestLevel.Price)) {
		level.NextPrice = b.bestLevel
		b.bestLevel.PrevPrice = level
		b.bestLevel = level
		return
	}

	current := b.bestLevel
	for current.NextPrice != nil {
		if b.isBetterPrice(int64(level.Price), int64(current.NextPrice.Price)) {
			break
		}
		current = current.NextPrice
	}

	level.NextPrice = current.NextPrice
	level.PrevPrice = current
	if current.NextPrice != nil {
		current.NextPrice.PrevPrice = level
	}
	current.NextPrice = level
}

func (b *Bucket) Remove(price int64) {
	index := price & b.bucketMask
	level := b.levels[index]
	if level == nil {
		return
	}

	b.levels[index] = nil
	b.size--

	if level.PrevPrice != nil {
		level.PrevPrice.NextPrice = level.NextPrice
	} else {
		b.bestLevel = level.NextPrice
	}

	if level.NextPrice != nil {
		level.NextPrice.PrevPrice = level.PrevPrice
	}

	level.NextPrice = nil
	level.PrevPrice = nil
}

func (b *Bucket) isBetterPrice(newPrice, existingPrice int64) bool {
	if b.isBuy {
		return newPrice > existingPrice
	}
	return newPrice < existingPrice
}
