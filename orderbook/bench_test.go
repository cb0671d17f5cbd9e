package orderbook

import (
	"math/rand"
	"testing"
	"time"

	"kwh-exchange/domain"
)

func generatePrices(n int) []domain.Price {
	prices := make([]domain.Price, n)
	for i := 0; i < n; i++ {
		prices[i] = domain.Price(5000000 + i)
	}
	rand.Shuffle(n, func(i, j int) {
		prices[i], prices[j] = prices[j], prices[i]
	})
	return prices
}

func benchOrders(prices []domain.Price) []*domain.Order {
	orders := make([]*domain.Order, len(prices))
	for i, p := range prices {
		orders[i] = mkLimit(string(rune(i)), "bench", domain.SideBuy, p, 1000)
	}
	return orders
}

func BenchmarkShardedPriceTree_Insert_1000(b *testing.B) {
	orders := benchOrders(generatePrices(1000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pt := NewPriceTreeWithType(ShardedType, true)
		for _, o := range orders {
			pt.Insert(o)
		}
	}
}

func BenchmarkHashMapListPriceTree_Insert_1000(b *testing.B) {
	orders := benchOrders(generatePrices(1000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pt := NewPriceTreeWithType(HashMapListType, true)
		for _, o := range orders {
			pt.Insert(o)
		}
	}
}

func BenchmarkShardedPriceTree_GetBestPrice(b *testing.B) {
	orders := benchOrders(generatePrices(100))
	pt := NewPriceTreeWithType(ShardedType, true)
	for _, o := range orders {
		pt.Insert(o)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pt.GetBestPrice()
	}
}

func BenchmarkOrderBook_Add(b *testing.B) {
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		ob := NewOrderBook("kwh-main")
		now := time.Now()
		b.StartTimer()

		for j := 0; j < 1000; j++ {
			ob.AddOrder(domain.NewOrder(
				string(rune(j)), "bench", domain.SideBuy, domain.OrderTypeLimit,
				domain.Price(5000+j), 1000, now, time.Time{},
			))
		}
	}
}
