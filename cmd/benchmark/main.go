// Command benchmark drives the matching engine with many concurrent
// producers and reports order/trade throughput.
package main

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"kwh-exchange/domain"
	"kwh-exchange/matching"
)

func main() {
	fmt.Println("=== matching engine throughput benchmark ===")

	engine := matching.NewEngine("kwh-main", nil, nil, time.Second)
	engine.Start()
	defer engine.Stop()

	testDuration := 5 * time.Second
	numCPU := runtime.NumCPU()
	numWorkers := numCPU - 2 // one core reserved for the matching goroutine, one for GC/scheduler
	if numWorkers < 1 {
		numWorkers = 1
	}

	var (
		orderCount atomic.Int64
		tradeCount atomic.Int64
	)

	fmt.Printf("starting benchmark...\n")
	fmt.Printf("CPUs: %d\n", numCPU)
	fmt.Printf("producers: %d (NumCPU - 2)\n", numWorkers)
	fmt.Printf("duration: %v\n\n", testDuration)

	startTime := time.Now()
	stopChan := make(chan struct{})

	for w := 0; w < numWorkers; w++ {
		go func(workerID int) {
			orderID := 0
			for {
				select {
				case <-stopChan:
					return
				default:
					var side domain.Side
					var price domain.Price
					if orderID%2 == 0 {
						side = domain.SideBuy
						price = domain.Price(5000000 + orderID%200)
					} else {
						side = domain.SideSell
						price = domain.Price(5000000 + orderID%200)
					}

					order := domain.NewOrder(
						fmt.Sprintf("w%d-order-%d", workerID, orderID),
						fmt.Sprintf("user-%d", workerID),
						side, domain.OrderTypeLimit,
						price, 1000,
						time.Now(), time.Time{},
					)
					trades, err := engine.AddOrder(order)
					if err == nil {
						orderCount.Add(1)
						tradeCount.Add(int64(len(trades)))
					}
					orderID++
				}
			}
		}(w)
	}

	ticker := time.NewTicker(time.Second)
	go func() {
		for range ticker.C {
			elapsed := time.Since(startTime)
			orders := orderCount.Load()
			trades := tradeCount.Load()
			qps := float64(orders) / elapsed.Seconds()
			tps := float64(trades) / elapsed.Seconds()
			fmt.Printf("[%.0fs] orders: %d (%.0f/s) | trades: %d (%.0f/s)\n",
				elapsed.Seconds(), orders, qps, trades, tps)
		}
	}()

	time.Sleep(testDuration)
	close(stopChan)
	ticker.Stop()
	time.Sleep(100 * time.Millisecond)

	elapsed := time.Since(startTime)
	totalOrders := orderCount.Load()
	totalTrades := tradeCount.Load()

	qps := float64(totalOrders) / elapsed.Seconds()
	tps := float64(totalTrades) / elapsed.Seconds()
	avgLatency := elapsed.Seconds() * 1e6 / float64(totalOrders)

	fmt.Println("\n=== results ===")
	fmt.Printf("duration:        %v\n", elapsed)
	fmt.Printf("total orders:    %d\n", totalOrders)
	fmt.Printf("total trades:    %d\n", totalTrades)
	fmt.Printf("order throughput: %.0f orders/sec\n", qps)
	fmt.Printf("trade throughput: %.0f trades/sec\n", tps)
	fmt.Printf("avg latency:      %.2f us/order\n", avgLatency)

	bid, ask := engine.BestBidAsk()
	bids, asks := engine.Depth(5)
	fmt.Println("\n=== book state ===")
	fmt.Printf("best bid: %d\n", bid)
	fmt.Printf("best ask: %d\n", ask)

	fmt.Println("\nbid depth (top 5):")
	for i, level := range bids {
		fmt.Printf("  %d. price=%d qty=%d orders=%d\n", i+1, level.Price, level.Quantity, level.Orders)
	}
	fmt.Println("\nask depth (top 5):")
	for i, level := range asks {
		fmt.Printf("  %d. price=%d qty=%d orders=%d\n", i+1, level.Price, level.Quantity, level.Orders)
	}
}
