// Command profile runs the same load as cmd/benchmark while capturing a CPU
// profile for `go tool pprof`.
package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync/atomic"
	"time"

	"kwh-exchange/domain"
	"kwh-exchange/matching"
)

func main() {
	cpuFile, err := os.Create("cpu.prof")
	if err != nil {
		panic(err)
	}
	defer cpuFile.Close()

	pprof.StartCPUProfile(cpuFile)
	defer pprof.StopCPUProfile()

	fmt.Println("=== profiling ===")
	fmt.Println("writing CPU profile to cpu.prof")

	engine := matching.NewEngine("kwh-main", nil, nil, time.Second)
	engine.Start()
	defer engine.Stop()

	duration := 10 * time.Second
	numCPU := runtime.NumCPU()
	numWorkers := numCPU - 2
	if numWorkers < 1 {
		numWorkers = 1
	}

	var (
		orderCount atomic.Int64
		tradeCount atomic.Int64
	)

	fmt.Printf("CPUs: %d\n", numCPU)
	fmt.Printf("producers: %d\n", numWorkers)
	fmt.Printf("duration: %v\n\n", duration)

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
					price := domain.Price(5000000 + orderID%200)
					if orderID%2 == 0 {
						side = domain.SideBuy
					} else {
						side = domain.SideSell
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

	time.Sleep(duration)
	close(stopChan)
	time.Sleep(100 * time.Millisecond)

	elapsed := time.Since(startTime)
	totalOrders := orderCount.Load()
	totalTrades := tradeCount.Load()

	fmt.Println("\n=== results ===")
	fmt.Printf("total orders: %d\n", totalOrders)
	fmt.Printf("total trades: %d\n", totalTrades)
	fmt.Printf("order throughput: %.0f orders/sec\n", float64(totalOrders)/elapsed.Seconds())
	fmt.Printf("trade throughput: %.0f trades/sec\n", float64(totalTrades)/elapsed.Seconds())

	fmt.Println("\nanalyze with:")
	fmt.Println("  go tool pprof -http=:8080 cpu.prof")
	fmt.Println("  (then) top10")
	fmt.Println("  (then) list <function>")
}
