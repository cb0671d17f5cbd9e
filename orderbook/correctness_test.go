package orderbook

import (
	"testing"
	"time"

	"kwh-exchange/domain"
)

func mkLimit(id, owner string, side domain.Side, price domain.Price, qty domain.Quantity) *domain.Order {
	return domain.NewOrder(id, owner, side, domain.OrderTypeLimit, price, qty, time.Unix(0, 0), time.Time{})
}

func TestAddOrder(t *testing.T) {
	ob := NewOrderBook("kwh-main")

	sell := mkLimit("sell1", "user1", domain.SideSell, 5000, 100000)
	if err := ob.AddOrder(sell); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	if ob.GetBestAsk() != 5000 {
		t.Errorf("expected best ask 5000, got %d", ob.GetBestAsk())
	}

	buy := mkLimit("buy1", "user2", domain.SideBuy, 4900, 100000)
	if err := ob.AddOrder(buy); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	if ob.GetBestBid() != 4900 {
		t.Errorf("expected best bid 4900, got %d", ob.GetBestBid())
	}
}

func TestAddOrderDuplicateID(t *testing.T) {
	ob := NewOrderBook("kwh-main")
	order := mkLimit("order1", "user1", domain.SideSell, 5000, 100000)
	if err := ob.AddOrder(order); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	if err := ob.AddOrder(order); err != domain.ErrDuplicateID {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestCancelOrder(t *testing.T) {
	ob := NewOrderBook("kwh-main")

	order := mkLimit("order1", "user1", domain.SideSell, 5000, 100000)
	if err := ob.AddOrder(order); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	if ob.GetBestAsk() != 5000 {
		t.Errorf("expected best ask 5000, got %d", ob.GetBestAsk())
	}

	cancelled, err := ob.CancelOrder("order1")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("expected order status cancelled, got %v", cancelled.Status)
	}
	if ob.GetBestAsk() != 0 {
		t.Error("expected asks to be empty after cancel")
	}
}

func TestCancelOrderNotFound(t *testing.T) {
	ob := NewOrderBook("kwh-main")
	if _, err := ob.CancelOrder("missing"); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPricePriority(t *testing.T) {
	ob := NewOrderBook("kwh-main")

	ob.AddOrder(mkLimit("sell1", "user1", domain.SideSell, 5100, 100000))
	ob.AddOrder(mkLimit("sell2", "user2", domain.SideSell, 5000, 100000)) // best
	ob.AddOrder(mkLimit("sell3", "user3", domain.SideSell, 5200, 100000))

	if ob.GetBestAsk() != 5000 {
		t.Errorf("expected best ask 5000, got %d", ob.GetBestAsk())
	}
}

func TestGetLevel(t *testing.T) {
	ob := NewOrderBook("kwh-main")

	ob.AddOrder(mkLimit("order1", "user1", domain.SideSell, 5000, 100000))

	level := ob.asks.GetLevel(5000)
	if level == nil {
		t.Fatal("expected level to exist")
	}
	if level.Price != 5000 {
		t.Errorf("expected price 5000, got %d", level.Price)
	}
	if level.Volume != 100000 {
		t.Errorf("expected volume 100000, got %d", level.Volume)
	}
}

func TestGetDepth(t *testing.T) {
	ob := NewOrderBook("kwh-main")

	ob.AddOrder(mkLimit("sell1", "user1", domain.SideSell, 5000, 100000))
	ob.AddOrder(mkLimit("sell2", "user2", domain.SideSell, 5010, 100000))
	ob.AddOrder(mkLimit("sell3", "user3", domain.SideSell, 5020, 100000))

	depth := ob.asks.GetDepth(2)
	if len(depth) != 2 {
		t.Errorf("expected 2 levels, got %d", len(depth))
	}
	if depth[0].Price != 5000 {
		t.Errorf("expected first level at 5000, got %d", depth[0].Price)
	}
	if depth[1].Price != 5010 {
		t.Errorf("expected second level at 5010, got %d", depth[1].Price)
	}
}

func TestFIFOOrder(t *testing.T) {
	ob := NewOrderBook("kwh-main")

	ob.AddOrder(mkLimit("sell1", "user1", domain.SideSell, 5000, 50000))
	ob.AddOrder(mkLimit("sell2", "user2", domain.SideSell, 5000, 50000))
	ob.AddOrder(mkLimit("sell3", "user3", domain.SideSell, 5000, 50000))

	level := ob.asks.GetBestLevel()
	if level == nil {
		t.Fatal("expected level to exist")
	}
	if level.Orders.Len() != 3 {
		t.Errorf("expected 3 orders, got %d", level.Orders.Len())
	}

	orders := ob.asks.GetBestOrders()
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	if orders[0].ID != "sell1" || orders[1].ID != "sell2" || orders[2].ID != "sell3" {
		t.Errorf("expected FIFO order sell1,sell2,sell3, got %s,%s,%s", orders[0].ID, orders[1].ID, orders[2].ID)
	}
}

func TestBidsDepthDescending(t *testing.T) {
	ob := NewOrderBook("kwh-main")

	ob.AddOrder(mkLimit("buy1", "user1", domain.SideBuy, 4900, 100000))
	ob.AddOrder(mkLimit("buy2", "user2", domain.SideBuy, 5000, 100000)) // highest
	ob.AddOrder(mkLimit("buy3", "user3", domain.SideBuy, 4800, 100000))

	if ob.GetBestBid() != 5000 {
		t.Errorf("expected best bid 5000, got %d", ob.GetBestBid())
	}

	depth := ob.bids.GetDepth(3)
	if len(depth) != 3 {
		t.Errorf("expected 3 levels, got %d", len(depth))
	}
	if depth[0].Price != 5000 || depth[1].Price != 4900 || depth[2].Price != 4800 {
		t.Errorf("expected descending 5000,4900,4800, got %d,%d,%d", depth[0].Price, depth[1].Price, depth[2].Price)
	}
	for i, level := range depth {
		if level.Volume != 100000 {
			t.Errorf("expected level %d volume 100000, got %d", i, level.Volume)
		}
	}
}

func TestAsksDepthAscending(t *testing.T) {
	ob := NewOrderBook("kwh-main")

	ob.AddOrder(mkLimit("sell1", "user1", domain.SideSell, 5100, 100000))
	ob.AddOrder(mkLimit("sell2", "user2", domain.SideSell, 5000, 100000)) // lowest
	ob.AddOrder(mkLimit("sell3", "user3", domain.SideSell, 5200, 100000))

	if ob.GetBestAsk() != 5000 {
		t.Errorf("expected best ask 5000, got %d", ob.GetBestAsk())
	}

	depth := ob.asks.GetDepth(3)
	if len(depth) != 3 {
		t.Errorf("expected 3 levels, got %d", len(depth))
	}
	if depth[0].Price != 5000 || depth[1].Price != 5100 || depth[2].Price != 5200 {
		t.Errorf("expected ascending 5000,5100,5200, got %d,%d,%d", depth[0].Price, depth[1].Price, depth[2].Price)
	}
}
