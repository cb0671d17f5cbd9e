package matching

import (
	"testing"
	"time"

	"kwh-exchange/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine("kwh-main", nil, nil, time.Hour)
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func limitOrder(id, owner string, side domain.Side, price domain.Price, qty domain.Quantity) *domain.Order {
	return domain.NewOrder(id, owner, side, domain.OrderTypeLimit, price, qty, time.Now(), time.Time{})
}

func TestOverlapMatchesAtRestingAskPrice(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.AddOrder(limitOrder("sell1", "seller", domain.SideSell, 15, 100)); err != nil {
		t.Fatalf("add sell: %v", err)
	}
	trades, err := e.AddOrder(limitOrder("buy1", "buyer", domain.SideBuy, 20, 100))
	if err != nil {
		t.Fatalf("add buy: %v", err)
	}

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Quantity != 100 || trades[0].Price != 15 {
		t.Errorf("expected qty=100 price=15, got qty=%d price=%d", trades[0].Quantity, trades[0].Price)
	}

	buy, _ := e.GetOrder("buy1")
	sell, _ := e.GetOrder("sell1")
	if buy.Status != domain.OrderStatusFilled || sell.Status != domain.OrderStatusFilled {
		t.Errorf("expected both orders filled, got buy=%v sell=%v", buy.Status, sell.Status)
	}

	if more := e.TriggerMatch(); len(more) != 0 {
		t.Errorf("expected idempotent drain to return no trades, got %d", len(more))
	}
}

func TestLargeBuyerSplitAcrossTwoSellers(t *testing.T) {
	e := newTestEngine(t)

	e.AddOrder(limitOrder("sell1", "s1", domain.SideSell, 20, 100))
	e.AddOrder(limitOrder("sell2", "s2", domain.SideSell, 22, 100))
	trades, err := e.AddOrder(limitOrder("buy1", "b1", domain.SideBuy, 25, 300))
	if err != nil {
		t.Fatalf("add buy: %v", err)
	}

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Price != 20 || trades[1].Price != 22 {
		t.Errorf("expected trades in price order 20 then 22, got %d then %d", trades[0].Price, trades[1].Price)
	}

	buy, _ := e.GetOrder("buy1")
	if buy.Status != domain.OrderStatusPartiallyFilled || buy.Filled != 200 {
		t.Errorf("expected partially filled with filled=200, got status=%v filled=%d", buy.Status, buy.Filled)
	}

	bid, _ := e.BestBidAsk()
	if bid != 25 {
		t.Errorf("expected remaining buy order still resting at 25, got best bid %d", bid)
	}
}

func TestNonOverlapRests(t *testing.T) {
	e := newTestEngine(t)

	e.AddOrder(limitOrder("sell1", "s1", domain.SideSell, 30, 75))
	e.AddOrder(limitOrder("buy1", "b1", domain.SideBuy, 10, 75))

	bid, ask := e.BestBidAsk()
	if bid != 10 || ask != 30 {
		t.Errorf("expected bid=10 ask=30, got bid=%d ask=%d", bid, ask)
	}
}

func TestCancelMidPartial(t *testing.T) {
	e := newTestEngine(t)

	e.AddOrder(limitOrder("buy1", "b1", domain.SideBuy, 20, 100))
	trades, err := e.AddOrder(limitOrder("sell1", "s1", domain.SideSell, 18, 30))
	if err != nil {
		t.Fatalf("add sell: %v", err)
	}
	if len(trades) != 1 || trades[0].Quantity != 30 {
		t.Fatalf("expected one trade of 30, got %+v", trades)
	}

	refund, err := e.CancelOrder("buy1", "b1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if refund != 70 {
		t.Errorf("expected refund 70, got %d", refund)
	}

	buy, _ := e.GetOrder("buy1")
	if buy.Status != domain.OrderStatusCancelled || buy.Filled != 30 {
		t.Errorf("expected cancelled with filled=30 preserved, got status=%v filled=%d", buy.Status, buy.Filled)
	}
}

func TestFIFOTieBreakWithinSameTick(t *testing.T) {
	e := newTestEngine(t)

	e.AddOrder(limitOrder("sellA", "sa", domain.SideSell, 15, 50))
	e.AddOrder(limitOrder("sellB", "sb", domain.SideSell, 15, 50))
	trades, err := e.AddOrder(limitOrder("buy1", "b1", domain.SideBuy, 20, 50))
	if err != nil {
		t.Fatalf("add buy: %v", err)
	}

	if len(trades) != 1 || trades[0].SellOrderID != "sellA" {
		t.Fatalf("expected sellA matched first, got %+v", trades)
	}

	sellB, _ := e.GetOrder("sellB")
	if sellB.Filled != 0 {
		t.Errorf("expected sellB untouched, got filled=%d", sellB.Filled)
	}
}

func TestMarketOrderAgainstEmptyBookRejected(t *testing.T) {
	e := newTestEngine(t)

	order := domain.NewOrder("buy1", "b1", domain.SideBuy, domain.OrderTypeMarket, 0, 100, time.Now(), time.Time{})
	_, err := e.AddOrder(order)
	if err != domain.ErrNoLiquidity {
		t.Fatalf("expected ErrNoLiquidity, got %v", err)
	}
}

func TestOrderExpiredAtInsertRejected(t *testing.T) {
	e := newTestEngine(t)

	past := time.Now().Add(-time.Minute)
	order := domain.NewOrder("buy1", "b1", domain.SideBuy, domain.OrderTypeLimit, 20, 100, time.Now().Add(-time.Hour), past)
	_, err := e.AddOrder(order)
	if err != domain.ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestPauseBlocksSubmitAndMatching(t *testing.T) {
	e := newTestEngine(t)
	e.Pause()

	e.AddOrder(limitOrder("sell1", "s1", domain.SideSell, 15, 100))
	trades, err := e.AddOrder(limitOrder("buy1", "b1", domain.SideBuy, 20, 100))
	if err != domain.ErrMarketPaused {
		t.Fatalf("expected ErrMarketPaused, got err=%v trades=%v", err, trades)
	}

	resumed := e.Resume()
	if len(resumed) != 0 {
		t.Errorf("expected no trades to drain after resume (buy was rejected while paused), got %d", len(resumed))
	}
}

func TestExpireDueRemovesPastExpiry(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()

	order := domain.NewOrder("buy1", "b1", domain.SideBuy, domain.OrderTypeLimit, 20, 100, now.Add(-time.Hour), now.Add(time.Millisecond))
	if _, err := e.AddOrder(order); err != nil {
		t.Fatalf("add: %v", err)
	}

	expired := e.ExpireDue(now.Add(time.Second))
	if len(expired) != 1 || expired[0] != "buy1" {
		t.Fatalf("expected buy1 expired, got %v", expired)
	}

	got, _ := e.GetOrder("buy1")
	if got.ID != "" {
		t.Errorf("expected order removed from book, got %+v", got)
	}
}

func TestCancelNotOwnerFails(t *testing.T) {
	e := newTestEngine(t)
	e.AddOrder(limitOrder("sell1", "owner1", domain.SideSell, 15, 100))

	if _, err := e.CancelOrder("sell1", "owner2"); err != domain.ErrNotOwner {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	resting, _ := e.GetOrder("sell1")
	if resting.Status != domain.OrderStatusOpen {
		t.Errorf("expected order untouched after failed cancel, got status=%v", resting.Status)
	}
}

func TestRegistryCreatesOneEngineAndReusesIt(t *testing.T) {
	r := NewRegistry(nil, nil, time.Hour)
	defer func() {
		for _, s := range r.Symbols() {
			r.Get(s).Stop()
		}
	}()

	a := r.Get("kwh-main")
	b := r.Get("kwh-main")
	if a != b {
		t.Error("expected Registry.Get to return the same engine for the same symbol")
	}
}
