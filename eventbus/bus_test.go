package eventbus

import (
	"testing"
	"time"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewBus(8, nil)
	_, events := bus.Subscribe()

	bus.Publish(KindOrderAdded, OrderAddedPayload{})
	bus.Publish(KindTradeExecuted, TradeExecutedPayload{})

	first := <-events
	second := <-events

	if first.Kind != KindOrderAdded || first.Seq != 1 {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if second.Kind != KindTradeExecuted || second.Seq != 2 {
		t.Fatalf("unexpected second event: %+v", second)
	}
}

func TestPublishFanOutToMultipleSubscribers(t *testing.T) {
	bus := NewBus(4, nil)
	_, a := bus.Subscribe()
	_, b := bus.Subscribe()

	bus.Publish(KindBookSnapshotTaken, BookSnapshotTakenPayload{Seq: 1})

	select {
	case evt := <-a:
		if evt.Kind != KindBookSnapshotTaken {
			t.Fatalf("unexpected event on subscriber a: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber a did not receive event")
	}

	select {
	case evt := <-b:
		if evt.Kind != KindBookSnapshotTaken {
			t.Fatalf("unexpected event on subscriber b: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber b did not receive event")
	}
}

func TestPublishDropsOnFullQueueAndReports(t *testing.T) {
	var dropped []uint64
	bus := NewBus(1, func(subscriberID uint64, seq uint64, kind Kind) {
		dropped = append(dropped, seq)
	})

	id, events := bus.Subscribe()
	bus.Publish(KindOrderAdded, OrderAddedPayload{})  // fills the queue
	bus.Publish(KindOrderRemoved, OrderRemovedPayload{}) // should be dropped

	if len(dropped) != 1 {
		t.Fatalf("expected 1 drop, got %d", len(dropped))
	}
	if dropped[0] != 2 {
		t.Fatalf("expected seq 2 dropped, got %d", dropped[0])
	}

	<-events // drain the one event that made it
	_ = id
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(4, nil)
	id, events := bus.Subscribe()
	bus.Unsubscribe(id)

	if _, ok := <-events; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}
