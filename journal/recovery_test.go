package journal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"kwh-exchange/domain"
)

type fakeEngine struct {
	loaded  domain.Snapshot
	replays []domain.JournalEntry
	orders  map[string]domain.OrderSnapshot
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{orders: map[string]domain.OrderSnapshot{}}
}

func (f *fakeEngine) LoadSnapshot(snap domain.Snapshot) {
	f.loaded = snap
	for _, o := range snap.Orders {
		f.orders[o.ID] = o
	}
}

func (f *fakeEngine) Replay(entry domain.JournalEntry) error {
	f.replays = append(f.replays, entry)
	return nil
}

func (f *fakeEngine) GetOrder(orderID string) (domain.OrderSnapshot, bool) {
	o, ok := f.orders[orderID]
	return o, ok
}

func TestRecoverLoadsSnapshotThenReplaysJournalAfterWatermark(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	payload, _ := json.Marshal([]domain.OrderSnapshot{{ID: "ord1", Quantity: 100, Filled: 20, Status: domain.OrderStatusPartiallyFilled}})
	mock.ExpectQuery("SELECT seq, ts, payload FROM snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "ts", "payload"}).AddRow(uint64(5), now, payload))

	mock.ExpectQuery("SELECT seq, kind, payload, ts FROM journal").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "kind", "payload", "ts"}).
			AddRow(uint64(6), string(domain.JournalCancel), []byte(`{"id":"ord2"}`), now))

	engine := newFakeEngine()
	if err := Recover(context.Background(), store, engine); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if engine.loaded.Seq != 5 {
		t.Errorf("expected snapshot seq 5 loaded, got %d", engine.loaded.Seq)
	}
	if len(engine.replays) != 1 || engine.replays[0].Seq != 6 {
		t.Fatalf("expected one replayed entry at seq 6, got %+v", engine.replays)
	}
}

func TestReconcileFlagsMissingAndMismatchedOrders(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "owner", "side", "quantity", "price", "filled", "status", "created_at", "expires_at"}).
		AddRow("ord1", "alice", 0, 100, 20, 30, 1, time.Now(), nil).
		AddRow("ord2", "bob", 1, 50, 15, 0, 0, time.Now(), nil)
	mock.ExpectQuery("SELECT id, owner, side, quantity, price, filled, status, created_at, expires_at FROM orders").
		WillReturnRows(rows)

	engine := newFakeEngine()
	engine.orders["ord1"] = domain.OrderSnapshot{ID: "ord1", Quantity: 100, Filled: 50} // mismatched remaining

	faults, err := Reconcile(context.Background(), store, engine)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(faults) != 2 {
		t.Fatalf("expected 2 faults (mismatch + missing), got %+v", faults)
	}
}
