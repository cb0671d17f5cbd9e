package journal

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"kwh-exchange/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStoreFromDB(sqlx.NewDb(db, "postgres")), mock
}

func TestUpsertOrderSendsExpectedExec(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))

	o := domain.OrderSnapshot{ID: "ord1", Owner: "alice", Side: domain.SideBuy, Price: 20, Quantity: 100, CreatedAt: time.Now()}
	if err := store.UpsertOrder(context.Background(), o, time.Now()); err != nil {
		t.Fatalf("UpsertOrder: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestInsertTradeSendsExpectedExec(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO trades").WillReturnResult(sqlmock.NewResult(0, 1))

	trade := domain.TradeMatch{ID: "t1", BuyOrderID: "b1", SellOrderID: "s1", Buyer: "alice", Seller: "bob", Quantity: 100, Price: 15, ExecutedAt: time.Now()}
	err := store.InsertTrade(context.Background(), trade, decimal.NewFromFloat(0.15), decimal.NewFromFloat(14.85))
	if err != nil {
		t.Fatalf("InsertTrade: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestClaimNextPendingReturnsErrWhenEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("UPDATE settlements").WillReturnError(sql.ErrNoRows)

	_, err := store.ClaimNextPending(context.Background(), time.Now())
	if err != ErrNoPendingSettlement {
		t.Fatalf("expected ErrNoPendingSettlement, got %v", err)
	}
}

func TestClaimNextPendingReturnsClaimedRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "trade_id", "state", "attempts", "last_error", "ledger_tx", "fee", "seller_receives", "created_at", "updated_at", "confirmed_at"}).
		AddRow("set1", "t1", int(domain.SettlementProcessing), 1, nil, nil, "0.15", "14.85", now, now, nil)
	mock.ExpectQuery("UPDATE settlements").WillReturnRows(rows)

	s, err := store.ClaimNextPending(context.Background(), now)
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if s.ID != "set1" || s.TradeID != "t1" {
		t.Errorf("unexpected settlement: %+v", s)
	}
	if !s.Fee.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("expected fee 0.15, got %s", s.Fee)
	}
}

func TestAppendJournalReturnsAssignedSeq(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("INSERT INTO journal").WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(uint64(7)))

	seq, err := store.AppendJournal(context.Background(), domain.JournalAdd, []byte(`{}`), time.Now())
	if err != nil {
		t.Fatalf("AppendJournal: %v", err)
	}
	if seq != 7 {
		t.Errorf("expected seq 7, got %d", seq)
	}
}

func TestLatestSnapshotReturnsZeroValueWhenNoneExists(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT seq, ts, payload FROM snapshots").WillReturnRows(sqlmock.NewRows([]string{"seq", "ts", "payload"}))

	snap, err := store.LatestSnapshot(context.Background())
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if snap.Seq != 0 {
		t.Errorf("expected zero-value snapshot, got seq=%d", snap.Seq)
	}
}
