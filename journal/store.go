// Package journal is the durable-storage and crash-recovery layer: the
// append-only journal, periodic snapshots, and the Postgres-backed store
// those two are built on.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"kwh-exchange/domain"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS orders (
	id          text PRIMARY KEY,
	owner       text NOT NULL,
	side        smallint NOT NULL,
	quantity    bigint NOT NULL,
	price       bigint NOT NULL,
	filled      bigint NOT NULL DEFAULT 0,
	status      smallint NOT NULL,
	created_at  timestamptz NOT NULL,
	updated_at  timestamptz NOT NULL,
	expires_at  timestamptz
);
CREATE INDEX IF NOT EXISTS orders_owner_status_idx ON orders (owner, status);
CREATE INDEX IF NOT EXISTS orders_status_expires_idx ON orders (status, expires_at);

CREATE TABLE IF NOT EXISTS trades (
	id              text PRIMARY KEY,
	buy_order_id    text NOT NULL,
	sell_order_id   text NOT NULL,
	buyer           text NOT NULL,
	seller          text NOT NULL,
	quantity        bigint NOT NULL,
	price           bigint NOT NULL,
	fee             numeric NOT NULL,
	seller_receives numeric NOT NULL,
	executed_at     timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_executed_at_idx ON trades (executed_at DESC);

CREATE TABLE IF NOT EXISTS settlements (
	id              text PRIMARY KEY,
	trade_id        text NOT NULL UNIQUE,
	state           smallint NOT NULL,
	attempts        int NOT NULL DEFAULT 0,
	last_error      text,
	ledger_tx       text,
	fee             numeric NOT NULL DEFAULT 0,
	seller_receives numeric NOT NULL DEFAULT 0,
	created_at      timestamptz NOT NULL,
	updated_at      timestamptz NOT NULL,
	confirmed_at    timestamptz
);
CREATE INDEX IF NOT EXISTS settlements_state_created_idx ON settlements (state, created_at);

CREATE TABLE IF NOT EXISTS journal (
	seq     bigserial PRIMARY KEY,
	kind    text NOT NULL,
	payload jsonb NOT NULL,
	ts      timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	seq     bigint PRIMARY KEY,
	ts      timestamptz NOT NULL,
	payload jsonb NOT NULL
);
`

// Store is the sqlx-backed durable layer for orders, trades, settlements,
// the journal, and snapshots. One Store per process, shared by the journal
// writer, the settlement pipeline, and the API's query handlers.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres via the given DSN and applies the schema. The
// DDL is idempotent (CREATE ... IF NOT EXISTS) since it runs on every
// process start, not just the first.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an already-open *sqlx.DB, used by tests with
// go-sqlmock where Open's real network dial and schema application don't
// apply.
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// orderRow mirrors the orders table; OrderSnapshot is the in-memory shape,
// this is the wire-to-disk shape, so the two stay decoupled even though
// most fields line up 1:1.
type orderRow struct {
	ID        string       `db:"id"`
	Owner     string       `db:"owner"`
	Side      int          `db:"side"`
	Quantity  int64        `db:"quantity"`
	Price     int64        `db:"price"`
	Filled    int64        `db:"filled"`
	Status    int          `db:"status"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
	ExpiresAt sql.NullTime `db:"expires_at"`
}

const upsertOrderSQL = `
INSERT INTO orders (id, owner, side, quantity, price, filled, status, created_at, updated_at, expires_at)
VALUES (:id, :owner, :side, :quantity, :price, :filled, :status, :created_at, :updated_at, :expires_at)
ON CONFLICT (id) DO UPDATE SET
	filled = EXCLUDED.filled,
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at
`

// UpsertOrder writes an order's current state, inserting on first sight and
// updating filled/status/updated_at on every later call.
func (s *Store) UpsertOrder(ctx context.Context, o domain.OrderSnapshot, updatedAt time.Time) error {
	row := orderRow{
		ID:        o.ID,
		Owner:     o.Owner,
		Side:      int(o.Side),
		Quantity:  int64(o.Quantity),
		Price:     int64(o.Price),
		Filled:    int64(o.Filled),
		Status:    int(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: updatedAt,
	}
	if !o.ExpiresAt.IsZero() {
		row.ExpiresAt = sql.NullTime{Time: o.ExpiresAt, Valid: true}
	}
	_, err := s.db.NamedExecContext(ctx, upsertOrderSQL, row)
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", o.ID, err)
	}
	return nil
}

// FetchOpenOrders returns every order row not yet in a terminal status, used
// by Reconcile to check against the replayed in-memory book.
func (s *Store) FetchOpenOrders(ctx context.Context) ([]domain.OrderSnapshot, error) {
	const q = `
		SELECT id, owner, side, quantity, price, filled, status, created_at, expires_at
		FROM orders WHERE status IN (0, 1)
	`
	rows, err := s.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch open orders: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderSnapshot
	for rows.Next() {
		var r orderRow
		if err := rows.StructScan(&r); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		snap := domain.OrderSnapshot{
			ID:        r.ID,
			Owner:     r.Owner,
			Side:      domain.Side(r.Side),
			Price:     domain.Price(r.Price),
			Quantity:  domain.Quantity(r.Quantity),
			Filled:    domain.Quantity(r.Filled),
			Status:    domain.OrderStatus(r.Status),
			CreatedAt: r.CreatedAt,
		}
		if r.ExpiresAt.Valid {
			snap.ExpiresAt = r.ExpiresAt.Time
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GetOrderByID loads a single order row, used by `GET /orders/{id}`.
func (s *Store) GetOrderByID(ctx context.Context, id string) (domain.OrderSnapshot, error) {
	var r orderRow
	err := s.db.GetContext(ctx, &r,
		`SELECT id, owner, side, quantity, price, filled, status, created_at, updated_at, expires_at
		 FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OrderSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderSnapshot{}, fmt.Errorf("get order %s: %w", id, err)
	}
	snap := domain.OrderSnapshot{
		ID: r.ID, Owner: r.Owner, Side: domain.Side(r.Side), Price: domain.Price(r.Price),
		Quantity: domain.Quantity(r.Quantity), Filled: domain.Quantity(r.Filled),
		Status: domain.OrderStatus(r.Status), CreatedAt: r.CreatedAt,
	}
	if r.ExpiresAt.Valid {
		snap.ExpiresAt = r.ExpiresAt.Time
	}
	return snap, nil
}

// ListOrdersByOwner returns one owner's orders, newest first, for
// `list_my_orders`.
func (s *Store) ListOrdersByOwner(ctx context.Context, owner string, limit, offset int) ([]domain.OrderSnapshot, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, owner, side, quantity, price, filled, status, created_at, expires_at
		 FROM orders WHERE owner = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		owner, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders for owner %s: %w", owner, err)
	}
	defer rows.Close()

	var out []domain.OrderSnapshot
	for rows.Next() {
		var r orderRow
		if err := rows.StructScan(&r); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		snap := domain.OrderSnapshot{
			ID: r.ID, Owner: r.Owner, Side: domain.Side(r.Side), Price: domain.Price(r.Price),
			Quantity: domain.Quantity(r.Quantity), Filled: domain.Quantity(r.Filled),
			Status: domain.OrderStatus(r.Status), CreatedAt: r.CreatedAt,
		}
		if r.ExpiresAt.Valid {
			snap.ExpiresAt = r.ExpiresAt.Time
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

const insertTradeSQL = `
INSERT INTO trades (id, buy_order_id, sell_order_id, buyer, seller, quantity, price, fee, seller_receives, executed_at)
VALUES (:id, :buy_order_id, :sell_order_id, :buyer, :seller, :quantity, :price, :fee, :seller_receives, :executed_at)
ON CONFLICT (id) DO NOTHING
`

type tradeRow struct {
	ID             string    `db:"id"`
	BuyOrderID     string    `db:"buy_order_id"`
	SellOrderID    string    `db:"sell_order_id"`
	Buyer          string    `db:"buyer"`
	Seller         string    `db:"seller"`
	Quantity       int64     `db:"quantity"`
	Price          int64     `db:"price"`
	Fee            string    `db:"fee"`
	SellerReceives string    `db:"seller_receives"`
	ExecutedAt     time.Time `db:"executed_at"`
}

// InsertTrade records an executed trade alongside the fee/seller_receives
// the settlement pipeline has already computed for it. Idempotent on trade
// ID so a replayed journal fill entry never double-inserts.
func (s *Store) InsertTrade(ctx context.Context, t domain.TradeMatch, fee, sellerReceives decimal.Decimal) error {
	row := tradeRow{
		ID:             t.ID,
		BuyOrderID:     t.BuyOrderID,
		SellOrderID:    t.SellOrderID,
		Buyer:          t.Buyer,
		Seller:         t.Seller,
		Quantity:       int64(t.Quantity),
		Price:          int64(t.Price),
		Fee:            fee.String(),
		SellerReceives: sellerReceives.String(),
		ExecutedAt:     t.ExecutedAt,
	}
	_, err := s.db.NamedExecContext(ctx, insertTradeSQL, row)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

// RecordTradeAndSettlement persists an executed trade and its one Pending
// settlement row atomically: every TradeMatch produces exactly one
// Settlement row before the call returns.
func (s *Store) RecordTradeAndSettlement(ctx context.Context, trade domain.TradeMatch, st domain.Settlement) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trade+settlement tx: %w", err)
	}
	defer tx.Rollback()

	tradeRow := tradeRow{
		ID: trade.ID, BuyOrderID: trade.BuyOrderID, SellOrderID: trade.SellOrderID,
		Buyer: trade.Buyer, Seller: trade.Seller,
		Quantity: int64(trade.Quantity), Price: int64(trade.Price),
		Fee: st.Fee.String(), SellerReceives: st.SellerReceives.String(),
		ExecutedAt: trade.ExecutedAt,
	}
	if _, err := tx.NamedExecContext(ctx, insertTradeSQL, tradeRow); err != nil {
		return fmt.Errorf("insert trade %s: %w", trade.ID, err)
	}
	if _, err := tx.NamedExecContext(ctx, insertSettlementSQL, toSettlementRow(st)); err != nil {
		return fmt.Errorf("insert settlement for trade %s: %w", trade.ID, err)
	}
	return tx.Commit()
}

// GetTrade loads one trade row by ID, used by the settlement pipeline to
// recover buyer/seller/quantity/price when processing a claimed settlement.
func (s *Store) GetTrade(ctx context.Context, tradeID string) (domain.TradeMatch, error) {
	var r tradeRow
	err := s.db.GetContext(ctx, &r,
		`SELECT id, buy_order_id, sell_order_id, buyer, seller, quantity, price, fee, seller_receives, executed_at
		 FROM trades WHERE id = $1`, tradeID)
	if err != nil {
		return domain.TradeMatch{}, fmt.Errorf("get trade %s: %w", tradeID, err)
	}
	return tradeRowToMatch(r), nil
}

func tradeRowToMatch(r tradeRow) domain.TradeMatch {
	return domain.TradeMatch{
		ID: r.ID, BuyOrderID: r.BuyOrderID, SellOrderID: r.SellOrderID,
		Buyer: r.Buyer, Seller: r.Seller,
		Quantity: domain.Quantity(r.Quantity), Price: domain.Price(r.Price),
		ExecutedAt: r.ExecutedAt,
	}
}

// ListTrades returns the most recent trades, newest first, for
// `list_trades`/`GET /market/trades/recent`.
func (s *Store) ListTrades(ctx context.Context, limit, offset int) ([]domain.TradeMatch, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, buy_order_id, sell_order_id, buyer, seller, quantity, price, fee, seller_receives, executed_at
		 FROM trades ORDER BY executed_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeMatch
	for rows.Next() {
		var r tradeRow
		if err := rows.StructScan(&r); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		out = append(out, tradeRowToMatch(r))
	}
	return out, rows.Err()
}

// TradesSince returns every trade executed at or after the given time, for
// `get_market_stats`'s timeframe aggregation.
func (s *Store) TradesSince(ctx context.Context, since time.Time) ([]domain.TradeMatch, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, buy_order_id, sell_order_id, buyer, seller, quantity, price, fee, seller_receives, executed_at
		 FROM trades WHERE executed_at >= $1 ORDER BY executed_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("trades since %s: %w", since, err)
	}
	defer rows.Close()

	var out []domain.TradeMatch
	for rows.Next() {
		var r tradeRow
		if err := rows.StructScan(&r); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		out = append(out, tradeRowToMatch(r))
	}
	return out, rows.Err()
}

// LatestTrade returns the most recently executed trade, for
// `get_clearing_price`. Returns domain.ErrNoTrades if the market has never
// matched.
func (s *Store) LatestTrade(ctx context.Context) (domain.TradeMatch, error) {
	var r tradeRow
	err := s.db.GetContext(ctx, &r,
		`SELECT id, buy_order_id, sell_order_id, buyer, seller, quantity, price, fee, seller_receives, executed_at
		 FROM trades ORDER BY executed_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TradeMatch{}, domain.ErrNoTrades
	}
	if err != nil {
		return domain.TradeMatch{}, fmt.Errorf("latest trade: %w", err)
	}
	return tradeRowToMatch(r), nil
}

const insertSettlementSQL = `
INSERT INTO settlements (id, trade_id, state, attempts, last_error, ledger_tx, fee, seller_receives, created_at, updated_at, confirmed_at)
VALUES (:id, :trade_id, :state, :attempts, :last_error, :ledger_tx, :fee, :seller_receives, :created_at, :updated_at, :confirmed_at)
ON CONFLICT (trade_id) DO NOTHING
`

const updateSettlementSQL = `
UPDATE settlements SET
	state = :state, attempts = :attempts, last_error = :last_error,
	ledger_tx = :ledger_tx, updated_at = :updated_at, confirmed_at = :confirmed_at
WHERE id = :id
`

type settlementRow struct {
	ID             string         `db:"id"`
	TradeID        string         `db:"trade_id"`
	State          int            `db:"state"`
	Attempts       int            `db:"attempts"`
	LastError      sql.NullString `db:"last_error"`
	LedgerTx       sql.NullString `db:"ledger_tx"`
	Fee            string         `db:"fee"`
	SellerReceives string         `db:"seller_receives"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	ConfirmedAt    sql.NullTime   `db:"confirmed_at"`
}

func toSettlementRow(s domain.Settlement) settlementRow {
	row := settlementRow{
		ID:             s.ID,
		TradeID:        s.TradeID,
		State:          int(s.State),
		Attempts:       s.Attempts,
		Fee:            s.Fee.String(),
		SellerReceives: s.SellerReceives.String(),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.LastError != "" {
		row.LastError = sql.NullString{String: s.LastError, Valid: true}
	}
	if s.LedgerTx != "" {
		row.LedgerTx = sql.NullString{String: s.LedgerTx, Valid: true}
	}
	if s.ConfirmedAt != nil {
		row.ConfirmedAt = sql.NullTime{Time: *s.ConfirmedAt, Valid: true}
	}
	return row
}

func fromSettlementRow(r settlementRow) domain.Settlement {
	s := domain.Settlement{
		ID:        r.ID,
		TradeID:   r.TradeID,
		State:     domain.SettlementState(r.State),
		Attempts:  r.Attempts,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if fee, err := decimal.NewFromString(r.Fee); err == nil {
		s.Fee = fee
	}
	if sr, err := decimal.NewFromString(r.SellerReceives); err == nil {
		s.SellerReceives = sr
	}
	if r.LastError.Valid {
		s.LastError = r.LastError.String
	}
	if r.LedgerTx.Valid {
		s.LedgerTx = r.LedgerTx.String
	}
	if r.ConfirmedAt.Valid {
		t := r.ConfirmedAt.Time
		s.ConfirmedAt = &t
	}
	return s
}

// InsertSettlement creates the one settlement row for a trade. Ignored if the
// trade already has a settlement (trade_id is UNIQUE), keeping the
// exactly-once invariant under journal replay.
func (s *Store) InsertSettlement(ctx context.Context, st domain.Settlement) error {
	_, err := s.db.NamedExecContext(ctx, insertSettlementSQL, toSettlementRow(st))
	if err != nil {
		return fmt.Errorf("insert settlement for trade %s: %w", st.TradeID, err)
	}
	return nil
}

// UpdateSettlement persists a state transition produced by the settlement
// pipeline.
func (s *Store) UpdateSettlement(ctx context.Context, st domain.Settlement) error {
	_, err := s.db.NamedExecContext(ctx, updateSettlementSQL, toSettlementRow(st))
	if err != nil {
		return fmt.Errorf("update settlement %s: %w", st.ID, err)
	}
	return nil
}

// ErrNoPendingSettlement is returned by ClaimNextPending when the queue is
// empty.
var ErrNoPendingSettlement = errors.New("no pending settlement")

const claimSettlementSQL = `
UPDATE settlements SET state = $1, updated_at = $2, attempts = attempts + 1
WHERE id = (
	SELECT id FROM settlements
	WHERE state = $3
	ORDER BY created_at ASC
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING id, trade_id, state, attempts, last_error, ledger_tx, fee, seller_receives, created_at, updated_at, confirmed_at
`

// ClaimNextPending atomically moves the oldest Pending settlement to
// Processing and returns it, so concurrent pipeline workers never claim the
// same row (SKIP LOCKED). Returns ErrNoPendingSettlement when idle.
func (s *Store) ClaimNextPending(ctx context.Context, now time.Time) (domain.Settlement, error) {
	var row settlementRow
	err := s.db.GetContext(ctx, &row, claimSettlementSQL,
		int(domain.SettlementProcessing), now, int(domain.SettlementPending))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Settlement{}, ErrNoPendingSettlement
	}
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("claim pending settlement: %w", err)
	}
	return fromSettlementRow(row), nil
}

// AppendJournal writes one durable journal row and returns its assigned
// sequence number, the watermark snapshots and replay are keyed on.
func (s *Store) AppendJournal(ctx context.Context, kind domain.JournalEntryKind, payload []byte, ts time.Time) (uint64, error) {
	var seq uint64
	err := s.db.GetContext(ctx, &seq,
		`INSERT INTO journal (kind, payload, ts) VALUES ($1, $2, $3) RETURNING seq`,
		string(kind), payload, ts)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrJournalWrite, err)
	}
	return seq, nil
}

type journalRow struct {
	Seq     uint64    `db:"seq"`
	Kind    string    `db:"kind"`
	Payload []byte    `db:"payload"`
	TS      time.Time `db:"ts"`
}

// JournalSince returns every journal entry with seq strictly greater than
// the given watermark, in seq order, for replay after a snapshot load.
func (s *Store) JournalSince(ctx context.Context, seq uint64) ([]domain.JournalEntry, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT seq, kind, payload, ts FROM journal WHERE seq > $1 ORDER BY seq ASC`, seq)
	if err != nil {
		return nil, fmt.Errorf("journal since %d: %w", seq, err)
	}
	defer rows.Close()

	var out []domain.JournalEntry
	for rows.Next() {
		var r journalRow
		if err := rows.StructScan(&r); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		out = append(out, domain.JournalEntry{
			Seq:       r.Seq,
			Kind:      domain.JournalEntryKind(r.Kind),
			Payload:   r.Payload,
			Timestamp: r.TS,
		})
	}
	return out, rows.Err()
}

// InsertSnapshot records a new full-book snapshot and prunes everything
// beyond the retention window.
func (s *Store) InsertSnapshot(ctx context.Context, snap domain.Snapshot, retention int) error {
	payload, err := json.Marshal(snap.Orders)
	if err != nil {
		return fmt.Errorf("marshal snapshot payload: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (seq, ts, payload) VALUES ($1, $2, $3)
		 ON CONFLICT (seq) DO UPDATE SET ts = EXCLUDED.ts, payload = EXCLUDED.payload`,
		snap.Seq, snap.Timestamp, payload); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM snapshots WHERE seq NOT IN (
			SELECT seq FROM snapshots ORDER BY seq DESC LIMIT $1
		)`, retention); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}

	return tx.Commit()
}

// LatestSnapshot loads the most recent snapshot, or a zero Snapshot with
// Seq 0 if none exists yet (a brand-new store replays the whole journal).
func (s *Store) LatestSnapshot(ctx context.Context) (domain.Snapshot, error) {
	var row struct {
		Seq     uint64    `db:"seq"`
		TS      time.Time `db:"ts"`
		Payload []byte    `db:"payload"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT seq, ts, payload FROM snapshots ORDER BY seq DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, nil
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load latest snapshot: %w", err)
	}

	var orders []domain.OrderSnapshot
	if err := json.Unmarshal(row.Payload, &orders); err != nil {
		return domain.Snapshot{}, fmt.Errorf("unmarshal snapshot payload: %w", err)
	}
	return domain.Snapshot{Seq: row.Seq, Timestamp: row.TS, Orders: orders}, nil
}
