package eventbus

import (
	"time"

	"kwh-exchange/domain"
)

// Kind tags the payload type of an Event so subscribers can dispatch
// without a type switch on Payload.
type Kind string

const (
	KindOrderAdded             Kind = "order_added"
	KindOrderUpdated           Kind = "order_updated"
	KindOrderRemoved           Kind = "order_removed"
	KindTradeExecuted          Kind = "trade_executed"
	KindSettlementStateChanged Kind = "settlement_state_changed"
	KindBookSnapshotTaken      Kind = "book_snapshot_taken"
)

// RemoveReason distinguishes why an order left the book.
type RemoveReason string

const (
	ReasonCancel RemoveReason = "cancel"
	ReasonExpire RemoveReason = "expire"
	ReasonFilled RemoveReason = "filled"
)

// Event is the envelope every subscriber receives. Seq is assigned by the
// Bus at publish time and is monotonic across all kinds, so a subscriber
// can detect a gap (and therefore a drop) without per-kind bookkeeping.
type Event struct {
	Seq       uint64
	Kind      Kind
	Timestamp time.Time
	Payload   interface{}
}

type OrderAddedPayload struct {
	Order domain.OrderSnapshot
}

// OrderUpdatedPayload reports a resting order's fill progress after a trade
// that didn't remove it from the book (a partial fill).
type OrderUpdatedPayload struct {
	Order domain.OrderSnapshot
}

// OrderRemovedPayload reports a resting order leaving the book. Order is
// its final snapshot, so subscribers that persist order state (the durable
// store) don't need a separate lookup to record the terminal status.
type OrderRemovedPayload struct {
	OrderID   string
	Reason    RemoveReason
	Remaining domain.Quantity
	Order     domain.OrderSnapshot
}

type TradeExecutedPayload struct {
	Trade domain.TradeMatch
}

type SettlementStateChangedPayload struct {
	SettlementID string
	TradeID      string
	From         domain.SettlementState
	To           domain.SettlementState
	LedgerTx     string
}

type BookSnapshotTakenPayload struct {
	Seq uint64
}
