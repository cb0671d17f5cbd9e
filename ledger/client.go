// Package ledger talks to the external settlement ledger that records
// confirmed trades outside this process.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kwh-exchange/domain"
)

// OutcomeKind tags how a Submit call resolved.
type OutcomeKind int

const (
	// Accepted: the ledger accepted this as a new transaction.
	Accepted OutcomeKind = iota
	// AlreadyExists: the ledger had already seen this trade_id (idempotent
	// resubmission) and returned the existing tx.
	AlreadyExists
	// Transient: the caller should retry (timeout, 5xx, "not yet confirmed").
	Transient
	// Permanent: the caller should not retry (validation rejected, etc.).
	Permanent
)

// Outcome is the result of one Submit call.
type Outcome struct {
	Kind OutcomeKind
	Tx   string // ledger transaction signature, set for Accepted/AlreadyExists
	Err  error  // set for Transient/Permanent
}

// StatusKind tags the current state of a previously submitted trade.
type StatusKind int

const (
	Unknown StatusKind = iota
	Pending
	Confirmed
	Failed
)

// Status is the result of one Status call.
type Status struct {
	Kind        StatusKind
	ConfirmedAt time.Time
	Err         error // set for Failed
}

// Client is the external ledger contract: idempotent-by-trade-id submission
// plus a status check, with transient vs. permanent failures distinguished
// so settlement.Pipeline knows whether to retry.
type Client interface {
	Submit(ctx context.Context, tradeID, buyer, seller string, quantity domain.Quantity, price domain.Price, fee decimal.Decimal) Outcome
	Status(ctx context.Context, tx string) Status
}
