package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementState is the settlement lifecycle per spec: state transitions
// only flow Pending -> Processing -> {Confirmed, Failed}, with Processing
// able to fall back to Pending on a transient failure (retry with backoff).
type SettlementState int

const (
	SettlementPending SettlementState = iota
	SettlementProcessing
	SettlementConfirmed
	SettlementFailed
)

func (s SettlementState) String() string {
	switch s {
	case SettlementPending:
		return "pending"
	case SettlementProcessing:
		return "processing"
	case SettlementConfirmed:
		return "confirmed"
	case SettlementFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s SettlementState) Terminal() bool {
	return s == SettlementConfirmed || s == SettlementFailed
}

// Settlement is the durable record of a TradeMatch being carried through to
// the external ledger. Exactly one Settlement exists per TradeID (unique
// constraint at the store layer enforces this).
type Settlement struct {
	ID             string
	TradeID        string
	State          SettlementState
	Attempts       int
	LastError      string
	LedgerTx       string
	Fee            decimal.Decimal
	SellerReceives decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ConfirmedAt    *time.Time
}

// CanRetry reports whether another attempt is allowed under max_attempts.
func (s *Settlement) CanRetry(maxAttempts int) bool {
	return s.Attempts < maxAttempts
}
