package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"kwh-exchange/domain"
)

// NewPending builds the one Settlement row a TradeMatch gets at creation
// time, fee/seller_receives already computed so later reads never need the
// trade row to display them.
func NewPending(settlementID, tradeID string, fee, sellerReceives decimal.Decimal, now time.Time) domain.Settlement {
	return domain.Settlement{
		ID:             settlementID,
		TradeID:        tradeID,
		State:          domain.SettlementPending,
		Fee:            fee,
		SellerReceives: sellerReceives,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// markConfirmed transitions a claimed (Processing) settlement to its
// terminal Confirmed state.
func markConfirmed(s domain.Settlement, ledgerTx string, now time.Time) domain.Settlement {
	s.State = domain.SettlementConfirmed
	s.LedgerTx = ledgerTx
	s.UpdatedAt = now
	s.ConfirmedAt = &now
	return s
}

// markFailed transitions a claimed settlement to its terminal Failed state,
// either because the failure was non-transient or attempts are exhausted.
func markFailed(s domain.Settlement, reason string, now time.Time) domain.Settlement {
	s.State = domain.SettlementFailed
	s.LastError = reason
	s.UpdatedAt = now
	return s
}

// markRetry returns a claimed settlement to Pending after a transient
// failure, preserving the attempt count the claim already incremented.
func markRetry(s domain.Settlement, reason string, now time.Time) domain.Settlement {
	s.State = domain.SettlementPending
	s.LastError = reason
	s.UpdatedAt = now
	return s
}

// backoffDelay is the linear backoff policy: base_delay · attempts.
func backoffDelay(baseDelay time.Duration, attempts int) time.Duration {
	return baseDelay * time.Duration(attempts)
}
