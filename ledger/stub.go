package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"kwh-exchange/domain"
)

// StubClient is an in-memory, idempotent fake used in tests and whenever
// ledger.dry_run is configured. It accepts every submission immediately and
// reports it confirmed on the next Status call.
type StubClient struct {
	mu  sync.Mutex
	tx  map[string]string // trade_id -> tx
	now func() time.Time
}

// NewStubClient builds a stub. now defaults to time.Now if nil.
func NewStubClient(now func() time.Time) *StubClient {
	if now == nil {
		now = time.Now
	}
	return &StubClient{tx: make(map[string]string), now: now}
}

func (s *StubClient) Submit(ctx context.Context, tradeID, buyer, seller string, quantity domain.Quantity, price domain.Price, fee decimal.Decimal) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx, ok := s.tx[tradeID]; ok {
		return Outcome{Kind: AlreadyExists, Tx: tx}
	}
	tx := fmt.Sprintf("dry-run-%s", tradeID)
	s.tx[tradeID] = tx
	return Outcome{Kind: Accepted, Tx: tx}
}

func (s *StubClient) Status(ctx context.Context, tx string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.tx {
		if v == tx {
			return Status{Kind: Confirmed, ConfirmedAt: s.now()}
		}
	}
	return Status{Kind: Unknown}
}
