package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"kwh-exchange/domain"
)

func TestStubClientSubmitIsIdempotentByTradeID(t *testing.T) {
	c := NewStubClient(nil)
	ctx := context.Background()

	first := c.Submit(ctx, "t1", "alice", "bob", 100, 20, decimal.NewFromFloat(0.5))
	if first.Kind != Accepted {
		t.Fatalf("expected Accepted, got %v", first.Kind)
	}

	second := c.Submit(ctx, "t1", "alice", "bob", 100, 20, decimal.NewFromFloat(0.5))
	if second.Kind != AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", second.Kind)
	}
	if second.Tx != first.Tx {
		t.Errorf("expected same tx returned, got %s vs %s", first.Tx, second.Tx)
	}
}

func TestStubClientStatusConfirmedAfterSubmit(t *testing.T) {
	c := NewStubClient(nil)
	ctx := context.Background()

	out := c.Submit(ctx, "t1", "alice", "bob", 100, 20, decimal.Zero)
	status := c.Status(ctx, out.Tx)
	if status.Kind != Confirmed {
		t.Fatalf("expected Confirmed, got %v", status.Kind)
	}
}

func TestStubClientStatusUnknownForUnseenTx(t *testing.T) {
	c := NewStubClient(nil)
	status := c.Status(context.Background(), "nonexistent")
	if status.Kind != Unknown {
		t.Errorf("expected Unknown, got %v", status.Kind)
	}
}
