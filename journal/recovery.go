package journal

import (
	"context"
	"fmt"

	"kwh-exchange/domain"
)

// Replayer is satisfied by matching.Engine: load a snapshot's orders
// directly, then fast-forward with journal entries recorded after it.
type Replayer interface {
	LoadSnapshot(snap domain.Snapshot)
	Replay(entry domain.JournalEntry) error
}

// Recover loads the latest snapshot and replays every journal entry after
// its watermark into engine, in order. Deterministic and idempotent: running
// it twice against the same store and a freshly constructed engine produces
// the same book. Callers must not accept API traffic until this returns.
func Recover(ctx context.Context, store *Store, engine Replayer) error {
	snap, err := store.LatestSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("recover: load snapshot: %w", err)
	}
	engine.LoadSnapshot(snap)

	entries, err := store.JournalSince(ctx, snap.Seq)
	if err != nil {
		return fmt.Errorf("recover: load journal since seq %d: %w", snap.Seq, err)
	}
	for _, entry := range entries {
		if err := engine.Replay(entry); err != nil {
			return fmt.Errorf("recover: replay journal entry seq %d kind %s: %w", entry.Seq, entry.Kind, err)
		}
	}
	return nil
}

// ReconciliationFault describes one mismatch found by Reconcile.
type ReconciliationFault struct {
	OrderID string
	Reason  string
}

func (f ReconciliationFault) Error() string {
	return fmt.Sprintf("order %s: %s", f.OrderID, f.Reason)
}

// BookReader is the minimal read surface Reconcile needs from the engine
// after replay.
type BookReader interface {
	GetOrder(orderID string) (domain.OrderSnapshot, bool)
}

// Reconcile checks the invariant that must hold after recovery: every
// durable order row still Open or PartiallyFilled must have exactly one
// matching live order in the book, with the same remaining quantity.
// Terminal durable rows (Filled/Cancelled/Expired) are not expected to be in
// the book at all — the matching engine already removed them.
func Reconcile(ctx context.Context, store *Store, book BookReader) ([]ReconciliationFault, error) {
	rows, err := store.FetchOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: fetch open orders: %w", err)
	}

	var faults []ReconciliationFault
	for _, row := range rows {
		live, ok := book.GetOrder(row.ID)
		if !ok {
			faults = append(faults, ReconciliationFault{OrderID: row.ID, Reason: "durable row open but missing from book"})
			continue
		}
		if live.Remaining() != row.Remaining() {
			faults = append(faults, ReconciliationFault{
				OrderID: row.ID,
				Reason:  fmt.Sprintf("remaining mismatch: book=%d store=%d", live.Remaining(), row.Remaining()),
			})
		}
	}
	return faults, nil
}
