package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"kwh-exchange/domain"
)

// FsyncPolicy trades off durability for throughput on the journal write
// path. Required ordering either way: journal append happens before the OB
// mutation becomes visible, and before the event is published.
type FsyncPolicy string

const (
	// FsyncPerMutation appends and waits for the store's ack before
	// returning. Strongest durability (RPO zero), highest latency per
	// mutation.
	FsyncPerMutation FsyncPolicy = "per_mutation"
	// FsyncBatched collects appends arriving within the batch window and
	// writes them in one flush, one store insert per append in arrival
	// order. Each caller still blocks until its own insert returns, so the
	// cost is up to one window of added latency per append.
	FsyncBatched FsyncPolicy = "batched"
)

type pendingAppend struct {
	kind    domain.JournalEntryKind
	payload []byte
	ts      time.Time
	done    chan appendResult
}

type appendResult struct {
	seq uint64
	err error
}

// Journal is the append-only writer the matching engine's JournalWriter
// interface is satisfied by. Under FsyncBatched it collects concurrent
// Append calls arriving within one window and flushes them together, one
// store insert each; under FsyncPerMutation every call blocks on its own
// round trip.
type Journal struct {
	store  *Store
	policy FsyncPolicy
	window time.Duration

	mu      sync.Mutex
	pending []*pendingAppend
	timer   *time.Timer
}

// NewJournal constructs a Journal backed by store. window is only consulted
// under FsyncBatched.
func NewJournal(store *Store, policy FsyncPolicy, window time.Duration) *Journal {
	return &Journal{store: store, policy: policy, window: window}
}

// Append durably records one kind-tagged mutation and returns its assigned
// sequence number. matching.JournalWriter (Append(domain.JournalEntry)
// error) is satisfied by the EntryWriter adapter below.
func (j *Journal) Append(kind domain.JournalEntryKind, payload interface{}, ts time.Time) (uint64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal journal payload: %w", err)
	}

	if j.policy == FsyncPerMutation {
		return j.store.AppendJournal(context.Background(), kind, body, ts)
	}
	return j.appendBatched(kind, body, ts)
}

func (j *Journal) appendBatched(kind domain.JournalEntryKind, body []byte, ts time.Time) (uint64, error) {
	p := &pendingAppend{kind: kind, payload: body, ts: ts, done: make(chan appendResult, 1)}

	j.mu.Lock()
	j.pending = append(j.pending, p)
	if j.timer == nil {
		j.timer = time.AfterFunc(j.window, j.flush)
	}
	j.mu.Unlock()

	res := <-p.done
	return res.seq, res.err
}

func (j *Journal) flush() {
	j.mu.Lock()
	batch := j.pending
	j.pending = nil
	j.timer = nil
	j.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx := context.Background()
	for _, p := range batch {
		seq, err := j.store.AppendJournal(ctx, p.kind, p.payload, p.ts)
		p.done <- appendResult{seq: seq, err: err}
	}
}

// EntryWriter adapts Journal to matching.JournalWriter's
// Append(domain.JournalEntry) error signature: the engine has already
// chosen the entry's kind and serialized its payload, so this path skips
// re-marshaling.
type EntryWriter struct {
	j *Journal
}

func NewEntryWriter(j *Journal) *EntryWriter {
	return &EntryWriter{j: j}
}

func (w *EntryWriter) Append(entry domain.JournalEntry) error {
	if w.j.policy == FsyncPerMutation {
		_, err := w.j.store.AppendJournal(context.Background(), entry.Kind, entry.Payload, entry.Timestamp)
		return err
	}
	_, err := w.j.appendBatched(entry.Kind, entry.Payload, entry.Timestamp)
	return err
}
