package domain

import "time"

// JournalEntryKind tags what kind of book mutation a journal row records.
type JournalEntryKind string

const (
	JournalAdd    JournalEntryKind = "add"
	JournalCancel JournalEntryKind = "cancel"
	JournalFill   JournalEntryKind = "fill"
	JournalExpire JournalEntryKind = "expire"
)

// JournalEntry is one append-only row. Seq is assigned by the store and is
// the watermark snapshots and replay are keyed on.
type JournalEntry struct {
	Seq       uint64
	Kind      JournalEntryKind
	Payload   []byte // JSON-encoded kind-specific body
	Timestamp time.Time
}

// Snapshot is a point-in-time image of the live book, tagged with the
// journal sequence at capture time. Restoring a Snapshot and replaying every
// JournalEntry with Seq > Snapshot.Seq reproduces the book as of the latest
// entry.
type Snapshot struct {
	Seq       uint64
	Timestamp time.Time
	Orders    []OrderSnapshot
}
