package domain

import "time"

// ListLimits bound inbox queries so a filter can never trigger an unbounded
// scan.
const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// ListFilter narrows and pages an inbox listing. Results are always ordered by
// received_at descending.
type ListFilter struct {
	From       string     // exact sender match, case-insensitive
	Subject    string     // subject substring, case-insensitive
	UnreadOnly bool       // only messages with read=false
	Since      *time.Time // received_at >= Since
	Until      *time.Time // received_at <= Until
	Limit      int        // defaults to DefaultListLimit, capped at MaxListLimit
	Offset     int
}

// Normalize applies the default and cap to Limit and clamps Offset.
func (f *ListFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Store aggregates all persistence operations of the inbox cache. The SQL and
// memory implementations both satisfy it.
//
// ApplyEvent is the correctness-critical routine: it records the event in the
// audit log (deduplicated by event id) and folds it into the CachedMessage
// projection only when the event is not stale. It must be safe under
// concurrent calls for different message ids and must serialize concurrent
// applies for the same message id.
type Store interface {
	// ApplyEvent upserts the projection for event.MessageID. The returned
	// bool reports whether the event mutated the projection; duplicates and
	// stale events return false with a nil error.
	ApplyEvent(event *InboundEvent) (bool, error)

	// GetMessage returns the cached message or ErrMessageNotFound.
	GetMessage(messageID string) (*CachedMessage, error)

	// ListMessages returns cached messages matching the filter, newest first.
	ListMessages(filter ListFilter) ([]CachedMessage, error)

	// MarkMessageRead sets the local read flag. The bool reports whether the
	// message existed.
	MarkMessageRead(messageID string) (bool, error)

	// AppendReplayRecord durably appends a raw webhook body. The store
	// assigns the receipt-order ID.
	AppendReplayRecord(record *ReplayRecord) error

	// SetReplayOutcome updates the processed flag and error text of a record.
	SetReplayOutcome(id uint64, processed bool, procErr string) error

	// ListReplayRecords returns records in receipt order, bounded by the
	// selector's time range. Identifier filters are applied by the caller
	// after normalization.
	ListReplayRecords(selector ReplaySelector) ([]ReplayRecord, error)

	// ListUnprocessedReplayRecords returns up to limit unprocessed records in
	// receipt order.
	ListUnprocessedReplayRecords(limit int) ([]ReplayRecord, error)

	// Health reports whether the underlying storage is reachable.
	Health() error

	// Close releases storage resources.
	Close() error
}
