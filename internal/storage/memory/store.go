// Package memory implements the inbox cache store in process memory, used for
// development and as the reference implementation in tests.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

// Store keeps the event log, the message projection and the replay log in
// maps guarded by one mutex. A single lock also satisfies the per-message
// serialization requirement of ApplyEvent.
type Store struct {
	mu sync.Mutex

	messages      map[string]*domain.CachedMessage // messageID -> projection
	appliedEvents map[string]struct{}              // eventID   -> applied marker
	events        []domain.InboundEvent            // audit log, arrival order

	replayRecords []*domain.ReplayRecord // receipt order
	nextReplayID  uint64
}

// NewStore creates an empty memory store.
func NewStore() *Store {
	return &Store{
		messages:      make(map[string]*domain.CachedMessage),
		appliedEvents: make(map[string]struct{}),
		nextReplayID:  1,
	}
}

// ApplyEvent records the event and folds it into the projection unless it is
// a duplicate or stale. Duplicates are detected by event id; staleness by the
// latest-event-wins comparison against the projection's LastEventAt.
func (s *Store) ApplyEvent(event *domain.InboundEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.appliedEvents[event.EventID]; seen {
		return false, nil
	}
	s.appliedEvents[event.EventID] = struct{}{}
	s.events = append(s.events, *event)

	msg, ok := s.messages[event.MessageID]
	if !ok {
		s.messages[event.MessageID] = domain.NewCachedMessage(event)
		return true, nil
	}
	if !msg.Fresh(event) {
		// Stale: kept in the audit log, projection untouched.
		return false, nil
	}
	msg.Apply(event)
	msg.UpdatedAt = time.Now().UTC()
	return true, nil
}

// GetMessage returns the cached message for the id.
func (s *Store) GetMessage(messageID string) (*domain.CachedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

// ListMessages returns matching messages ordered by received_at descending.
func (s *Store) ListMessages(filter domain.ListFilter) ([]domain.CachedMessage, error) {
	filter.Normalize()

	s.mu.Lock()
	matched := make([]domain.CachedMessage, 0, len(s.messages))
	for _, msg := range s.messages {
		if matchesFilter(msg, filter) {
			matched = append(matched, *msg)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
	})

	if filter.Offset >= len(matched) {
		return []domain.CachedMessage{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// MarkMessageRead sets the local read flag.
func (s *Store) MarkMessageRead(messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return false, nil
	}
	msg.Read = true
	msg.UpdatedAt = time.Now().UTC()
	return true, nil
}

// AppendReplayRecord appends a raw webhook body and assigns the receipt-order
// id.
func (s *Store) AppendReplayRecord(record *domain.ReplayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = s.nextReplayID
	s.nextReplayID++
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now().UTC()
	}
	s.replayRecords = append(s.replayRecords, record)
	return nil
}

// SetReplayOutcome updates the processed flag and error text of a record.
func (s *Store) SetReplayOutcome(id uint64, processed bool, procErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.replayRecords {
		if rec.ID == id {
			rec.Processed = processed
			rec.Error = procErr
			return nil
		}
	}
	return domain.ErrReplayRecordNotFound
}

// ListReplayRecords returns records in receipt order within the selector's
// time range.
func (s *Store) ListReplayRecords(selector domain.ReplaySelector) ([]domain.ReplayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ReplayRecord, 0, len(s.replayRecords))
	for _, rec := range s.replayRecords {
		if selector.From != nil && rec.ReceivedAt.Before(*selector.From) {
			continue
		}
		if selector.To != nil && rec.ReceivedAt.After(*selector.To) {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// ListUnprocessedReplayRecords returns up to limit unprocessed records in
// receipt order.
func (s *Store) ListUnprocessedReplayRecords(limit int) ([]domain.ReplayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ReplayRecord, 0)
	for _, rec := range s.replayRecords {
		if rec.Processed {
			continue
		}
		out = append(out, *rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Health always succeeds for the memory store.
func (s *Store) Health() error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// matchesFilter applies the non-paging filter fields to one message.
func matchesFilter(msg *domain.CachedMessage, filter domain.ListFilter) bool {
	if filter.UnreadOnly && msg.Read {
		return false
	}
	if filter.From != "" && !strings.EqualFold(msg.From, filter.From) {
		return false
	}
	if filter.Subject != "" &&
		!strings.Contains(strings.ToLower(msg.Subject), strings.ToLower(filter.Subject)) {
		return false
	}
	if filter.Since != nil && msg.ReceivedAt.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && msg.ReceivedAt.After(*filter.Until) {
		return false
	}
	return true
}
