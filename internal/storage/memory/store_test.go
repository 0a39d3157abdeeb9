package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

func newEvent(eventID, messageID string, eventType domain.EventType, occurredAt time.Time) *domain.InboundEvent {
	return &domain.InboundEvent{
		EventID:    eventID,
		EventType:  eventType,
		MessageID:  messageID,
		OccurredAt: occurredAt,
		Payload: domain.EventPayload{
			Subject: "subject of " + messageID,
			From:    "sender@example.com",
			To:      []string{"agent@mailgoat.ai"},
			Snippet: "snippet " + eventID,
		},
	}
}

func TestApplyEvent_Idempotent(t *testing.T) {
	store := NewStore()
	event := newEvent("evt-1", "m1", domain.EventReceived, time.Unix(100, 0))

	applied, err := store.ApplyEvent(event)
	require.NoError(t, err)
	assert.True(t, applied)

	first, err := store.GetMessage("m1")
	require.NoError(t, err)

	// Redelivery of the same event id must be a no-op.
	applied, err = store.ApplyEvent(event)
	require.NoError(t, err)
	assert.False(t, applied)

	second, err := store.GetMessage("m1")
	require.NoError(t, err)
	assert.Equal(t, first.LastEventAt, second.LastEventAt)
	assert.Equal(t, first.LastEventType, second.LastEventType)
	assert.Equal(t, first.Subject, second.Subject)
}

func TestApplyEvent_OrderIndependent(t *testing.T) {
	base := []*domain.InboundEvent{
		newEvent("e1", "m1", domain.EventReceived, time.Unix(1, 0)),
		newEvent("e2", "m1", domain.EventDelivered, time.Unix(3, 0)),
		newEvent("e3", "m1", domain.EventSent, time.Unix(2, 0)),
	}
	base[1].Payload.Snippet = "winning snippet"

	permutations := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	for _, perm := range permutations {
		t.Run(fmt.Sprintf("order_%v", perm), func(t *testing.T) {
			store := NewStore()
			for _, i := range perm {
				_, err := store.ApplyEvent(base[i])
				require.NoError(t, err)
			}

			msg, err := store.GetMessage("m1")
			require.NoError(t, err)
			assert.Equal(t, time.Unix(3, 0), msg.LastEventAt)
			assert.Equal(t, domain.EventDelivered, msg.LastEventType)
			assert.Equal(t, "winning snippet", msg.Snippet)
		})
	}
}

func TestApplyEvent_StaleEventDoesNotRegress(t *testing.T) {
	store := NewStore()

	// received(t=10), bounced(t=30), delivered(t=20) in arrival order.
	received := newEvent("e-recv", "m1", domain.EventReceived, time.Unix(10, 0))
	bounced := newEvent("e-bounce", "m1", domain.EventBounced, time.Unix(30, 0))
	delivered := newEvent("e-deliver", "m1", domain.EventDelivered, time.Unix(20, 0))

	for _, ev := range []*domain.InboundEvent{received, bounced, delivered} {
		_, err := store.ApplyEvent(ev)
		require.NoError(t, err)
	}

	msg, err := store.GetMessage("m1")
	require.NoError(t, err)

	// The latest timestamp wins, not arrival order.
	assert.Equal(t, domain.EventBounced, msg.LastEventType)
	assert.Equal(t, time.Unix(30, 0), msg.LastEventAt)
	// ReceivedAt still reflects the received event.
	assert.Equal(t, time.Unix(10, 0), msg.ReceivedAt)
}

func TestApplyEvent_EqualTimestampApplies(t *testing.T) {
	store := NewStore()

	_, err := store.ApplyEvent(newEvent("e1", "m1", domain.EventReceived, time.Unix(5, 0)))
	require.NoError(t, err)

	applied, err := store.ApplyEvent(newEvent("e2", "m1", domain.EventDelivered, time.Unix(5, 0)))
	require.NoError(t, err)
	assert.True(t, applied)

	msg, err := store.GetMessage("m1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventDelivered, msg.LastEventType)
}

func TestApplyEvent_SparsePayloadKeepsFields(t *testing.T) {
	store := NewStore()

	_, err := store.ApplyEvent(newEvent("e1", "m1", domain.EventReceived, time.Unix(1, 0)))
	require.NoError(t, err)

	// Status events often carry no payload fields.
	status := &domain.InboundEvent{
		EventID:    "e2",
		EventType:  domain.EventDelivered,
		MessageID:  "m1",
		OccurredAt: time.Unix(2, 0),
	}
	_, err = store.ApplyEvent(status)
	require.NoError(t, err)

	msg, err := store.GetMessage("m1")
	require.NoError(t, err)
	assert.Equal(t, "subject of m1", msg.Subject)
	assert.Equal(t, "sender@example.com", msg.From)
	assert.Equal(t, domain.EventDelivered, msg.LastEventType)
}

func TestListMessages_UnreadOnlyWithLimit(t *testing.T) {
	store := NewStore()

	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("m%d", i)
		ev := newEvent("evt-"+id, id, domain.EventReceived, time.Unix(int64(100+i), 0))
		_, err := store.ApplyEvent(ev)
		require.NoError(t, err)
	}
	// Mark three read, leaving five unread.
	for _, id := range []string{"m0", "m1", "m2"} {
		ok, err := store.MarkMessageRead(id)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	msgs, err := store.ListMessages(domain.ListFilter{UnreadOnly: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// Newest first.
	assert.Equal(t, "m7", msgs[0].MessageID)
	assert.Equal(t, "m6", msgs[1].MessageID)
}

func TestListMessages_Filters(t *testing.T) {
	store := NewStore()

	ev1 := newEvent("e1", "m1", domain.EventReceived, time.Unix(100, 0))
	ev1.Payload.From = "alice@example.com"
	ev1.Payload.Subject = "Invoice for March"
	ev2 := newEvent("e2", "m2", domain.EventReceived, time.Unix(200, 0))
	ev2.Payload.From = "bob@example.com"
	ev2.Payload.Subject = "Weekly report"

	for _, ev := range []*domain.InboundEvent{ev1, ev2} {
		_, err := store.ApplyEvent(ev)
		require.NoError(t, err)
	}

	msgs, err := store.ListMessages(domain.ListFilter{From: "ALICE@example.com"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].MessageID)

	msgs, err = store.ListMessages(domain.ListFilter{Subject: "invoice"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].MessageID)

	since := time.Unix(150, 0)
	msgs, err = store.ListMessages(domain.ListFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m2", msgs[0].MessageID)

	msgs, err = store.ListMessages(domain.ListFilter{From: "nobody@example.com"})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMarkMessageRead_Unknown(t *testing.T) {
	store := NewStore()
	ok, err := store.MarkMessageRead("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplayRecords_AppendAndOutcome(t *testing.T) {
	store := NewStore()

	rec1 := &domain.ReplayRecord{Body: []byte(`{"id":"e1"}`), ReceivedAt: time.Unix(10, 0)}
	rec2 := &domain.ReplayRecord{Body: []byte(`{"id":"e2"}`), ReceivedAt: time.Unix(20, 0)}
	require.NoError(t, store.AppendReplayRecord(rec1))
	require.NoError(t, store.AppendReplayRecord(rec2))

	// Receipt order is fixed by assigned ids.
	assert.Equal(t, uint64(1), rec1.ID)
	assert.Equal(t, uint64(2), rec2.ID)

	require.NoError(t, store.SetReplayOutcome(rec1.ID, true, ""))
	require.NoError(t, store.SetReplayOutcome(rec2.ID, false, "bad payload"))

	unprocessed, err := store.ListUnprocessedReplayRecords(10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
	assert.Equal(t, rec2.ID, unprocessed[0].ID)
	assert.Equal(t, "bad payload", unprocessed[0].Error)

	from := time.Unix(15, 0)
	records, err := store.ListReplayRecords(domain.ReplaySelector{From: &from})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec2.ID, records[0].ID)

	assert.ErrorIs(t, store.SetReplayOutcome(999, true, ""), domain.ErrReplayRecordNotFound)
}
