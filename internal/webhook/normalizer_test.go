package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

const validBody = `{
	"id": "evt-1",
	"event": "message.received",
	"message_id": "msg-1",
	"timestamp": "2024-03-01T10:00:00Z",
	"payload": {
		"subject": "Hello",
		"from": "alice@example.com",
		"to": ["agent@mailgoat.ai"],
		"snippet": "Hello there",
		"size": 2048,
		"flags": ["inbound"]
	}
}`

func TestNormalize_ValidEvent(t *testing.T) {
	n := NewNormalizer("")

	event, err := n.Normalize([]byte(validBody), "")
	require.NoError(t, err)

	assert.Equal(t, "evt-1", event.EventID)
	assert.Equal(t, domain.EventReceived, event.EventType)
	assert.Equal(t, "msg-1", event.MessageID)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), event.OccurredAt)
	assert.Equal(t, "Hello", event.Payload.Subject)
	assert.Equal(t, "alice@example.com", event.Payload.From)
	assert.Equal(t, []string{"agent@mailgoat.ai"}, event.Payload.To)
	assert.Equal(t, int64(2048), event.Payload.Size)
}

func TestNormalize_Signature(t *testing.T) {
	secret := "shared-secret"
	n := NewNormalizer(secret)
	body := []byte(validBody)

	// Valid signature passes.
	_, err := n.Normalize(body, Sign(body, secret))
	require.NoError(t, err)

	// Wrong secret fails.
	_, err = n.Normalize(body, Sign(body, "other-secret"))
	assert.ErrorIs(t, err, domain.ErrSignatureMismatch)

	// Missing signature fails when a secret is configured.
	_, err = n.Normalize(body, "")
	assert.ErrorIs(t, err, domain.ErrSignatureMismatch)

	// No secret configured: signature is ignored.
	open := NewNormalizer("")
	_, err = open.Normalize(body, "sha256=garbage")
	assert.NoError(t, err)
}

func TestNormalize_UnknownEventType(t *testing.T) {
	n := NewNormalizer("")

	body := []byte(`{"id":"evt-2","event":"message.quarantined","message_id":"msg-2","timestamp":"2024-03-01T10:00:00Z","payload":{}}`)
	event, err := n.Normalize(body, "")
	require.NoError(t, err)
	assert.Equal(t, domain.EventOther, event.EventType)
}

func TestNormalize_EventTypeMapping(t *testing.T) {
	cases := map[string]domain.EventType{
		"message.received":  domain.EventReceived,
		"received":          domain.EventReceived,
		"message.sent":      domain.EventSent,
		"message.delivered": domain.EventDelivered,
		"bounced":           domain.EventBounced,
		"message.held":      domain.EventHeld,
		"":                  domain.EventOther,
	}
	for input, want := range cases {
		assert.Equal(t, want, domain.ParseEventType(input), "input %q", input)
	}
}

func TestNormalize_UnixTimestamp(t *testing.T) {
	n := NewNormalizer("")

	body := []byte(`{"id":"evt-3","event":"received","message_id":"msg-3","timestamp":1709287200,"payload":{}}`)
	event, err := n.Normalize(body, "")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1709287200, 0).UTC(), event.OccurredAt)
}

func TestNormalize_Malformed(t *testing.T) {
	n := NewNormalizer("")

	var normErr *domain.NormalizationError

	_, err := n.Normalize([]byte("not json"), "")
	require.ErrorAs(t, err, &normErr)

	_, err = n.Normalize([]byte(`{"event":"received","message_id":"m1","timestamp":"2024-03-01T10:00:00Z"}`), "")
	require.ErrorAs(t, err, &normErr)
	assert.Contains(t, normErr.Error(), "event id")

	_, err = n.Normalize([]byte(`{"id":"e1","event":"received","timestamp":"2024-03-01T10:00:00Z"}`), "")
	require.ErrorAs(t, err, &normErr)
	assert.Contains(t, normErr.Error(), "message id")

	_, err = n.Normalize([]byte(`{"id":"e1","event":"received","message_id":"m1","timestamp":"yesterday"}`), "")
	require.ErrorAs(t, err, &normErr)
}
