// Package webhook normalizes raw provider webhook payloads into canonical
// inbound events.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mailgoatai/mailgoat-inbox/internal/domain"
)

// SignatureHeader carries the provider's HMAC-SHA256 signature over the raw
// request body, in the form "sha256=<hex>".
const SignatureHeader = "X-Webhook-Signature"

// envelope is the provider's wire shape for one webhook notification.
type envelope struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	MessageID string          `json:"message_id"`
	Timestamp json.RawMessage `json:"timestamp"`
	Payload   payload         `json:"payload"`
}

type payload struct {
	Subject string   `json:"subject"`
	From    string   `json:"from"`
	To      []string `json:"to"`
	Snippet string   `json:"snippet"`
	Size    int64    `json:"size"`
	Flags   []string `json:"flags"`
}

// Normalizer parses raw webhook bodies into domain.InboundEvent values,
// verifying the HMAC signature first when a shared secret is configured.
type Normalizer struct {
	secret string
}

// NewNormalizer creates a normalizer. An empty secret disables signature
// verification.
func NewNormalizer(secret string) *Normalizer {
	return &Normalizer{secret: secret}
}

// Normalize verifies the signature over body and decodes the provider
// envelope. Signature failures return domain.ErrSignatureMismatch; malformed
// payloads return a *domain.NormalizationError. Unknown event type strings
// degrade to domain.EventOther rather than failing.
func (n *Normalizer) Normalize(body []byte, signature string) (*domain.InboundEvent, error) {
	if n.secret != "" {
		if !verifySignature(body, signature, n.secret) {
			return nil, domain.ErrSignatureMismatch
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &domain.NormalizationError{Reason: "invalid JSON envelope", Err: err}
	}
	if env.ID == "" {
		return nil, &domain.NormalizationError{Reason: "missing event id"}
	}
	if env.MessageID == "" {
		return nil, &domain.NormalizationError{Reason: "missing message id"}
	}

	occurredAt, err := parseTimestamp(env.Timestamp)
	if err != nil {
		return nil, &domain.NormalizationError{Reason: "invalid timestamp", Err: err}
	}

	return &domain.InboundEvent{
		EventID:    env.ID,
		EventType:  domain.ParseEventType(env.Event),
		MessageID:  env.MessageID,
		OccurredAt: occurredAt,
		Payload: domain.EventPayload{
			Subject: env.Payload.Subject,
			From:    env.Payload.From,
			To:      env.Payload.To,
			Snippet: env.Payload.Snippet,
			Size:    env.Payload.Size,
			Flags:   env.Payload.Flags,
		},
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// Sign computes the signature header value the provider would send for body.
// Used by tests and by replay verification.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// verifySignature performs a constant-time comparison of the expected and
// presented signatures. The "sha256=" prefix is optional on the wire.
func verifySignature(body []byte, signature, secret string) bool {
	presented := strings.TrimPrefix(signature, "sha256=")

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(presented))
}

// parseTimestamp accepts both RFC3339 strings and unix-second numbers; the
// provider has shipped both forms.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 {
		return time.Time{}, errors.New("missing timestamp")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return time.Parse(time.RFC3339, s)
	}

	var unix float64
	if err := json.Unmarshal(raw, &unix); err != nil {
		return time.Time{}, err
	}
	sec := int64(unix)
	nsec := int64((unix - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC(), nil
}
