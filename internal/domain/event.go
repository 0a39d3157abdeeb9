package domain

import "time"

// EventType is the canonical lifecycle event taxonomy. The provider grows its
// own event vocabulary over time; anything we do not recognize maps to
// EventOther instead of failing normalization.
type EventType string

const (
	EventReceived  EventType = "received"  // message arrived in the inbox
	EventSent      EventType = "sent"      // provider accepted an outbound message
	EventDelivered EventType = "delivered" // remote server accepted delivery
	EventBounced   EventType = "bounced"   // remote server rejected delivery
	EventHeld      EventType = "held"      // held by the provider (spam/quota)
	EventOther     EventType = "other"     // unrecognized provider event
)

// providerEventTypes maps provider event strings to the canonical taxonomy.
// Both the namespaced form ("message.received") and the bare form ("received")
// have been observed in provider payloads.
var providerEventTypes = map[string]EventType{
	"message.received":  EventReceived,
	"received":          EventReceived,
	"message.sent":      EventSent,
	"sent":              EventSent,
	"message.delivered": EventDelivered,
	"delivered":         EventDelivered,
	"message.bounced":   EventBounced,
	"bounced":           EventBounced,
	"message.held":      EventHeld,
	"held":              EventHeld,
}

// ParseEventType maps a provider event string to the canonical taxonomy,
// falling back to EventOther for anything unknown.
func ParseEventType(s string) EventType {
	if t, ok := providerEventTypes[s]; ok {
		return t
	}
	return EventOther
}

// EventPayload is the subset of a webhook payload needed to project a
// CachedMessage.
type EventPayload struct {
	Subject string   `json:"subject"`
	From    string   `json:"from" gorm:"column:from_address;type:varchar(255)"`
	To      []string `json:"to" gorm:"column:to_addresses;serializer:json;type:json"`
	Snippet string   `json:"snippet" gorm:"type:text"`
	Size    int64    `json:"size"`
	Flags   []string `json:"flags" gorm:"serializer:json;type:json"`
}

// InboundEvent is the canonical, normalized shape of one webhook notification.
// EventID is provider-assigned and globally unique per notification; it is the
// primary key and therefore the dedup key for at-least-once redelivery.
type InboundEvent struct {
	EventID    string       `json:"eventId" gorm:"primaryKey;type:varchar(64)"`
	EventType  EventType    `json:"eventType" gorm:"type:varchar(32);index"`
	MessageID  string       `json:"messageId" gorm:"type:varchar(64);index;not null"`
	OccurredAt time.Time    `json:"occurredAt" gorm:"index"`
	Payload    EventPayload `json:"payload" gorm:"embedded;embeddedPrefix:payload_"`
	ReceivedAt time.Time    `json:"receivedAt"`
}
