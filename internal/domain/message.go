package domain

import "time"

// CachedMessage is the locally materialized, queryable view of one email,
// projected from the inbound event log. Read is a local-only flag; webhook
// events never touch it. LastEventAt is monotonically non-decreasing: stale or
// duplicate events must not regress the projection.
type CachedMessage struct {
	MessageID     string    `json:"messageId" gorm:"primaryKey;type:varchar(64)"`
	From          string    `json:"from" gorm:"column:from_address;type:varchar(255);index"`
	To            []string  `json:"to" gorm:"column:to_addresses;serializer:json;type:json"`
	Subject       string    `json:"subject" gorm:"type:varchar(500)"`
	Snippet       string    `json:"snippet" gorm:"type:text"`
	ReceivedAt    time.Time `json:"receivedAt" gorm:"index"`
	Read          bool      `json:"read" gorm:"default:false;index"`
	LastEventAt   time.Time `json:"lastEventAt"`
	LastEventType EventType `json:"lastEventType" gorm:"type:varchar(32)"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NewCachedMessage builds the initial projection from the first event applied
// for a message.
func NewCachedMessage(event *InboundEvent) *CachedMessage {
	msg := &CachedMessage{
		MessageID:  event.MessageID,
		ReceivedAt: event.OccurredAt,
	}
	msg.Apply(event)
	return msg
}

// Apply folds one event into the projection. The caller is responsible for the
// freshness check (event.OccurredAt >= msg.LastEventAt); Apply itself only
// merges fields. Empty payload fields leave the existing projection intact so
// a sparse status event (delivered, bounced) does not blank out a message.
func (m *CachedMessage) Apply(event *InboundEvent) {
	p := event.Payload
	if p.Subject != "" {
		m.Subject = p.Subject
	}
	if p.From != "" {
		m.From = p.From
	}
	if len(p.To) > 0 {
		m.To = p.To
	}
	if p.Snippet != "" {
		m.Snippet = p.Snippet
	}
	if event.EventType == EventReceived {
		m.ReceivedAt = event.OccurredAt
	}
	m.LastEventAt = event.OccurredAt
	m.LastEventType = event.EventType
}

// Fresh reports whether the event may mutate this projection, per the
// latest-event-wins rule.
func (m *CachedMessage) Fresh(event *InboundEvent) bool {
	return !event.OccurredAt.Before(m.LastEventAt)
}
