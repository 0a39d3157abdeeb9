package domain

import "time"

// ReplayRecord retains the raw, unparsed webhook body so events can be
// re-normalized after a bug fix or store recovery. Records are append-only;
// only the processed flag and error text are ever updated. The auto-increment
// ID fixes the original receipt order for replay.
type ReplayRecord struct {
	ID         uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Body       []byte    `json:"-" gorm:"type:blob;not null"`
	Signature  string    `json:"-" gorm:"type:varchar(255)"`
	ReceivedAt time.Time `json:"receivedAt" gorm:"index"`
	Processed  bool      `json:"processed" gorm:"default:false;index"`
	Error      string    `json:"error,omitempty" gorm:"type:text"`
}

// ReplaySelector picks which stored records a replay run covers. Exactly one
// of MessageID / EventID may be set; From/To bound the receipt time and may be
// combined with either.
type ReplaySelector struct {
	MessageID string     `json:"messageId,omitempty"`
	EventID   string     `json:"eventId,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
}

// Matches reports whether a normalized event satisfies the selector's
// identifier filters. Time-range filtering happens at the store when records
// are loaded.
func (s ReplaySelector) Matches(event *InboundEvent) bool {
	if s.MessageID != "" && event.MessageID != s.MessageID {
		return false
	}
	if s.EventID != "" && event.EventID != s.EventID {
		return false
	}
	return true
}

// ReplaySummary reports the outcome of one replay run. Skipped counts events
// the store refused to apply (duplicates and stale timestamps); Failed counts
// records that would not normalize or persist.
type ReplaySummary struct {
	RunID    string        `json:"runId"`
	Scanned  int           `json:"scanned"`
	Matched  int           `json:"matched"`
	Applied  int           `json:"applied"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}
