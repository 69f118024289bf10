package domain

import (
	"time"

	"gorm.io/datatypes"
)

// EventRecord is one row of the billing event inbox.
type EventRecord struct {
	ID              int64          `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
	Outcome         *string        `json:"outcome"`
}

func (EventRecord) TableName() string { return "billing_events" }

// Outcome records what handling an event did.
type Outcome string

const (
	// OutcomeApplied means local state changed.
	OutcomeApplied Outcome = "applied"
	// OutcomeNoop means the order was already in or past the target state.
	OutcomeNoop Outcome = "noop"
	// OutcomeUnmatched means no order carries the event's payment intent.
	OutcomeUnmatched Outcome = "unmatched"
	// OutcomeIgnored covers event kinds that only get logged.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDuplicate is returned for a delivery that was already processed.
	OutcomeDuplicate Outcome = "duplicate"
)
