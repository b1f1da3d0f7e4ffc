package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Analytics sync sources, recorded for audit of which path produced the row
const (
	AnalyticsSourceWebhook        = "webhook"
	AnalyticsSourceReconciliation = "reconciliation"
)

// CallAnalytics holds the structured outcome derived from the provider's call
// analysis. At most one row exists per call; re-running classification for a
// call overwrites the row, it never appends.
type CallAnalytics struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	CallID  uint   `gorm:"not null;uniqueIndex:uk_call_analytics_call_id" json:"call_id"`
	Summary string `gorm:"type:text" json:"summary"`

	Outcome   CallOutcome `gorm:"type:call_outcome;not null" json:"outcome"`
	Result    CallResult  `gorm:"type:call_result;not null" json:"result"`
	Sentiment *string     `gorm:"size:32" json:"sentiment,omitempty"`

	InterestLevel *string `gorm:"size:32" json:"interest_level,omitempty"`

	AppointmentBooked bool       `gorm:"not null;default:false" json:"appointment_booked"`
	AppointmentDate   *string    `gorm:"size:128" json:"appointment_date,omitempty"`
	AppointmentTime   *string    `gorm:"size:128" json:"appointment_time,omitempty"`
	AppointmentAt     *time.Time `json:"appointment_at,omitempty"`

	FollowUpNeeded bool           `gorm:"not null;default:false" json:"follow_up_needed"`
	FollowUpTopics pq.StringArray `gorm:"type:text[]" json:"follow_up_topics,omitempty"`

	ConfirmedName   *string `gorm:"size:255" json:"confirmed_name,omitempty"`
	ConfirmedPhone  *string `gorm:"size:32" json:"confirmed_phone,omitempty"`
	ConfirmedEmail  *string `gorm:"size:255" json:"confirmed_email,omitempty"`
	ConfirmedFields pq.StringArray `gorm:"type:text[]" json:"confirmed_fields,omitempty"`

	// Raw provider analysis payload, retained verbatim for audit
	RawAnalysis json.RawMessage `gorm:"type:jsonb" json:"raw_analysis,omitempty"`

	SyncSource string    `gorm:"size:32;not null;default:'webhook'" json:"sync_source"`
	CreatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`

	// Relations
	Call *Call `gorm:"foreignKey:CallID;references:ID" json:"call,omitempty"`
}

// TableName returns the table name for the model
func (CallAnalytics) TableName() string {
	return "call_analytics"
}
