package models

import (
	"encoding/json"
	"time"
)

// WebhookLogEntry is an append-only audit record of one inbound provider event.
// Rows are never mutated except to mark them processed or record an error.
type WebhookLogEntry struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	EventType   string          `gorm:"size:64;not null;index:idx_webhook_logs_event_type" json:"event_type"`
	VapiCallID  *string         `gorm:"size:128;index:idx_webhook_logs_vapi_call_id" json:"vapi_call_id,omitempty"`
	Payload     json.RawMessage `gorm:"type:jsonb;not null" json:"payload"`
	Processed   bool            `gorm:"not null;default:false" json:"processed"`
	Error       *string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null;index:idx_webhook_logs_created_at" json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// TableName returns the table name for the model
func (WebhookLogEntry) TableName() string {
	return "webhook_log_entries"
}
