package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TranscriptTurn is one speaker turn within a call transcript
type TranscriptTurn struct {
	Role          string  `json:"role"`
	Content       string  `json:"content"`
	OffsetSeconds float64 `json:"offset_seconds"`
}

// TranscriptTurns is the ordered list of speaker turns, stored as JSONB
type TranscriptTurns []TranscriptTurn

// Value implements the driver.Valuer interface for TranscriptTurns
func (t TranscriptTurns) Value() (driver.Value, error) {
	return json.Marshal(t)
}

// Scan implements the sql.Scanner interface for TranscriptTurns
func (t *TranscriptTurns) Scan(value any) error {
	if value == nil {
		*t = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into TranscriptTurns", value)
	}
	return json.Unmarshal(bytes, t)
}

// Transcript holds the full text and recording artifacts of a finished call.
// At most one row exists per call; it is written from the end-of-call event or
// reconciliation and only rewritten by a corrective resync.
type Transcript struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	CallID            uint            `gorm:"not null;uniqueIndex:uk_transcripts_call_id" json:"call_id"`
	FullText          string          `gorm:"type:text;not null" json:"full_text"`
	Turns             TranscriptTurns `gorm:"type:jsonb" json:"turns,omitempty"`
	RecordingURL      *string         `gorm:"type:text" json:"recording_url,omitempty"`
	RecordingDuration *int            `json:"recording_duration,omitempty"`
	CreatedAt         time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`

	// Relations
	Call *Call `gorm:"foreignKey:CallID;references:ID" json:"call,omitempty"`
}

// TableName returns the table name for the model
func (Transcript) TableName() string {
	return "transcripts"
}
