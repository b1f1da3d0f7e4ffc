package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CallStatus represents the lifecycle status of a call
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusScheduled  CallStatus = "scheduled"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusVoicemail  CallStatus = "voicemail"
	CallStatusCancelled  CallStatus = "cancelled"
)

// String returns the string representation of the status
func (s CallStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusQueued, CallStatusScheduled, CallStatusRinging, CallStatusInProgress,
		CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy,
		CallStatusVoicemail, CallStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is expected from this status
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy,
		CallStatusVoicemail, CallStatusCancelled:
		return true
	default:
		return false
	}
}

// Rank orders statuses by how far along the lifecycle they are. Transitions may
// only move to a status of equal or greater rank, which makes late out-of-order
// events safe to re-apply.
func (s CallStatus) Rank() int {
	switch s {
	case CallStatusQueued:
		return 0
	case CallStatusScheduled:
		return 1
	case CallStatusRinging:
		return 2
	case CallStatusInProgress:
		return 3
	default:
		// All terminal statuses share the top rank
		return 4
	}
}

// CanTransitionTo checks if the call can move to the given status
func (s CallStatus) CanTransitionTo(target CallStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if target == CallStatusCancelled {
		return true
	}
	return target.Rank() >= s.Rank()
}

// Scan implements the sql.Scanner interface for CallStatus
func (s *CallStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = CallStatus(v)
	case []byte:
		*s = CallStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CallStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for CallStatus
func (s CallStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CallStatus: %s", s)
	}
	return string(s), nil
}

// CallDirection represents whether a call was placed or received
type CallDirection string

const (
	CallDirectionOutbound CallDirection = "outbound"
	CallDirectionInbound  CallDirection = "inbound"
)

// Valid checks if the direction is valid
func (d CallDirection) Valid() bool {
	return d == CallDirectionOutbound || d == CallDirectionInbound
}

// Scan implements the sql.Scanner interface for CallDirection
func (d *CallDirection) Scan(value any) error {
	if value == nil {
		*d = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*d = CallDirection(v)
	case []byte:
		*d = CallDirection(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CallDirection", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for CallDirection
func (d CallDirection) Value() (driver.Value, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid CallDirection: %s", d)
	}
	return string(d), nil
}

// CallOutcome represents the business outcome derived from a finished call
type CallOutcome string

const (
	CallOutcomeSuccess           CallOutcome = "success"
	CallOutcomePartial           CallOutcome = "partial"
	CallOutcomeNoResponse        CallOutcome = "no-response"
	CallOutcomeCallbackRequested CallOutcome = "callback-requested"
	CallOutcomeWrongNumber       CallOutcome = "wrong-number"
	CallOutcomeDeclined          CallOutcome = "declined"
	CallOutcomeTechnicalFailure  CallOutcome = "technical-failure"
)

// Valid checks if the outcome is valid
func (o CallOutcome) Valid() bool {
	switch o {
	case CallOutcomeSuccess, CallOutcomePartial, CallOutcomeNoResponse,
		CallOutcomeCallbackRequested, CallOutcomeWrongNumber, CallOutcomeDeclined,
		CallOutcomeTechnicalFailure:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CallOutcome
func (o *CallOutcome) Scan(value any) error {
	if value == nil {
		*o = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*o = CallOutcome(v)
	case []byte:
		*o = CallOutcome(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CallOutcome", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for CallOutcome
func (o CallOutcome) Value() (driver.Value, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid CallOutcome: %s", o)
	}
	return string(o), nil
}

// CallResult represents the pass/fail flag attached to an outcome
type CallResult string

const (
	CallResultPass         CallResult = "pass"
	CallResultFail         CallResult = "fail"
	CallResultInconclusive CallResult = "inconclusive"
)

// Valid checks if the result is valid
func (r CallResult) Valid() bool {
	return r == CallResultPass || r == CallResultFail || r == CallResultInconclusive
}

// Scan implements the sql.Scanner interface for CallResult
func (r *CallResult) Scan(value any) error {
	if value == nil {
		*r = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*r = CallResult(v)
	case []byte:
		*r = CallResult(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CallResult", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for CallResult
func (r CallResult) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid CallResult: %s", r)
	}
	return string(r), nil
}

// Call represents one outbound or inbound phone call attempt
type Call struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:uk_calls_uuid" json:"uuid"`
	VapiCallID  *string       `gorm:"size:128;uniqueIndex:uk_calls_vapi_call_id" json:"vapi_call_id,omitempty"`
	Direction   CallDirection `gorm:"type:call_direction;not null;index:idx_calls_direction" json:"direction"`
	PhoneNumber string        `gorm:"size:32;not null;index:idx_calls_phone_number" json:"phone_number"`
	Status      CallStatus    `gorm:"type:call_status;not null;default:'queued';index:idx_calls_status" json:"status"`
	Outcome     *CallOutcome  `gorm:"type:call_outcome" json:"outcome,omitempty"`
	Result      *CallResult   `gorm:"type:call_result" json:"result,omitempty"`
	EndedReason *string       `gorm:"type:text" json:"ended_reason,omitempty"`
	Duration    *int          `json:"duration,omitempty"`
	Cost        *float64      `gorm:"type:numeric(10,4)" json:"cost,omitempty"`
	Error       *string       `gorm:"type:text" json:"error,omitempty"`

	ContactID  *uint `gorm:"index:idx_calls_contact_id" json:"contact_id,omitempty"`
	CampaignID *uint `gorm:"index:idx_calls_campaign_id" json:"campaign_id,omitempty"`

	CreatedAt  time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null;index:idx_calls_created_at" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`

	// Relations
	Contact  *Contact  `gorm:"foreignKey:ContactID;references:ID" json:"contact,omitempty"`
	Campaign *Campaign `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
}

// TableName returns the table name for the model
func (Call) TableName() string {
	return "calls"
}

// BeforeCreate is a GORM hook called before creating a new record
func (c *Call) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CallStatusQueued
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

// CallFilter represents filter criteria for calls
type CallFilter struct {
	ID            *uint          `json:"id,omitempty"`
	UUID          *uuid.UUID     `json:"uuid,omitempty"`
	VapiCallID    *string        `json:"vapi_call_id,omitempty"`
	Direction     *CallDirection `json:"direction,omitempty"`
	PhoneNumber   *string        `json:"phone_number,omitempty"`
	Status        *CallStatus    `json:"status,omitempty"`
	Outcome       *CallOutcome   `json:"outcome,omitempty"`
	ContactID     *uint          `json:"contact_id,omitempty"`
	CampaignID    *uint          `json:"campaign_id,omitempty"`
	CreatedAfter  *time.Time     `json:"created_after,omitempty"`
	CreatedBefore *time.Time     `json:"created_before,omitempty"`
}
