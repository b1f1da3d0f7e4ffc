package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// CampaignContactStatus represents one contact's participation state in a campaign
type CampaignContactStatus string

const (
	CampaignContactStatusPending    CampaignContactStatus = "pending"
	CampaignContactStatusInProgress CampaignContactStatus = "in-progress"
	CampaignContactStatusCompleted  CampaignContactStatus = "completed"
	CampaignContactStatusFailed     CampaignContactStatus = "failed"
)

// Valid checks if the status is valid
func (s CampaignContactStatus) Valid() bool {
	switch s {
	case CampaignContactStatusPending, CampaignContactStatusInProgress,
		CampaignContactStatusCompleted, CampaignContactStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignContactStatus
func (s *CampaignContactStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = CampaignContactStatus(v)
	case []byte:
		*s = CampaignContactStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignContactStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for CampaignContactStatus
func (s CampaignContactStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignContactStatus: %s", s)
	}
	return string(s), nil
}

// CampaignContact tracks one contact's participation in one campaign.
// The dispatcher mutates it on dispatch; the lifecycle state machine mutates it
// when the linked call reaches a terminal status.
type CampaignContact struct {
	ID            uint                  `gorm:"primaryKey" json:"id"`
	CampaignID    uint                  `gorm:"not null;index:idx_campaign_contacts_campaign_id;uniqueIndex:uk_campaign_contacts_pair" json:"campaign_id"`
	ContactID     uint                  `gorm:"not null;index:idx_campaign_contacts_contact_id;uniqueIndex:uk_campaign_contacts_pair" json:"contact_id"`
	Status        CampaignContactStatus `gorm:"type:campaign_contact_status;not null;default:'pending';index:idx_campaign_contacts_status" json:"status"`
	Attempts      int                   `gorm:"not null;default:0" json:"attempts"`
	LastAttemptAt *time.Time            `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time             `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt     time.Time             `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`

	// Relations
	Campaign *Campaign `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
	Contact  *Contact  `gorm:"foreignKey:ContactID;references:ID" json:"contact,omitempty"`
}

// TableName returns the table name for the model
func (CampaignContact) TableName() string {
	return "campaign_contacts"
}
