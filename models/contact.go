package models

import (
	"time"

	"github.com/google/uuid"
)

// Contact represents a person reachable by phone. Contact CRUD lives outside
// this service; the call engine only reads contacts and links calls to them.
type Contact struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_contacts_uuid" json:"uuid"`
	FirstName   string    `gorm:"size:255" json:"first_name"`
	LastName    string    `gorm:"size:255" json:"last_name"`
	PhoneNumber string    `gorm:"size:32;not null;index:idx_contacts_phone_number" json:"phone_number"`
	Email       *string   `gorm:"size:255" json:"email,omitempty"`
	CreatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

// TableName returns the table name for the model
func (Contact) TableName() string {
	return "contacts"
}

// FullName returns the contact's display name
func (c *Contact) FullName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
