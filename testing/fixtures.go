package testing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"gorm.io/gorm"
)

// CreateTestContact inserts a contact with a unique phone number
func CreateTestContact(db *gorm.DB, phoneNumber string) (*models.Contact, error) {
	if phoneNumber == "" {
		phoneNumber = fmt.Sprintf("+1555%07d", time.Now().UnixNano()%10000000)
	}
	contact := &models.Contact{
		UUID:        uuid.New(),
		FirstName:   "Test",
		LastName:    "Contact",
		PhoneNumber: phoneNumber,
		CreatedAt:   utils.UTCNow(),
		UpdatedAt:   utils.UTCNow(),
	}
	if err := db.Create(contact).Error; err != nil {
		return nil, fmt.Errorf("failed to create test contact: %w", err)
	}
	return contact, nil
}

// CreateTestCampaign inserts an active campaign ready for dispatch
func CreateTestCampaign(db *gorm.DB, totalContacts int) (*models.Campaign, error) {
	campaign := &models.Campaign{
		UUID:          uuid.New(),
		Name:          fmt.Sprintf("test-campaign-%d", time.Now().UnixNano()),
		Status:        models.CampaignStatusActive,
		AssistantID:   "assistant-test",
		PhoneNumber:   "+15550000001",
		MaxConcurrent: 10,
		TotalContacts: totalContacts,
		CreatedAt:     utils.UTCNow(),
		UpdatedAt:     utils.UTCNow(),
	}
	if err := db.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return campaign, nil
}

// AttachContactToCampaign links a contact to a campaign in pending state
func AttachContactToCampaign(db *gorm.DB, campaign *models.Campaign, contact *models.Contact) (*models.CampaignContact, error) {
	cc := &models.CampaignContact{
		CampaignID: campaign.ID,
		ContactID:  contact.ID,
		Status:     models.CampaignContactStatusPending,
		CreatedAt:  utils.UTCNow(),
		UpdatedAt:  utils.UTCNow(),
	}
	if err := db.Create(cc).Error; err != nil {
		return nil, fmt.Errorf("failed to attach contact to campaign: %w", err)
	}
	return cc, nil
}

// CreateTestCall inserts a call in the given status, linked to a campaign contact
func CreateTestCall(db *gorm.DB, campaign *models.Campaign, contact *models.Contact, status models.CallStatus) (*models.Call, error) {
	call := &models.Call{
		UUID:        uuid.New(),
		Direction:   models.CallDirectionOutbound,
		PhoneNumber: contact.PhoneNumber,
		Status:      status,
		CreatedAt:   utils.UTCNow(),
		UpdatedAt:   utils.UTCNow(),
	}
	if campaign != nil {
		call.CampaignID = &campaign.ID
	}
	if contact != nil {
		call.ContactID = &contact.ID
	}
	if status != models.CallStatusQueued {
		vapiID := "vapi-" + call.UUID.String()
		call.VapiCallID = &vapiID
	}
	if status.Rank() >= models.CallStatusRinging.Rank() {
		now := utils.UTCNow()
		call.StartedAt = &now
	}
	if status.IsTerminal() {
		now := utils.UTCNow()
		call.EndedAt = &now
	}
	if err := db.Create(call).Error; err != nil {
		return nil, fmt.Errorf("failed to create test call: %w", err)
	}
	return call, nil
}

// CreateStuckCall inserts a non-terminal call whose updated_at is older than the cutoff
func CreateStuckCall(db *gorm.DB, campaign *models.Campaign, contact *models.Contact, age time.Duration) (*models.Call, error) {
	call, err := CreateTestCall(db, campaign, contact, models.CallStatusScheduled)
	if err != nil {
		return nil, err
	}
	stale := utils.UTCNow().Add(-age)
	if err := db.Model(&models.Call{}).Where("id = ?", call.ID).
		Updates(map[string]any{"created_at": stale, "updated_at": stale}).Error; err != nil {
		return nil, fmt.Errorf("failed to age test call: %w", err)
	}
	call.CreatedAt = stale
	call.UpdatedAt = stale
	return call, nil
}
