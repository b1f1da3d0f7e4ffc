// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/simurgh-io/simurgh/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
}

// CallRepository defines operations for call records
type CallRepository interface {
	Repository[models.Call, models.CallFilter]
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Call, error)
	ByVapiCallID(ctx context.Context, vapiCallID string) (*models.Call, error)
	Update(ctx context.Context, call *models.Call) error
	// UpdateStatusGuarded applies a single-row status/timestamp write that only
	// succeeds while the row still holds the expected status. Returns true when
	// the row was updated.
	UpdateStatusGuarded(ctx context.Context, callID uint, expected, target models.CallStatus, set map[string]any) (bool, error)
	// ListStuck returns non-terminal calls created before the cutoff
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*models.Call, error)
	// LatestOutboundToNumber returns the most recent outbound call to the given
	// number created after 'since', or nil when none exists
	LatestOutboundToNumber(ctx context.Context, phoneNumber string, since time.Time) (*models.Call, error)
}

// TranscriptRepository defines operations for call transcripts
type TranscriptRepository interface {
	ByCallID(ctx context.Context, callID uint) (*models.Transcript, error)
	UpsertByCallID(ctx context.Context, transcript *models.Transcript) error
}

// CallAnalyticsRepository defines operations for call analytics
type CallAnalyticsRepository interface {
	ByCallID(ctx context.Context, callID uint) (*models.CallAnalytics, error)
	UpsertByCallID(ctx context.Context, analytics *models.CallAnalytics) error
}

// WebhookLogRepository defines operations for the inbound event audit log
type WebhookLogRepository interface {
	Save(ctx context.Context, entry *models.WebhookLogEntry) error
	MarkProcessed(ctx context.Context, entryID uint) error
	MarkError(ctx context.Context, entryID uint, errText string) error
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Campaign, error)
	Update(ctx context.Context, campaign *models.Campaign) error
	// IncrementCounters bumps the completed/failed counters in a single statement
	IncrementCounters(ctx context.Context, campaignID uint, completedDelta, failedDelta int) error
	// CompleteIfFinished marks the campaign completed when no pending or
	// in-progress contacts remain. Returns true when the status changed.
	CompleteIfFinished(ctx context.Context, campaignID uint) (bool, error)
}

// CampaignContactRepository defines operations for campaign contact participation
type CampaignContactRepository interface {
	ByPair(ctx context.Context, campaignID, contactID uint) (*models.CampaignContact, error)
	ListPending(ctx context.Context, campaignID uint, limit int) ([]*models.CampaignContact, error)
	CountOpen(ctx context.Context, campaignID uint) (int64, error)
	Save(ctx context.Context, cc *models.CampaignContact) error
	Update(ctx context.Context, cc *models.CampaignContact) error
	// MarkStatus sets the participation status and records the attempt
	MarkStatus(ctx context.Context, campaignID, contactID uint, status models.CampaignContactStatus, attemptedAt *time.Time) error
}

// ContactRepository defines operations for contacts
type ContactRepository interface {
	ByID(ctx context.Context, id uint) (*models.Contact, error)
	ByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Contact, error)
	Save(ctx context.Context, contact *models.Contact) error
}
