package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements CampaignRepository
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db)}
}

func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	db := r.getDB(ctx)
	var campaign models.Campaign
	if err := db.Where("uuid = ?", id).Last(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &campaign, nil
}

func (r *CampaignRepositoryImpl) Update(ctx context.Context, campaign *models.Campaign) error {
	db := r.getDB(ctx)
	campaign.UpdatedAt = utils.UTCNow()
	return db.Save(campaign).Error
}

// IncrementCounters bumps progress counters in one statement so concurrent
// terminal transitions for different calls never lose an increment
func (r *CampaignRepositoryImpl) IncrementCounters(ctx context.Context, campaignID uint, completedDelta, failedDelta int) error {
	db := r.getDB(ctx)
	return db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]any{
			"completed_calls": gorm.Expr("completed_calls + ?", completedDelta),
			"failed_calls":    gorm.Expr("failed_calls + ?", failedDelta),
			"updated_at":      utils.UTCNow(),
		}).Error
}

// CompleteIfFinished moves an active campaign to completed when no open
// contacts remain. The subquery guard keeps the statement idempotent.
func (r *CampaignRepositoryImpl) CompleteIfFinished(ctx context.Context, campaignID uint) (bool, error) {
	db := r.getDB(ctx)
	now := utils.UTCNow()
	res := db.Model(&models.Campaign{}).
		Where("id = ? AND status = ?", campaignID, models.CampaignStatusActive).
		Where("NOT EXISTS (SELECT 1 FROM campaign_contacts WHERE campaign_contacts.campaign_id = ? AND campaign_contacts.status IN ?)",
			campaignID, []models.CampaignContactStatus{
				models.CampaignContactStatusPending,
				models.CampaignContactStatusInProgress,
			}).
		Updates(map[string]any{
			"status":     models.CampaignStatusCompleted,
			"ended_at":   now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Campaign{})
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var campaigns []*models.Campaign
	if err := query.Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}
