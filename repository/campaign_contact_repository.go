package repository

import (
	"context"
	"errors"
	"time"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"gorm.io/gorm"
)

// CampaignContactRepositoryImpl implements CampaignContactRepository
type CampaignContactRepositoryImpl struct {
	*BaseRepository[models.CampaignContact, any]
}

func NewCampaignContactRepository(db *gorm.DB) CampaignContactRepository {
	return &CampaignContactRepositoryImpl{BaseRepository: NewBaseRepository[models.CampaignContact, any](db)}
}

func (r *CampaignContactRepositoryImpl) ByPair(ctx context.Context, campaignID, contactID uint) (*models.CampaignContact, error) {
	db := r.getDB(ctx)
	var cc models.CampaignContact
	if err := db.Where("campaign_id = ? AND contact_id = ?", campaignID, contactID).Last(&cc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cc, nil
}

func (r *CampaignContactRepositoryImpl) ListPending(ctx context.Context, campaignID uint, limit int) ([]*models.CampaignContact, error) {
	db := r.getDB(ctx)
	query := db.Preload("Contact").
		Where("campaign_id = ? AND status = ?", campaignID, models.CampaignContactStatusPending).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []*models.CampaignContact
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountOpen counts contacts still pending or in progress for the campaign
func (r *CampaignContactRepositoryImpl) CountOpen(ctx context.Context, campaignID uint) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := db.Model(&models.CampaignContact{}).
		Where("campaign_id = ? AND status IN ?", campaignID, []models.CampaignContactStatus{
			models.CampaignContactStatusPending,
			models.CampaignContactStatusInProgress,
		}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *CampaignContactRepositoryImpl) Update(ctx context.Context, cc *models.CampaignContact) error {
	db := r.getDB(ctx)
	cc.UpdatedAt = utils.UTCNow()
	return db.Save(cc).Error
}

func (r *CampaignContactRepositoryImpl) MarkStatus(ctx context.Context, campaignID, contactID uint, status models.CampaignContactStatus, attemptedAt *time.Time) error {
	db := r.getDB(ctx)
	values := map[string]any{
		"status":     status,
		"updated_at": utils.UTCNow(),
	}
	if attemptedAt != nil {
		values["last_attempt_at"] = *attemptedAt
		values["attempts"] = gorm.Expr("attempts + 1")
	}
	return db.Model(&models.CampaignContact{}).
		Where("campaign_id = ? AND contact_id = ?", campaignID, contactID).
		Updates(values).Error
}
