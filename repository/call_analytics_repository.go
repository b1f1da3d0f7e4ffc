package repository

import (
	"context"
	"errors"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CallAnalyticsRepositoryImpl implements CallAnalyticsRepository
type CallAnalyticsRepositoryImpl struct {
	*BaseRepository[models.CallAnalytics, any]
}

func NewCallAnalyticsRepository(db *gorm.DB) CallAnalyticsRepository {
	return &CallAnalyticsRepositoryImpl{BaseRepository: NewBaseRepository[models.CallAnalytics, any](db)}
}

func (r *CallAnalyticsRepositoryImpl) ByCallID(ctx context.Context, callID uint) (*models.CallAnalytics, error) {
	db := r.getDB(ctx)
	var a models.CallAnalytics
	if err := db.Where("call_id = ?", callID).Last(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// UpsertByCallID writes the analytics row keyed by call id in one statement.
// Re-running a call's classification overwrites the row, it never appends.
func (r *CallAnalyticsRepositoryImpl) UpsertByCallID(ctx context.Context, analytics *models.CallAnalytics) error {
	db := r.getDB(ctx)
	analytics.UpdatedAt = utils.UTCNow()
	if analytics.CreatedAt.IsZero() {
		analytics.CreatedAt = analytics.UpdatedAt
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "call_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"summary", "outcome", "result", "sentiment", "interest_level",
			"appointment_booked", "appointment_date", "appointment_time", "appointment_at",
			"follow_up_needed", "follow_up_topics",
			"confirmed_name", "confirmed_phone", "confirmed_email", "confirmed_fields",
			"raw_analysis", "sync_source", "updated_at",
		}),
	}).Create(analytics).Error
}
