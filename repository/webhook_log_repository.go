package repository

import (
	"context"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"gorm.io/gorm"
)

// WebhookLogRepositoryImpl implements WebhookLogRepository
type WebhookLogRepositoryImpl struct {
	*BaseRepository[models.WebhookLogEntry, any]
}

func NewWebhookLogRepository(db *gorm.DB) WebhookLogRepository {
	return &WebhookLogRepositoryImpl{BaseRepository: NewBaseRepository[models.WebhookLogEntry, any](db)}
}

func (r *WebhookLogRepositoryImpl) Save(ctx context.Context, entry *models.WebhookLogEntry) error {
	return r.BaseRepository.Save(ctx, entry)
}

func (r *WebhookLogRepositoryImpl) MarkProcessed(ctx context.Context, entryID uint) error {
	db := r.getDB(ctx)
	now := utils.UTCNow()
	return db.Model(&models.WebhookLogEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]any{"processed": true, "processed_at": now}).Error
}

func (r *WebhookLogRepositoryImpl) MarkError(ctx context.Context, entryID uint, errText string) error {
	db := r.getDB(ctx)
	now := utils.UTCNow()
	return db.Model(&models.WebhookLogEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]any{"error": errText, "processed_at": now}).Error
}
