package repository

import (
	"context"
	"errors"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TranscriptRepositoryImpl implements TranscriptRepository
type TranscriptRepositoryImpl struct {
	*BaseRepository[models.Transcript, any]
}

func NewTranscriptRepository(db *gorm.DB) TranscriptRepository {
	return &TranscriptRepositoryImpl{BaseRepository: NewBaseRepository[models.Transcript, any](db)}
}

func (r *TranscriptRepositoryImpl) ByCallID(ctx context.Context, callID uint) (*models.Transcript, error) {
	db := r.getDB(ctx)
	var t models.Transcript
	if err := db.Where("call_id = ?", callID).Last(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// UpsertByCallID writes the transcript keyed by call id in one statement
func (r *TranscriptRepositoryImpl) UpsertByCallID(ctx context.Context, transcript *models.Transcript) error {
	db := r.getDB(ctx)
	transcript.UpdatedAt = utils.UTCNow()
	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = transcript.UpdatedAt
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "call_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"full_text", "turns", "recording_url", "recording_duration", "updated_at",
		}),
	}).Create(transcript).Error
}
