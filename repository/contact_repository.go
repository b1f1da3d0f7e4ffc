package repository

import (
	"context"
	"errors"

	"github.com/simurgh-io/simurgh/models"
	"gorm.io/gorm"
)

// ContactRepositoryImpl implements ContactRepository
type ContactRepositoryImpl struct {
	*BaseRepository[models.Contact, any]
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{BaseRepository: NewBaseRepository[models.Contact, any](db)}
}

func (r *ContactRepositoryImpl) ByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Contact, error) {
	db := r.getDB(ctx)
	var contact models.Contact
	if err := db.Where("phone_number = ?", phoneNumber).Last(&contact).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}
