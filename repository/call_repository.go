package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"gorm.io/gorm"
)

// CallRepositoryImpl implements CallRepository
type CallRepositoryImpl struct {
	*BaseRepository[models.Call, models.CallFilter]
}

func NewCallRepository(db *gorm.DB) CallRepository {
	return &CallRepositoryImpl{BaseRepository: NewBaseRepository[models.Call, models.CallFilter](db)}
}

func (r *CallRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Call, error) {
	db := r.getDB(ctx)
	var call models.Call
	if err := db.Where("uuid = ?", id).Last(&call).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &call, nil
}

func (r *CallRepositoryImpl) ByVapiCallID(ctx context.Context, vapiCallID string) (*models.Call, error) {
	db := r.getDB(ctx)
	var call models.Call
	if err := db.Where("vapi_call_id = ?", vapiCallID).Last(&call).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &call, nil
}

func (r *CallRepositoryImpl) Update(ctx context.Context, call *models.Call) error {
	db := r.getDB(ctx)
	call.UpdatedAt = utils.UTCNow()
	return db.Save(call).Error
}

// UpdateStatusGuarded performs a single-statement conditional status write. The
// guard on the current status makes concurrent webhook/poller writes safe
// without row locks: the loser of a race simply updates zero rows.
func (r *CallRepositoryImpl) UpdateStatusGuarded(ctx context.Context, callID uint, expected, target models.CallStatus, set map[string]any) (bool, error) {
	db := r.getDB(ctx)

	values := map[string]any{
		"status":     target,
		"updated_at": utils.UTCNow(),
	}
	for k, v := range set {
		values[k] = v
	}

	res := db.Model(&models.Call{}).
		Where("id = ? AND status = ?", callID, expected).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListStuck returns non-terminal calls created before the cutoff, oldest first
func (r *CallRepositoryImpl) ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*models.Call, error) {
	if limit <= 0 {
		limit = 100
	}
	db := r.getDB(ctx)
	var calls []*models.Call
	nonTerminal := []models.CallStatus{
		models.CallStatusQueued,
		models.CallStatusScheduled,
		models.CallStatusRinging,
		models.CallStatusInProgress,
	}
	if err := db.Where("status IN ? AND created_at < ?", nonTerminal, cutoff).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&calls).Error; err != nil {
		return nil, err
	}
	return calls, nil
}

func (r *CallRepositoryImpl) LatestOutboundToNumber(ctx context.Context, phoneNumber string, since time.Time) (*models.Call, error) {
	db := r.getDB(ctx)
	var call models.Call
	if err := db.Where("direction = ? AND phone_number = ? AND created_at >= ?",
		models.CallDirectionOutbound, phoneNumber, since).
		Order("created_at DESC, id DESC").
		First(&call).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &call, nil
}

func (r *CallRepositoryImpl) ByFilter(ctx context.Context, filter models.CallFilter, orderBy string, limit, offset int) ([]*models.Call, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var calls []*models.Call
	if err := query.Find(&calls).Error; err != nil {
		return nil, err
	}
	return calls, nil
}

func (r *CallRepositoryImpl) applyFilter(db *gorm.DB, filter models.CallFilter) *gorm.DB {
	query := db.Model(&models.Call{})
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.VapiCallID != nil {
		query = query.Where("vapi_call_id = ?", *filter.VapiCallID)
	}
	if filter.Direction != nil {
		query = query.Where("direction = ?", *filter.Direction)
	}
	if filter.PhoneNumber != nil {
		query = query.Where("phone_number = ?", *filter.PhoneNumber)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Outcome != nil {
		query = query.Where("outcome = ?", *filter.Outcome)
	}
	if filter.ContactID != nil {
		query = query.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.CampaignID != nil {
		query = query.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return query
}
