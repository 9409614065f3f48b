package repository

import (
	"context"
	"errors"

	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/utils"
	"gorm.io/gorm"
)

// ActivityLogRepositoryImpl implements ActivityLogRepository
type ActivityLogRepositoryImpl struct {
	*BaseRepository[models.ActivityLog, models.ActivityLogFilter]
}

// NewActivityLogRepository creates a new activity log repository
func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &ActivityLogRepositoryImpl{BaseRepository: NewBaseRepository[models.ActivityLog, models.ActivityLogFilter](db)}
}

func (r *ActivityLogRepositoryImpl) applyFilter(db *gorm.DB, f models.ActivityLogFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.VendorID != nil {
		db = db.Where("vendor_id = ?", *f.VendorID)
	}
	if f.ExternalMessageID != nil {
		db = db.Where("external_message_id = ?", *f.ExternalMessageID)
	}
	if f.Action != nil {
		db = db.Where("action = ?", *f.Action)
	}
	if f.Success != nil {
		db = db.Where("success = ?", *f.Success)
	}
	return db
}

func (r *ActivityLogRepositoryImpl) ByFilter(ctx context.Context, filter models.ActivityLogFilter, orderBy string, limit, offset int) ([]*models.ActivityLog, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ActivityLog{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ActivityLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ActivityLogRepositoryImpl) Count(ctx context.Context, filter models.ActivityLogFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ActivityLog{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ActivityLogRepositoryImpl) Exists(ctx context.Context, filter models.ActivityLogFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ByExternalMessageID retrieves the latest log entry correlated to the
// gateway message id
func (r *ActivityLogRepositoryImpl) ByExternalMessageID(ctx context.Context, externalMessageID string) (*models.ActivityLog, error) {
	db := r.getDB(ctx)
	var row models.ActivityLog
	err := db.Where("external_message_id = ?", externalMessageID).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// UpsertByExternalMessageID updates the existing entry for the gateway
// message id or creates one when none exists. Status reports for the same
// message collapse into a single audit row.
func (r *ActivityLogRepositoryImpl) UpsertByExternalMessageID(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ExternalMessageID == nil || *entry.ExternalMessageID == "" {
		return r.Save(ctx, entry)
	}

	existing, err := r.ByExternalMessageID(ctx, *entry.ExternalMessageID)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.Save(ctx, entry)
	}

	db := r.getDB(ctx)
	updates := map[string]any{
		"action":      entry.Action,
		"description": entry.Description,
		"updated_at":  utils.UTCNow(),
	}
	if entry.Success != nil {
		updates["success"] = *entry.Success
	}
	if entry.Metadata != nil {
		updates["metadata"] = entry.Metadata
	}
	err = db.Model(&models.ActivityLog{}).Where("id = ?", existing.ID).Updates(updates).Error
	if err == nil {
		entry.ID = existing.ID
	}
	return err
}

// ListByVendor returns a vendor's audit entries, newest first
func (r *ActivityLogRepositoryImpl) ListByVendor(ctx context.Context, vendorID uint, limit, offset int) ([]*models.ActivityLog, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.ActivityLog{}).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ActivityLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
