package repository

import (
	"context"
	"errors"

	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/utils"
	"gorm.io/gorm"
)

// FlowRepositoryImpl implements FlowRepository
type FlowRepositoryImpl struct {
	*BaseRepository[models.Flow, models.FlowFilter]
}

// NewFlowRepository creates a new flow repository
func NewFlowRepository(db *gorm.DB) FlowRepository {
	return &FlowRepositoryImpl{BaseRepository: NewBaseRepository[models.Flow, models.FlowFilter](db)}
}

func (r *FlowRepositoryImpl) applyFilter(db *gorm.DB, f models.FlowFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.VendorID != nil {
		db = db.Where("vendor_id = ?", *f.VendorID)
	}
	if f.RemoteFlowID != nil {
		db = db.Where("remote_flow_id = ?", *f.RemoteFlowID)
	}
	return db
}

func (r *FlowRepositoryImpl) ByFilter(ctx context.Context, filter models.FlowFilter, orderBy string, limit, offset int) ([]*models.Flow, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Flow{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Flow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *FlowRepositoryImpl) Count(ctx context.Context, filter models.FlowFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Flow{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *FlowRepositoryImpl) Exists(ctx context.Context, filter models.FlowFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ByRemoteFlowID retrieves a flow by its gateway-assigned identifier
func (r *FlowRepositoryImpl) ByRemoteFlowID(ctx context.Context, remoteFlowID string) (*models.Flow, error) {
	db := r.getDB(ctx)
	var row models.Flow
	if err := db.Where("remote_flow_id = ?", remoteFlowID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ByVendor returns all flows registered for a vendor
func (r *FlowRepositoryImpl) ByVendor(ctx context.Context, vendorID uint) ([]*models.Flow, error) {
	db := r.getDB(ctx)
	var rows []*models.Flow
	if err := db.Where("vendor_id = ?", vendorID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Update persists flow changes
func (r *FlowRepositoryImpl) Update(ctx context.Context, flow *models.Flow) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	flow.UpdatedAt = utils.UTCNowPtr()
	err = db.Save(flow).Error
	return err
}
