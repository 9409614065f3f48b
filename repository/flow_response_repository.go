package repository

import (
	"context"
	"errors"

	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/utils"
	"gorm.io/gorm"
)

// FlowResponseRepositoryImpl implements FlowResponseRepository
type FlowResponseRepositoryImpl struct {
	*BaseRepository[models.FlowResponse, models.FlowResponseFilter]
}

// NewFlowResponseRepository creates a new flow response repository
func NewFlowResponseRepository(db *gorm.DB) FlowResponseRepository {
	return &FlowResponseRepositoryImpl{BaseRepository: NewBaseRepository[models.FlowResponse, models.FlowResponseFilter](db)}
}

func (r *FlowResponseRepositoryImpl) applyFilter(db *gorm.DB, f models.FlowResponseFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.FlowID != nil {
		db = db.Where("flow_id = ?", *f.FlowID)
	}
	if f.FlowToken != nil {
		db = db.Where("flow_token = ?", *f.FlowToken)
	}
	if f.LeadID != nil {
		db = db.Where("lead_id = ?", *f.LeadID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	return db
}

func (r *FlowResponseRepositoryImpl) ByFilter(ctx context.Context, filter models.FlowResponseFilter, orderBy string, limit, offset int) ([]*models.FlowResponse, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.FlowResponse{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.FlowResponse
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *FlowResponseRepositoryImpl) Count(ctx context.Context, filter models.FlowResponseFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.FlowResponse{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *FlowResponseRepositoryImpl) Exists(ctx context.Context, filter models.FlowResponseFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ByFlowToken retrieves a submission by its session token
func (r *FlowResponseRepositoryImpl) ByFlowToken(ctx context.Context, token string) (*models.FlowResponse, error) {
	db := r.getDB(ctx)
	var row models.FlowResponse
	if err := db.Where("flow_token = ?", token).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Update persists submission changes
func (r *FlowResponseRepositoryImpl) Update(ctx context.Context, response *models.FlowResponse) error {
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

	response.UpdatedAt = utils.UTCNowPtr()
	err = db.Save(response).Error
	return err
}
