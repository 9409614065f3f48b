package repository

import (
	"context"
	"errors"

	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/utils"
	"gorm.io/gorm"
)

// WorkflowRepositoryImpl implements WorkflowRepository
type WorkflowRepositoryImpl struct {
	*BaseRepository[models.Workflow, models.WorkflowFilter]
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &WorkflowRepositoryImpl{BaseRepository: NewBaseRepository[models.Workflow, models.WorkflowFilter](db)}
}

func (r *WorkflowRepositoryImpl) applyFilter(db *gorm.DB, f models.WorkflowFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.VendorID != nil {
		db = db.Where("vendor_id = ?", *f.VendorID)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	return db
}

func (r *WorkflowRepositoryImpl) ByFilter(ctx context.Context, filter models.WorkflowFilter, orderBy string, limit, offset int) ([]*models.Workflow, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Workflow{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Workflow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *WorkflowRepositoryImpl) Count(ctx context.Context, filter models.WorkflowFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Workflow{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *WorkflowRepositoryImpl) Exists(ctx context.Context, filter models.WorkflowFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ByUUID retrieves a workflow by UUID
func (r *WorkflowRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Workflow, error) {
	db := r.getDB(ctx)
	var row models.Workflow
	if err := db.Where("uuid = ?", uuidStr).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListActiveByVendor returns the vendor's active workflows, oldest first so
// trigger matching visits them in creation order.
func (r *WorkflowRepositoryImpl) ListActiveByVendor(ctx context.Context, vendorID uint) ([]*models.Workflow, error) {
	db := r.getDB(ctx)
	var rows []*models.Workflow
	err := db.Where("vendor_id = ? AND is_active = ?", vendorID, true).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Update persists workflow changes
func (r *WorkflowRepositoryImpl) Update(ctx context.Context, workflow *models.Workflow) error {
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

	workflow.UpdatedAt = utils.UTCNowPtr()
	err = db.Save(workflow).Error
	return err
}
