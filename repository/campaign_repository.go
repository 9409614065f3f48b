package repository

import (
	"context"
	"errors"

	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/utils"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements CampaignRepository
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db)}
}

func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, f models.CampaignFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.VendorID != nil {
		db = db.Where("vendor_id = ?", *f.VendorID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	return db
}

func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Campaign
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *CampaignRepositoryImpl) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ByUUID retrieves a campaign by UUID
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Campaign, error) {
	db := r.getDB(ctx)
	var row models.Campaign
	if err := db.Where("uuid = ?", uuidStr).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Update persists campaign changes
func (r *CampaignRepositoryImpl) Update(ctx context.Context, campaign *models.Campaign) error {
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

	campaign.UpdatedAt = utils.UTCNowPtr()
	err = db.Save(campaign).Error
	return err
}

// IncrementSent bumps the sent counter and recomputes the derived status
func (r *CampaignRepositoryImpl) IncrementSent(ctx context.Context, id uint) error {
	return r.incrementCounter(ctx, id, "sent_messages")
}

// IncrementFailed bumps the failed counter and recomputes the derived status
func (r *CampaignRepositoryImpl) IncrementFailed(ctx context.Context, id uint) error {
	return r.incrementCounter(ctx, id, "failed_messages")
}

// incrementCounter increments a counter column atomically, then flips the
// campaign status out of queued on the first attempt and to completed once
// sent plus failed covers every queued message.
func (r *CampaignRepositoryImpl) incrementCounter(ctx context.Context, id uint, column string) error {
	db := r.getDB(ctx)
	res := db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			column:       gorm.Expr(column + " + 1"),
			"updated_at": utils.UTCNow(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	if err := db.Model(&models.Campaign{}).
		Where("id = ? AND status = ?", id, models.CampaignStatusQueued).
		Update("status", models.CampaignStatusRunning).Error; err != nil {
		return err
	}
	return db.Model(&models.Campaign{}).
		Where("id = ? AND status = ? AND sent_messages + failed_messages >= total_messages", id, models.CampaignStatusRunning).
		Update("status", models.CampaignStatusCompleted).Error
}
