package repository

import (
	"context"

	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LeadRepositoryImpl implements LeadRepository
type LeadRepositoryImpl struct {
	*BaseRepository[models.Lead, models.LeadFilter]
}

// NewLeadRepository creates a new lead repository
func NewLeadRepository(db *gorm.DB) LeadRepository {
	return &LeadRepositoryImpl{BaseRepository: NewBaseRepository[models.Lead, models.LeadFilter](db)}
}

func (r *LeadRepositoryImpl) applyFilter(db *gorm.DB, f models.LeadFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.VendorID != nil {
		db = db.Where("vendor_id = ?", *f.VendorID)
	}
	if f.Phone != nil {
		db = db.Where("phone = ?", *f.Phone)
	}
	return db
}

func (r *LeadRepositoryImpl) ByFilter(ctx context.Context, filter models.LeadFilter, orderBy string, limit, offset int) ([]*models.Lead, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Lead{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Lead
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *LeadRepositoryImpl) Count(ctx context.Context, filter models.LeadFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Lead{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *LeadRepositoryImpl) Exists(ctx context.Context, filter models.LeadFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ByVendorAndPhone retrieves the lead for a (vendor, phone) pair
func (r *LeadRepositoryImpl) ByVendorAndPhone(ctx context.Context, vendorID uint, phone string) (*models.Lead, error) {
	rows, err := r.ByFilter(ctx, models.LeadFilter{VendorID: &vendorID, Phone: &phone}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Upsert creates the lead or refreshes its name on (vendor_id, phone) conflict
func (r *LeadRepositoryImpl) Upsert(ctx context.Context, lead *models.Lead) error {
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

	_ = lead.BeforeCreate()
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vendor_id"}, {Name: "phone"}},
		DoUpdates: clause.Assignments(map[string]any{"name": lead.Name, "updated_at": utils.UTCNow()}),
	}).Create(lead).Error
	if err != nil {
		return err
	}

	// Re-read so the caller sees the surviving row's id on conflict
	var existing models.Lead
	if err = db.Where("vendor_id = ? AND phone = ?", lead.VendorID, lead.Phone).Last(&existing).Error; err != nil {
		return err
	}
	*lead = existing
	return nil
}
