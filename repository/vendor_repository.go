package repository

import (
	"context"

	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VendorRepositoryImpl implements VendorRepository
type VendorRepositoryImpl struct {
	*BaseRepository[models.Vendor, models.VendorFilter]
}

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(db *gorm.DB) VendorRepository {
	return &VendorRepositoryImpl{BaseRepository: NewBaseRepository[models.Vendor, models.VendorFilter](db)}
}

func (r *VendorRepositoryImpl) applyFilter(db *gorm.DB, f models.VendorFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.PhoneNumberID != nil {
		db = db.Where("phone_number_id = ?", *f.PhoneNumberID)
	}
	if f.BusinessAccountID != nil {
		db = db.Where("business_account_id = ?", *f.BusinessAccountID)
	}
	if f.ConnectionStatus != nil {
		db = db.Where("connection_status = ?", *f.ConnectionStatus)
	}
	return db
}

func (r *VendorRepositoryImpl) ByFilter(ctx context.Context, filter models.VendorFilter, orderBy string, limit, offset int) ([]*models.Vendor, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Vendor{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Vendor
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *VendorRepositoryImpl) Count(ctx context.Context, filter models.VendorFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Vendor{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *VendorRepositoryImpl) Exists(ctx context.Context, filter models.VendorFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ByUUID retrieves a vendor by UUID
func (r *VendorRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Vendor, error) {
	parsed, err := uuid.Parse(uuidStr)
	if err != nil {
		return nil, err
	}
	rows, err := r.ByFilter(ctx, models.VendorFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ByPhoneNumberID retrieves a vendor by its gateway phone-number identifier
func (r *VendorRepositoryImpl) ByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Vendor, error) {
	rows, err := r.ByFilter(ctx, models.VendorFilter{PhoneNumberID: &phoneNumberID}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ByBusinessAccountID retrieves a vendor by its gateway business-account identifier
func (r *VendorRepositoryImpl) ByBusinessAccountID(ctx context.Context, businessAccountID string) (*models.Vendor, error) {
	rows, err := r.ByFilter(ctx, models.VendorFilter{BusinessAccountID: &businessAccountID}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Update persists vendor changes
func (r *VendorRepositoryImpl) Update(ctx context.Context, vendor *models.Vendor) error {
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

	vendor.UpdatedAt = utils.UTCNowPtr()
	err = db.Save(vendor).Error
	return err
}

// UpdateConnectionStatus updates only the connection status of a vendor
func (r *VendorRepositoryImpl) UpdateConnectionStatus(ctx context.Context, id uint, status models.VendorConnectionStatus) error {
	db := r.getDB(ctx)
	return db.Model(&models.Vendor{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"connection_status": status,
			"updated_at":        utils.UTCNow(),
		}).Error
}
