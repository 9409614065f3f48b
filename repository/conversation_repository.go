package repository

import (
	"context"
	"time"

	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationRepositoryImpl implements ConversationRepository
type ConversationRepositoryImpl struct {
	*BaseRepository[models.Conversation, models.ConversationFilter]
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &ConversationRepositoryImpl{BaseRepository: NewBaseRepository[models.Conversation, models.ConversationFilter](db)}
}

func (r *ConversationRepositoryImpl) applyFilter(db *gorm.DB, f models.ConversationFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.VendorID != nil {
		db = db.Where("vendor_id = ?", *f.VendorID)
	}
	if f.LeadID != nil {
		db = db.Where("lead_id = ?", *f.LeadID)
	}
	return db
}

func (r *ConversationRepositoryImpl) ByFilter(ctx context.Context, filter models.ConversationFilter, orderBy string, limit, offset int) ([]*models.Conversation, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Conversation{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Conversation
	if err := query.Preload("Lead").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ConversationRepositoryImpl) Count(ctx context.Context, filter models.ConversationFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Conversation{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ConversationRepositoryImpl) Exists(ctx context.Context, filter models.ConversationFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ByUUID retrieves a conversation by UUID
func (r *ConversationRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Conversation, error) {
	parsed, err := uuid.Parse(uuidStr)
	if err != nil {
		return nil, err
	}
	rows, err := r.ByFilter(ctx, models.ConversationFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ByVendorAndLead retrieves the single conversation for a (vendor, lead) pair
func (r *ConversationRepositoryImpl) ByVendorAndLead(ctx context.Context, vendorID, leadID uint) (*models.Conversation, error) {
	rows, err := r.ByFilter(ctx, models.ConversationFilter{VendorID: &vendorID, LeadID: &leadID}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Update persists conversation changes
func (r *ConversationRepositoryImpl) Update(ctx context.Context, conversation *models.Conversation) error {
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

	conversation.UpdatedAt = utils.UTCNowPtr()
	err = db.Save(conversation).Error
	return err
}

// TouchLastMessageAt bumps the conversation's last-message marker
func (r *ConversationRepositoryImpl) TouchLastMessageAt(ctx context.Context, id uint, at time.Time) error {
	db := r.getDB(ctx)
	return db.Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_message_at": at,
			"updated_at":      utils.UTCNow(),
		}).Error
}
