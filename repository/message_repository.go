package repository

import (
	"context"
	"errors"
	"time"

	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/utils"
	"gorm.io/gorm"
)

// MessageRepositoryImpl implements MessageRepository
type MessageRepositoryImpl struct {
	*BaseRepository[models.Message, models.MessageFilter]
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &MessageRepositoryImpl{BaseRepository: NewBaseRepository[models.Message, models.MessageFilter](db)}
}

func (r *MessageRepositoryImpl) applyFilter(db *gorm.DB, f models.MessageFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.VendorID != nil {
		db = db.Where("vendor_id = ?", *f.VendorID)
	}
	if f.ConversationID != nil {
		db = db.Where("conversation_id = ?", *f.ConversationID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.ExternalID != nil {
		db = db.Where("external_id = ?", *f.ExternalID)
	}
	if f.Direction != nil {
		db = db.Where("direction = ?", *f.Direction)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	return db
}

func (r *MessageRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Message{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *MessageRepositoryImpl) Count(ctx context.Context, filter models.MessageFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Message{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *MessageRepositoryImpl) Exists(ctx context.Context, filter models.MessageFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ByExternalID retrieves a message by its gateway-issued identifier
func (r *MessageRepositoryImpl) ByExternalID(ctx context.Context, externalID string) (*models.Message, error) {
	db := r.getDB(ctx)
	var row models.Message
	if err := db.Where("external_id = ?", externalID).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Update persists message changes
func (r *MessageRepositoryImpl) Update(ctx context.Context, message *models.Message) error {
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

	message.UpdatedAt = utils.UTCNowPtr()
	err = db.Save(message).Error
	return err
}

// NextSendable returns the oldest outbound image/template message eligible
// for a send attempt: still queued with retries left, or processing under
// a lease that has expired (its worker died mid-send).
func (r *MessageRepositoryImpl) NextSendable(ctx context.Context, now time.Time, maxRetries int) (*models.Message, error) {
	db := r.getDB(ctx)
	var row models.Message
	err := db.Preload("Media").Preload("Conversation.Lead").
		Where("direction = ?", models.MessageDirectionOutbound).
		Where("type IN ?", []models.MessageType{models.MessageTypeImage, models.MessageTypeTemplate}).
		Where("retry_count <= ?", maxRetries).
		Where("status = ? OR (status = ? AND claimed_until IS NOT NULL AND claimed_until < ?)",
			models.MessageStatusQueued, models.MessageStatusProcessing, now).
		Order("created_at ASC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Claim atomically transitions the message to processing with a lease.
// The conditional update is the optimistic lock against concurrent worker
// instances: zero rows affected means someone else holds the message.
func (r *MessageRepositoryImpl) Claim(ctx context.Context, id uint, until time.Time) (bool, error) {
	db := r.getDB(ctx)
	now := utils.UTCNow()
	res := db.Model(&models.Message{}).
		Where("id = ?", id).
		Where("status = ? OR (status = ? AND claimed_until IS NOT NULL AND claimed_until < ?)",
			models.MessageStatusQueued, models.MessageStatusProcessing, now).
		Updates(map[string]any{
			"status":        models.MessageStatusProcessing,
			"claimed_until": until,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Release moves a claimed message to its post-attempt state and clears the lease
func (r *MessageRepositoryImpl) Release(ctx context.Context, id uint, status models.MessageStatus, retryCount int, externalID, lastError *string) error {
	db := r.getDB(ctx)
	updates := map[string]any{
		"status":        status,
		"retry_count":   retryCount,
		"claimed_until": nil,
		"updated_at":    utils.UTCNow(),
	}
	if externalID != nil {
		updates["external_id"] = *externalID
	}
	if lastError != nil {
		updates["last_error"] = *lastError
	}
	if status == models.MessageStatusSent {
		updates["sent_at"] = utils.UTCNow()
	}
	return db.Model(&models.Message{}).Where("id = ?", id).Updates(updates).Error
}

// UpdateStatusMonotonic applies a gateway status report only while the
// stored status is sent or delivered, so a late delivered or failed
// report can never regress a read message. Returns whether a row changed.
func (r *MessageRepositoryImpl) UpdateStatusMonotonic(ctx context.Context, id uint, status models.MessageStatus) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Message{}).
		Where("id = ?", id).
		Where("status IN ?", []models.MessageStatus{models.MessageStatusSent, models.MessageStatusDelivered}).
		Updates(map[string]any{
			"status":     status,
			"updated_at": utils.UTCNow(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SaveMedia persists the message's media attachment
func (r *MessageRepositoryImpl) SaveMedia(ctx context.Context, media *models.MessageMedia) error {
	db := r.getDB(ctx)
	return db.Create(media).Error
}

// SaveDeliveries persists the per-recipient delivery rows of a message
func (r *MessageRepositoryImpl) SaveDeliveries(ctx context.Context, deliveries []*models.MessageDelivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	db := r.getDB(ctx)
	return db.CreateInBatches(deliveries, 100).Error
}

// UpdateDeliveriesStatus mirrors a message status change onto all its deliveries
func (r *MessageRepositoryImpl) UpdateDeliveriesStatus(ctx context.Context, messageID uint, status models.MessageStatus, gatewayMessageID *string) error {
	db := r.getDB(ctx)
	updates := map[string]any{
		"status":     status,
		"updated_at": utils.UTCNow(),
	}
	if gatewayMessageID != nil {
		updates["gateway_message_id"] = *gatewayMessageID
	}
	return db.Model(&models.MessageDelivery{}).Where("message_id = ?", messageID).Updates(updates).Error
}

// ListByConversation returns a conversation's messages, newest first
func (r *MessageRepositoryImpl) ListByConversation(ctx context.Context, conversationID uint, limit, offset int) ([]*models.Message, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Preload("Media")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
