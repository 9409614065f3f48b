package repository

import (
	"context"
	"errors"

	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/utils"
	"gorm.io/gorm"
)

// WorkflowSessionRepositoryImpl implements WorkflowSessionRepository
type WorkflowSessionRepositoryImpl struct {
	*BaseRepository[models.WorkflowSession, models.WorkflowSessionFilter]
}

// NewWorkflowSessionRepository creates a new workflow session repository
func NewWorkflowSessionRepository(db *gorm.DB) WorkflowSessionRepository {
	return &WorkflowSessionRepositoryImpl{BaseRepository: NewBaseRepository[models.WorkflowSession, models.WorkflowSessionFilter](db)}
}

func (r *WorkflowSessionRepositoryImpl) applyFilter(db *gorm.DB, f models.WorkflowSessionFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ConversationID != nil {
		db = db.Where("conversation_id = ?", *f.ConversationID)
	}
	if f.WorkflowID != nil {
		db = db.Where("workflow_id = ?", *f.WorkflowID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	return db
}

func (r *WorkflowSessionRepositoryImpl) ByFilter(ctx context.Context, filter models.WorkflowSessionFilter, orderBy string, limit, offset int) ([]*models.WorkflowSession, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.WorkflowSession{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.WorkflowSession
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *WorkflowSessionRepositoryImpl) Count(ctx context.Context, filter models.WorkflowSessionFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.WorkflowSession{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *WorkflowSessionRepositoryImpl) Exists(ctx context.Context, filter models.WorkflowSessionFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// ActiveByConversation returns the conversation's single active session,
// or nil when no workflow is running there.
func (r *WorkflowSessionRepositoryImpl) ActiveByConversation(ctx context.Context, conversationID uint) (*models.WorkflowSession, error) {
	db := r.getDB(ctx)
	var row models.WorkflowSession
	err := db.Where("conversation_id = ? AND status = ?", conversationID, models.WorkflowSessionStatusActive).
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

// DeactivateByConversation closes every active session in the conversation,
// enforcing the one-active-session invariant before a new trigger starts.
func (r *WorkflowSessionRepositoryImpl) DeactivateByConversation(ctx context.Context, conversationID uint, to models.WorkflowSessionStatus) error {
	db := r.getDB(ctx)
	return db.Model(&models.WorkflowSession{}).
		Where("conversation_id = ? AND status = ?", conversationID, models.WorkflowSessionStatusActive).
		Updates(map[string]any{
			"status":     to,
			"updated_at": utils.UTCNow(),
		}).Error
}

// Update persists session changes
func (r *WorkflowSessionRepositoryImpl) Update(ctx context.Context, session *models.WorkflowSession) error {
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

	session.UpdatedAt = utils.UTCNowPtr()
	err = db.Save(session).Error
	return err
}
