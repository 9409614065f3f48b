// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/chatrasa/chatrasa/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// VendorRepository defines operations for messaging-gateway accounts
type VendorRepository interface {
	Repository[models.Vendor, models.VendorFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Vendor, error)
	ByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Vendor, error)
	ByBusinessAccountID(ctx context.Context, businessAccountID string) (*models.Vendor, error)
	Update(ctx context.Context, vendor *models.Vendor) error
	UpdateConnectionStatus(ctx context.Context, id uint, status models.VendorConnectionStatus) error
}

// LeadRepository defines operations for leads
type LeadRepository interface {
	Repository[models.Lead, models.LeadFilter]
	ByVendorAndPhone(ctx context.Context, vendorID uint, phone string) (*models.Lead, error)
	Upsert(ctx context.Context, lead *models.Lead) error
}

// ConversationRepository defines operations for conversations
type ConversationRepository interface {
	Repository[models.Conversation, models.ConversationFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Conversation, error)
	ByVendorAndLead(ctx context.Context, vendorID, leadID uint) (*models.Conversation, error)
	Update(ctx context.Context, conversation *models.Conversation) error
	TouchLastMessageAt(ctx context.Context, id uint, at time.Time) error
}

// MessageRepository defines operations for messages and their deliveries
type MessageRepository interface {
	Repository[models.Message, models.MessageFilter]
	ByExternalID(ctx context.Context, externalID string) (*models.Message, error)
	Update(ctx context.Context, message *models.Message) error
	NextSendable(ctx context.Context, now time.Time, maxRetries int) (*models.Message, error)
	Claim(ctx context.Context, id uint, until time.Time) (bool, error)
	Release(ctx context.Context, id uint, status models.MessageStatus, retryCount int, externalID, lastError *string) error
	UpdateStatusMonotonic(ctx context.Context, id uint, status models.MessageStatus) (bool, error)
	SaveMedia(ctx context.Context, media *models.MessageMedia) error
	SaveDeliveries(ctx context.Context, deliveries []*models.MessageDelivery) error
	UpdateDeliveriesStatus(ctx context.Context, messageID uint, status models.MessageStatus, gatewayMessageID *string) error
	ListByConversation(ctx context.Context, conversationID uint, limit, offset int) ([]*models.Message, error)
}

// CampaignRepository defines operations for bulk send jobs
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	Update(ctx context.Context, campaign *models.Campaign) error
	IncrementSent(ctx context.Context, id uint) error
	IncrementFailed(ctx context.Context, id uint) error
}

// WorkflowRepository defines operations for automation workflows
type WorkflowRepository interface {
	Repository[models.Workflow, models.WorkflowFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Workflow, error)
	ListActiveByVendor(ctx context.Context, vendorID uint) ([]*models.Workflow, error)
	Update(ctx context.Context, workflow *models.Workflow) error
}

// WorkflowSessionRepository defines operations for workflow sessions
type WorkflowSessionRepository interface {
	Repository[models.WorkflowSession, models.WorkflowSessionFilter]
	ActiveByConversation(ctx context.Context, conversationID uint) (*models.WorkflowSession, error)
	DeactivateByConversation(ctx context.Context, conversationID uint, to models.WorkflowSessionStatus) error
	Update(ctx context.Context, session *models.WorkflowSession) error
}

// FlowRepository defines operations for interactive form definitions
type FlowRepository interface {
	Repository[models.Flow, models.FlowFilter]
	ByRemoteFlowID(ctx context.Context, remoteFlowID string) (*models.Flow, error)
	ByVendor(ctx context.Context, vendorID uint) ([]*models.Flow, error)
	Update(ctx context.Context, flow *models.Flow) error
}

// FlowResponseRepository defines operations for form submissions
type FlowResponseRepository interface {
	Repository[models.FlowResponse, models.FlowResponseFilter]
	ByFlowToken(ctx context.Context, token string) (*models.FlowResponse, error)
	Update(ctx context.Context, response *models.FlowResponse) error
}

// ActivityLogRepository defines operations for the messaging audit trail
type ActivityLogRepository interface {
	Repository[models.ActivityLog, models.ActivityLogFilter]
	ByExternalMessageID(ctx context.Context, externalMessageID string) (*models.ActivityLog, error)
	UpsertByExternalMessageID(ctx context.Context, entry *models.ActivityLog) error
	ListByVendor(ctx context.Context, vendorID uint, limit, offset int) ([]*models.ActivityLog, error)
}
