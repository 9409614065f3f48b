package models

import (
	"encoding/json"
	"time"
)

// Activity log action constants
const (
	ActivityActionMessageReceived        = "message_received"
	ActivityActionMessageDuplicate       = "message_duplicate_ignored"
	ActivityActionMessageSent            = "message_sent"
	ActivityActionMessageStatusUpdated   = "message_status_updated"
	ActivityActionMessageStatusOrphaned  = "message_status_orphaned"
	ActivityActionMediaDownloadFailed    = "media_download_failed"
	ActivityActionTemplateStatusApproved = "template_status_approved"
	ActivityActionTemplateStatusRejected = "template_status_rejected"
	ActivityActionTemplateStatusPending  = "template_status_pending"
	ActivityActionWebhookIgnored         = "webhook_ignored"
	ActivityActionWorkflowTriggered      = "workflow_triggered"
	ActivityActionCampaignCreated        = "campaign_created"
	ActivityActionVendorCredentialsSet   = "vendor_credentials_set"
	ActivityActionFlowKeysProvisioned    = "flow_keys_provisioned"
	ActivityActionFlowSubmission         = "flow_submission"
)

// ActivityLog is the append-only audit trail of the messaging core,
// correlated by the gateway-issued message id. Later status events for the
// same external id update the existing row instead of creating duplicates.
type ActivityLog struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	VendorID          *uint           `gorm:"index:idx_activity_logs_vendor_id" json:"vendor_id,omitempty"`
	ExternalMessageID *string         `gorm:"size:128;index:idx_activity_logs_external_message_id" json:"external_message_id,omitempty"`
	Action            string          `gorm:"size:64;not null;index:idx_activity_logs_action" json:"action"`
	Description       string          `gorm:"type:text" json:"description"`
	Success           *bool           `gorm:"index:idx_activity_logs_success" json:"success,omitempty"`
	Metadata          json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt         time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_activity_logs_created_at" json:"created_at"`
	UpdatedAt         *time.Time      `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (ActivityLog) TableName() string {
	return "activity_logs"
}

// ActivityLogFilter represents filter criteria for activity logs
type ActivityLogFilter struct {
	ID                *uint   `json:"id,omitempty"`
	VendorID          *uint   `json:"vendor_id,omitempty"`
	ExternalMessageID *string `json:"external_message_id,omitempty"`
	Action            *string `json:"action,omitempty"`
	Success           *bool   `json:"success,omitempty"`
}
