// Package businessflow contains the business logic for the application.
package businessflow

import (
	"time"

	"github.com/chatrasa/chatrasa/app/dto"
	"github.com/chatrasa/chatrasa/models"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// ToVendorDTO converts a vendor model for API responses
func ToVendorDTO(vendor models.Vendor) dto.GetVendorResponse {
	return dto.GetVendorResponse{
		UUID:              vendor.UUID.String(),
		Name:              vendor.Name,
		PhoneNumberID:     vendor.PhoneNumberID,
		BusinessAccountID: vendor.BusinessAccountID,
		DisplayPhone:      vendor.DisplayPhone,
		ConnectionStatus:  string(vendor.ConnectionStatus),
		CreatedAt:         vendor.CreatedAt.Format(time.RFC3339),
	}
}

// ToCampaignDTO converts a campaign model for API responses. The status
// field carries the derived status, not the stored one.
func ToCampaignDTO(campaign models.Campaign) dto.GetCampaignResponse {
	return dto.GetCampaignResponse{
		UUID:           campaign.UUID.String(),
		Name:           campaign.Name,
		TemplateName:   campaign.TemplateName,
		Status:         string(campaign.DerivedStatus()),
		TotalMessages:  campaign.TotalMessages,
		SentMessages:   campaign.SentMessages,
		FailedMessages: campaign.FailedMessages,
		CreatedAt:      campaign.CreatedAt,
		UpdatedAt:      campaign.UpdatedAt,
	}
}

// ToWorkflowDTO converts a workflow model for API responses
func ToWorkflowDTO(workflow models.Workflow) dto.WorkflowResponse {
	return dto.WorkflowResponse{
		UUID:            workflow.UUID.String(),
		Name:            workflow.Name,
		TriggerKeywords: workflow.TriggerKeywords,
		IsActive:        workflow.IsActive != nil && *workflow.IsActive,
		Graph:           workflow.Graph,
		CreatedAt:       workflow.CreatedAt,
		UpdatedAt:       workflow.UpdatedAt,
	}
}

// ToMessageDTO converts a message model for conversation history responses
func ToMessageDTO(message models.Message) dto.MessageView {
	view := dto.MessageView{
		UUID:      message.UUID.String(),
		Direction: string(message.Direction),
		Type:      string(message.Type),
		Body:      message.Body,
		Status:    string(message.Status),
		CreatedAt: message.CreatedAt,
		SentAt:    message.SentAt,
	}
	if message.ExternalID != nil {
		view.ExternalID = *message.ExternalID
	}
	if message.Media != nil {
		view.MediaURL = message.Media.URL
	}
	return view
}
