package dto

import (
	"time"

	"github.com/chatrasa/chatrasa/models"
)

// CreateCampaignRequest represents the request to create a new campaign.
// Recipients may be supplied inline or imported from a spreadsheet upload.
type CreateCampaignRequest struct {
	VendorID     uint                `json:"-"`
	Name         string              `json:"name" validate:"required,max=255"`
	TemplateName string              `json:"template_name" validate:"required,max=255"`
	Spec         models.TemplateSpec `json:"spec"`
	Recipients   []string            `json:"recipients" validate:"omitempty,dive,min=5,max=32"`
	Enqueue      bool                `json:"enqueue"`
}

// CreateCampaignResponse represents the response to create a new campaign
type CreateCampaignResponse struct {
	Message       string `json:"message"`
	UUID          string `json:"uuid"`
	Status        string `json:"status"`
	TotalMessages int    `json:"total_messages"`
	CreatedAt     string `json:"created_at"`
}

// GetCampaignResponse represents the campaign in responses. Status is the
// derived status recomputed from message counts.
type GetCampaignResponse struct {
	UUID           string     `json:"uuid"`
	Name           string     `json:"name"`
	TemplateName   string     `json:"template_name"`
	Status         string     `json:"status"`
	TotalMessages  int        `json:"total_messages"`
	SentMessages   int        `json:"sent_messages"`
	FailedMessages int        `json:"failed_messages"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// ListCampaignsResponse represents a page of campaigns
type ListCampaignsResponse struct {
	Items []GetCampaignResponse `json:"items"`
	Total int64                 `json:"total"`
}

// ImportRecipientsResponse returns the phone numbers parsed from an upload
type ImportRecipientsResponse struct {
	Recipients []string `json:"recipients"`
	Total      int      `json:"total"`
}
