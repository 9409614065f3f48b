package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CampaignStatus is the stored lifecycle marker of a campaign. The display
// status shown to callers is always recomputed from message counts via
// DerivedStatus, never trusted from the stored field alone.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusQueued    CampaignStatus = "queued"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusQueued, CampaignStatusRunning, CampaignStatusCompleted:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// TemplateButtonSpec describes one button of a template send
type TemplateButtonSpec struct {
	Type    string `json:"type"` // url, quick_reply, flow
	Text    string `json:"text,omitempty"`
	URL     string `json:"url,omitempty"`
	Payload string `json:"payload,omitempty"` // quick_reply postback payload
	FlowID  string `json:"flow_id,omitempty"`
}

// TemplateCardSpec describes one carousel card with its own header image
type TemplateCardSpec struct {
	HeaderImageURL string   `json:"header_image_url,omitempty"`
	BodyParams     []string `json:"body_params,omitempty"`
}

// TemplateSpec is the stored composition material for a template send:
// header media, catalog thumbnail, carousel cards, body variable values
// and button parameters.
type TemplateSpec struct {
	Language         string               `json:"language,omitempty"`
	HeaderMediaURL   string               `json:"header_media_url,omitempty"`
	CatalogThumbnail string               `json:"catalog_thumbnail,omitempty"`
	IsCarousel       bool                 `json:"is_carousel,omitempty"`
	IsCatalog        bool                 `json:"is_catalog,omitempty"`
	Cards            []TemplateCardSpec   `json:"cards,omitempty"`
	BodyParams       []string             `json:"body_params,omitempty"`
	Buttons          []TemplateButtonSpec `json:"buttons,omitempty"`
}

// Value implements the driver.Valuer interface for TemplateSpec
func (s TemplateSpec) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for TemplateSpec
func (s *TemplateSpec) Scan(value any) error {
	if value == nil {
		*s = TemplateSpec{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into TemplateSpec", value)
	}

	return json.Unmarshal(bytes, s)
}

// Campaign is a bulk send job. Counters are maintained atomically by the
// delivery worker as messages leave the queue.
type Campaign struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	VendorID       uint           `gorm:"not null;index:idx_campaigns_vendor_id" json:"vendor_id"`
	Name           string         `gorm:"size:255;not null" json:"name"`
	TemplateName   string         `gorm:"size:255" json:"template_name"`
	Spec           TemplateSpec   `gorm:"type:jsonb;not null" json:"spec"`
	Recipients     pq.StringArray `gorm:"type:text[]" json:"recipients"`
	Status         CampaignStatus `gorm:"type:varchar(12);not null;default:'draft';index:idx_campaigns_status" json:"status"`
	TotalMessages  int            `gorm:"not null;default:0" json:"total_messages"`
	SentMessages   int            `gorm:"not null;default:0" json:"sent_messages"`
	FailedMessages int            `gorm:"not null;default:0" json:"failed_messages"`
	CreatedAt      time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty"`

	// Relations
	Vendor *Vendor `gorm:"foreignKey:VendorID;references:ID" json:"vendor,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate() error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

// DerivedStatus recomputes the display status from message counts
func (c *Campaign) DerivedStatus() CampaignStatus {
	switch {
	case c.TotalMessages == 0:
		return CampaignStatusDraft
	case c.SentMessages+c.FailedMessages >= c.TotalMessages:
		return CampaignStatusCompleted
	case c.SentMessages+c.FailedMessages > 0:
		return CampaignStatusRunning
	default:
		return CampaignStatusQueued
	}
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID       *uint           `json:"id,omitempty"`
	UUID     *uuid.UUID      `json:"uuid,omitempty"`
	VendorID *uint           `json:"vendor_id,omitempty"`
	Status   *CampaignStatus `json:"status,omitempty"`
}
