package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead represents a remote counterparty identified by a canonical phone
// number, unique per (vendor, phone). Leads are created on first inbound
// or outbound contact and never deleted by the messaging core.
type Lead struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_leads_uuid" json:"uuid"`
	VendorID  uint       `gorm:"not null;uniqueIndex:uk_leads_vendor_phone;index:idx_leads_vendor_id" json:"vendor_id"`
	Phone     string     `gorm:"size:32;not null;uniqueIndex:uk_leads_vendor_phone" json:"phone"`
	Name      string     `gorm:"size:255" json:"name"`
	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Vendor *Vendor `gorm:"foreignKey:VendorID;references:ID" json:"vendor,omitempty"`
}

// TableName returns the table name for the model
func (Lead) TableName() string {
	return "leads"
}

// BeforeCreate is called before creating a new record
func (l *Lead) BeforeCreate() error {
	if l.UUID == uuid.Nil {
		l.UUID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return nil
}

// LeadFilter represents filter criteria for leads
type LeadFilter struct {
	ID       *uint      `json:"id,omitempty"`
	UUID     *uuid.UUID `json:"uuid,omitempty"`
	VendorID *uint      `json:"vendor_id,omitempty"`
	Phone    *string    `json:"phone,omitempty"`
}
