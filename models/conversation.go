package models

import (
	"time"

	"github.com/google/uuid"
)

// MessagingWindow is the period after the counterparty's last inbound
// message during which free-form outbound replies are permitted.
const MessagingWindow = 24 * time.Hour

// Conversation is the single open thread per (vendor, lead). It carries
// the messaging-window bounds: every inbound message refreshes
// SessionExpiresAt to its timestamp plus MessagingWindow, and free-form
// outbound sends are only valid while the window is open.
type Conversation struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UUID             uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_conversations_uuid" json:"uuid"`
	VendorID         uint       `gorm:"not null;uniqueIndex:uk_conversations_vendor_lead;index:idx_conversations_vendor_id" json:"vendor_id"`
	LeadID           uint       `gorm:"not null;uniqueIndex:uk_conversations_vendor_lead" json:"lead_id"`
	LastMessageAt    *time.Time `gorm:"index:idx_conversations_last_message_at" json:"last_message_at,omitempty"`
	SessionStartedAt *time.Time `json:"session_started_at,omitempty"`
	SessionExpiresAt *time.Time `gorm:"index:idx_conversations_session_expires_at" json:"session_expires_at,omitempty"`
	CreatedAt        time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`

	// Relations
	Vendor *Vendor `gorm:"foreignKey:VendorID;references:ID" json:"vendor,omitempty"`
	Lead   *Lead   `gorm:"foreignKey:LeadID;references:ID" json:"lead,omitempty"`
}

// TableName returns the table name for the model
func (Conversation) TableName() string {
	return "conversations"
}

// BeforeCreate is called before creating a new record
func (c *Conversation) BeforeCreate() error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

// SessionOpen reports whether the messaging window is open at the given time
func (c *Conversation) SessionOpen(now time.Time) bool {
	return c.SessionExpiresAt != nil && now.Before(*c.SessionExpiresAt)
}

// RefreshSession moves the messaging window to inboundAt + MessagingWindow
func (c *Conversation) RefreshSession(inboundAt time.Time) {
	expires := inboundAt.Add(MessagingWindow)
	if c.SessionStartedAt == nil || !c.SessionOpen(inboundAt) {
		started := inboundAt
		c.SessionStartedAt = &started
	}
	c.SessionExpiresAt = &expires
}

// ConversationFilter represents filter criteria for conversations
type ConversationFilter struct {
	ID       *uint      `json:"id,omitempty"`
	UUID     *uuid.UUID `json:"uuid,omitempty"`
	VendorID *uint      `json:"vendor_id,omitempty"`
	LeadID   *uint      `json:"lead_id,omitempty"`
}
