package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageDirection represents the direction of a message
type MessageDirection string

const (
	MessageDirectionInbound  MessageDirection = "inbound"
	MessageDirectionOutbound MessageDirection = "outbound"
)

// Valid checks if the direction is valid
func (d MessageDirection) Valid() bool {
	return d == MessageDirectionInbound || d == MessageDirectionOutbound
}

// Scan implements the sql.Scanner interface for MessageDirection
func (d *MessageDirection) Scan(value any) error {
	if value == nil {
		*d = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*d = MessageDirection(v)
	case []byte:
		*d = MessageDirection(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageDirection", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for MessageDirection
func (d MessageDirection) Value() (driver.Value, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid MessageDirection: %s", d)
	}
	return string(d), nil
}

// MessageType represents the payload kind of a message
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeDocument MessageType = "document"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeVideo    MessageType = "video"
	MessageTypeTemplate MessageType = "template"
	MessageTypeButton   MessageType = "button"
	MessageTypeList     MessageType = "list"
	MessageTypeFlow     MessageType = "flow"
)

// MessageStatus represents the delivery status of an outbound message.
// Outbound messages progress queued -> processing -> sent -> delivered ->
// read, or end in failed after retry exhaustion. Inbound messages are
// stored as received.
type MessageStatus string

const (
	MessageStatusQueued     MessageStatus = "queued"
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusSent       MessageStatus = "sent"
	MessageStatusDelivered  MessageStatus = "delivered"
	MessageStatusRead       MessageStatus = "read"
	MessageStatusFailed     MessageStatus = "failed"
	MessageStatusReceived   MessageStatus = "received"
)

// String returns the string representation of the status
func (s MessageStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusQueued, MessageStatusProcessing, MessageStatusSent,
		MessageStatusDelivered, MessageStatusRead, MessageStatusFailed,
		MessageStatusReceived:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for MessageStatus
func (s *MessageStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = MessageStatus(v)
	case []byte:
		*s = MessageStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for MessageStatus
func (s MessageStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid MessageStatus: %s", s)
	}
	return string(s), nil
}

// CanTransitionTo checks if a gateway status update may overwrite the
// current status. Progression is monotonic: gateway updates only land on
// sent or delivered rows, so a late failed or delivered report can never
// regress a message that was already read.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	switch s {
	case MessageStatusQueued:
		return next == MessageStatusProcessing || next == MessageStatusFailed
	case MessageStatusProcessing:
		return next == MessageStatusQueued || next == MessageStatusSent || next == MessageStatusFailed
	case MessageStatusSent:
		return next == MessageStatusDelivered || next == MessageStatusRead || next == MessageStatusFailed
	case MessageStatusDelivered:
		return next == MessageStatusRead || next == MessageStatusFailed
	default:
		return false
	}
}

// MaxSendRetries is the retry ceiling for outbound sends: two retries on
// top of the first attempt, three attempts total.
const MaxSendRetries = 2

// Message is immutable once created except for status and retry-count
// transitions. ExternalID is the gateway-issued message identifier and is
// the dedup key for inbound messages.
type Message struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:uk_messages_uuid" json:"uuid"`
	VendorID       uint             `gorm:"not null;index:idx_messages_vendor_id" json:"vendor_id"`
	ConversationID uint             `gorm:"not null;index:idx_messages_conversation_id" json:"conversation_id"`
	CampaignID     *uint            `gorm:"index:idx_messages_campaign_id" json:"campaign_id,omitempty"`
	ExternalID     *string          `gorm:"size:128;uniqueIndex:uk_messages_external_id" json:"external_id,omitempty"`
	Direction      MessageDirection `gorm:"type:varchar(10);not null;index:idx_messages_direction" json:"direction"`
	Type           MessageType      `gorm:"type:varchar(16);not null" json:"type"`
	Body           string           `gorm:"type:text" json:"body"`
	TemplateName   *string          `gorm:"size:255" json:"template_name,omitempty"`
	TemplateSpec   *TemplateSpec    `gorm:"type:jsonb" json:"template_spec,omitempty"`
	Status         MessageStatus    `gorm:"type:varchar(12);not null;index:idx_messages_status" json:"status"`
	RetryCount     int              `gorm:"not null;default:0" json:"retry_count"`
	LastError      *string          `gorm:"type:text" json:"last_error,omitempty"`
	ClaimedUntil   *time.Time       `gorm:"index:idx_messages_claimed_until" json:"claimed_until,omitempty"`
	SentAt         *time.Time       `json:"sent_at,omitempty"`
	CreatedAt      time.Time        `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_messages_created_at" json:"created_at"`
	UpdatedAt      *time.Time       `json:"updated_at,omitempty"`

	// Relations
	Conversation *Conversation      `gorm:"foreignKey:ConversationID;references:ID" json:"conversation,omitempty"`
	Media        *MessageMedia      `gorm:"foreignKey:MessageID;references:ID" json:"media,omitempty"`
	Deliveries   []*MessageDelivery `gorm:"foreignKey:MessageID;references:ID" json:"deliveries,omitempty"`
}

// TableName returns the table name for the model
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate is called before creating a new record
func (m *Message) BeforeCreate() error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	if m.Status == "" {
		if m.Direction == MessageDirectionInbound {
			m.Status = MessageStatusReceived
		} else {
			m.Status = MessageStatusQueued
		}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

// MessageFilter represents filter criteria for messages
type MessageFilter struct {
	ID             *uint             `json:"id,omitempty"`
	UUID           *uuid.UUID        `json:"uuid,omitempty"`
	VendorID       *uint             `json:"vendor_id,omitempty"`
	ConversationID *uint             `json:"conversation_id,omitempty"`
	CampaignID     *uint             `json:"campaign_id,omitempty"`
	ExternalID     *string           `json:"external_id,omitempty"`
	Direction      *MessageDirection `json:"direction,omitempty"`
	Status         *MessageStatus    `json:"status,omitempty"`
}

// MessageMedia holds the zero-or-one media attachment of a message
type MessageMedia struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:uk_message_media_message_id" json:"message_id"`
	URL       string    `gorm:"type:text;not null" json:"url"`
	MimeType  string    `gorm:"size:128" json:"mime_type"`
	Caption   string    `gorm:"type:text" json:"caption"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

// TableName returns the table name for the model
func (MessageMedia) TableName() string {
	return "message_media"
}

// MessageDelivery records one gateway-delivery attempt. Campaign fan-out
// maps one logical message to many deliveries; each mirrors the message
// status independently.
type MessageDelivery struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	MessageID        uint          `gorm:"not null;index:idx_message_deliveries_message_id" json:"message_id"`
	RecipientPhone   string        `gorm:"size:32;not null" json:"recipient_phone"`
	GatewayMessageID *string       `gorm:"size:128;index:idx_message_deliveries_gateway_id" json:"gateway_message_id,omitempty"`
	Status           MessageStatus `gorm:"type:varchar(12);not null" json:"status"`
	CreatedAt        time.Time     `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt        *time.Time    `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (MessageDelivery) TableName() string {
	return "message_deliveries"
}

// MessageDeliveryFilter represents filter criteria for deliveries
type MessageDeliveryFilter struct {
	ID               *uint          `json:"id,omitempty"`
	MessageID        *uint          `json:"message_id,omitempty"`
	GatewayMessageID *string        `json:"gateway_message_id,omitempty"`
	Status           *MessageStatus `json:"status,omitempty"`
}
