package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VendorConnectionStatus represents the state of a vendor's gateway connection
type VendorConnectionStatus string

const (
	VendorConnectionStatusConnected    VendorConnectionStatus = "connected"
	VendorConnectionStatusDisconnected VendorConnectionStatus = "disconnected"
	VendorConnectionStatusError        VendorConnectionStatus = "error"
)

// String returns the string representation of the status
func (s VendorConnectionStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s VendorConnectionStatus) Valid() bool {
	switch s {
	case VendorConnectionStatusConnected, VendorConnectionStatusDisconnected, VendorConnectionStatusError:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for VendorConnectionStatus
func (s *VendorConnectionStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = VendorConnectionStatus(v)
	case []byte:
		*s = VendorConnectionStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into VendorConnectionStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for VendorConnectionStatus
func (s VendorConnectionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid VendorConnectionStatus: %s", s)
	}
	return string(s), nil
}

// Vendor represents one messaging-gateway account. All other entities are
// owned by a vendor; PhoneNumberID and BusinessAccountID are the two
// identifiers the gateway uses to address webhook events at us.
type Vendor struct {
	ID                uint                   `gorm:"primaryKey" json:"id"`
	UUID              uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex:uk_vendors_uuid" json:"uuid"`
	Name              string                 `gorm:"size:255;not null" json:"name"`
	PhoneNumberID     string                 `gorm:"size:64;not null;uniqueIndex:uk_vendors_phone_number_id" json:"phone_number_id"`
	BusinessAccountID string                 `gorm:"size:64;not null;index:idx_vendors_business_account_id" json:"business_account_id"`
	DisplayPhone      string                 `gorm:"size:32" json:"display_phone"`
	AccessTokenEnc    string                 `gorm:"type:text" json:"-"`
	ConnectionStatus  VendorConnectionStatus `gorm:"type:varchar(16);not null;default:'disconnected';index:idx_vendors_connection_status" json:"connection_status"`
	CreatedAt         time.Time              `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt         *time.Time             `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Vendor) TableName() string {
	return "vendors"
}

// BeforeCreate is called before creating a new record
func (v *Vendor) BeforeCreate() error {
	if v.UUID == uuid.Nil {
		v.UUID = uuid.New()
	}
	if v.ConnectionStatus == "" {
		v.ConnectionStatus = VendorConnectionStatusDisconnected
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	return nil
}

// IsConnected reports whether the vendor can currently send through the gateway
func (v *Vendor) IsConnected() bool {
	return v.ConnectionStatus == VendorConnectionStatusConnected && v.AccessTokenEnc != ""
}

// VendorFilter represents filter criteria for vendors
type VendorFilter struct {
	ID                *uint                   `json:"id,omitempty"`
	UUID              *uuid.UUID              `json:"uuid,omitempty"`
	PhoneNumberID     *string                 `json:"phone_number_id,omitempty"`
	BusinessAccountID *string                 `json:"business_account_id,omitempty"`
	ConnectionStatus  *VendorConnectionStatus `json:"connection_status,omitempty"`
}
