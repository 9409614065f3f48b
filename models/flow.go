package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FlowScreen is one screen of a remote interactive form. Terminal screens
// end the interaction; reaching one marks the submission completed.
type FlowScreen struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
}

// FlowScreenGraph is the ordered screen list of a form definition
type FlowScreenGraph struct {
	Screens []FlowScreen `json:"screens"`
}

// Value implements the driver.Valuer interface for FlowScreenGraph
func (g FlowScreenGraph) Value() (driver.Value, error) {
	return json.Marshal(g)
}

// Scan implements the sql.Scanner interface for FlowScreenGraph
func (g *FlowScreenGraph) Scan(value any) error {
	if value == nil {
		*g = FlowScreenGraph{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into FlowScreenGraph", value)
	}

	return json.Unmarshal(bytes, g)
}

// Screen returns the screen with the given id, or nil
func (g *FlowScreenGraph) Screen(id string) *FlowScreen {
	for i := range g.Screens {
		if g.Screens[i].ID == id {
			return &g.Screens[i]
		}
	}
	return nil
}

// FirstScreen returns the entry screen of the form, or nil
func (g *FlowScreenGraph) FirstScreen() *FlowScreen {
	if len(g.Screens) == 0 {
		return nil
	}
	return &g.Screens[0]
}

// IsTerminal reports whether the given screen ends the interaction. The
// literal SUCCESS screen is treated as terminal when the graph does not
// describe the screen at all.
func (g *FlowScreenGraph) IsTerminal(screenID string) bool {
	if s := g.Screen(screenID); s != nil {
		return s.Terminal
	}
	return screenID == "SUCCESS"
}

// Flow is a remote interactive form definition registered with the
// gateway. The private half of its key pair is stored encrypted at rest.
type Flow struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UUID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uk_flows_uuid" json:"uuid"`
	VendorID      uint            `gorm:"not null;index:idx_flows_vendor_id" json:"vendor_id"`
	RemoteFlowID  string          `gorm:"size:64;not null;uniqueIndex:uk_flows_remote_flow_id" json:"remote_flow_id"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	Screens       FlowScreenGraph `gorm:"type:jsonb;not null" json:"screens"`
	PublicKeyPEM  string          `gorm:"type:text" json:"public_key_pem"`
	PrivateKeyEnc string          `gorm:"type:text" json:"-"`
	CreatedAt     time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt     *time.Time      `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Flow) TableName() string {
	return "flows"
}

// BeforeCreate is called before creating a new record
func (f *Flow) BeforeCreate() error {
	if f.UUID == uuid.Nil {
		f.UUID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	return nil
}

// FlowFilter represents filter criteria for flows
type FlowFilter struct {
	ID           *uint      `json:"id,omitempty"`
	UUID         *uuid.UUID `json:"uuid,omitempty"`
	VendorID     *uint      `json:"vendor_id,omitempty"`
	RemoteFlowID *string    `json:"remote_flow_id,omitempty"`
}

// FlowResponseStatus represents the state of a form submission
type FlowResponseStatus string

const (
	FlowResponseStatusInProgress FlowResponseStatus = "in_progress"
	FlowResponseStatusCompleted  FlowResponseStatus = "completed"
)

// Valid checks if the status is valid
func (s FlowResponseStatus) Valid() bool {
	return s == FlowResponseStatusInProgress || s == FlowResponseStatusCompleted
}

// Scan implements the sql.Scanner interface for FlowResponseStatus
func (s *FlowResponseStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = FlowResponseStatus(v)
	case []byte:
		*s = FlowResponseStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into FlowResponseStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for FlowResponseStatus
func (s FlowResponseStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid FlowResponseStatus: %s", s)
	}
	return string(s), nil
}

// FlowResponse accumulates one form submission keyed by flow token.
// Multiple data exchanges for the same token merge into Data rather than
// overwriting it.
type FlowResponse struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:uk_flow_responses_uuid" json:"uuid"`
	FlowID         uint               `gorm:"not null;index:idx_flow_responses_flow_id" json:"flow_id"`
	FlowToken      string             `gorm:"size:255;not null;uniqueIndex:uk_flow_responses_flow_token" json:"flow_token"`
	LeadID         *uint              `gorm:"index:idx_flow_responses_lead_id" json:"lead_id,omitempty"`
	ConversationID *uint              `json:"conversation_id,omitempty"`
	Data           json.RawMessage    `gorm:"type:jsonb" json:"data"`
	Status         FlowResponseStatus `gorm:"type:varchar(12);not null;default:'in_progress'" json:"status"`
	CreatedAt      time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt      *time.Time         `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (FlowResponse) TableName() string {
	return "flow_responses"
}

// BeforeCreate is called before creating a new record
func (r *FlowResponse) BeforeCreate() error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.Status == "" {
		r.Status = FlowResponseStatusInProgress
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}

// MergeData folds newly submitted fields into the stored submission,
// keeping previously collected fields from earlier exchanges of the same
// token
func (r *FlowResponse) MergeData(fields map[string]any) error {
	merged := map[string]any{}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &merged); err != nil {
			return fmt.Errorf("failed to decode stored submission: %w", err)
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	r.Data = data
	return nil
}

// FlowResponseFilter represents filter criteria for flow responses
type FlowResponseFilter struct {
	ID        *uint               `json:"id,omitempty"`
	FlowID    *uint               `json:"flow_id,omitempty"`
	FlowToken *string             `json:"flow_token,omitempty"`
	LeadID    *uint               `json:"lead_id,omitempty"`
	Status    *FlowResponseStatus `json:"status,omitempty"`
}
