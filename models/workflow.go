package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NodeKind enumerates the automation node kinds a workflow graph may
// contain. Execution switches exhaustively over these; an unknown kind
// is rejected when the graph is validated, not at traversal time.
type NodeKind string

const (
	NodeKindStart   NodeKind = "start"
	NodeKindMessage NodeKind = "message"
	NodeKindImage   NodeKind = "image"
	NodeKindGallery NodeKind = "gallery"
	NodeKindButton  NodeKind = "button"
	NodeKindList    NodeKind = "list"
)

// Valid checks if the node kind is valid
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindStart, NodeKindMessage, NodeKindImage, NodeKindGallery, NodeKindButton, NodeKindList:
		return true
	default:
		return false
	}
}

// NodeButton is one configured button on a button node. Kind selects the
// send strategy: reply buttons become interactive buttons, url and phone
// buttons are appended as plain text lines, a flow button launches an
// encrypted form exchange.
type NodeButton struct {
	Kind   string `json:"kind"` // reply, url, phone, flow
	Label  string `json:"label"`
	URL    string `json:"url,omitempty"`
	Phone  string `json:"phone,omitempty"`
	FlowID string `json:"flow_id,omitempty"`
}

// NodeListItem is one row of a list node
type NodeListItem struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// WorkflowNode is one typed node of the automation graph. Only the fields
// for its kind are populated.
type WorkflowNode struct {
	ID       string         `json:"id"`
	Kind     NodeKind       `json:"kind"`
	Body     string         `json:"body,omitempty"`
	ImageURL string         `json:"image_url,omitempty"`
	Images   []string       `json:"images,omitempty"` // gallery
	Buttons  []NodeButton   `json:"buttons,omitempty"`
	Items    []NodeListItem `json:"items,omitempty"`
	Header   string         `json:"header,omitempty"`
	Footer   string         `json:"footer,omitempty"`
}

// WorkflowEdge connects two nodes. SourceHandle carries the button or
// list-item index ("btn-0", "item-2") the edge is taken on; an empty
// handle is the generic fallback edge.
type WorkflowEdge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
}

// WorkflowGraph is the directed node/edge graph of a workflow. It is
// parsed and validated once at load; traversal works on the validated
// structure and never re-reads raw JSON.
type WorkflowGraph struct {
	Nodes []WorkflowNode `json:"nodes"`
	Edges []WorkflowEdge `json:"edges"`
}

// Value implements the driver.Valuer interface for WorkflowGraph
func (g WorkflowGraph) Value() (driver.Value, error) {
	return json.Marshal(g)
}

// Scan implements the sql.Scanner interface for WorkflowGraph
func (g *WorkflowGraph) Scan(value any) error {
	if value == nil {
		*g = WorkflowGraph{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into WorkflowGraph", value)
	}

	return json.Unmarshal(bytes, g)
}

// Validate enforces referential integrity: exactly one start node, every
// node kind known, node ids unique, and every edge endpoint resolving to
// an existing node. A graph that passes cannot contain ghost edges, so
// traversal needs no defensive filtering.
func (g *WorkflowGraph) Validate() error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}

	ids := make(map[string]struct{}, len(g.Nodes))
	starts := 0
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("graph contains a node without an id")
		}
		if !n.Kind.Valid() {
			return fmt.Errorf("node %q has unknown kind %q", n.ID, n.Kind)
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		ids[n.ID] = struct{}{}
		if n.Kind == NodeKindStart {
			starts++
		}
	}
	if starts != 1 {
		return fmt.Errorf("graph must have exactly one start node, found %d", starts)
	}

	for _, e := range g.Edges {
		if _, ok := ids[e.Source]; !ok {
			return fmt.Errorf("edge references missing source node %q", e.Source)
		}
		if _, ok := ids[e.Target]; !ok {
			return fmt.Errorf("edge references missing target node %q", e.Target)
		}
	}

	return nil
}

// Node returns the node with the given id, or nil
func (g *WorkflowGraph) Node(id string) *WorkflowNode {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// StartNode returns the single start node, or nil for an unvalidated graph
func (g *WorkflowGraph) StartNode() *WorkflowNode {
	for i := range g.Nodes {
		if g.Nodes[i].Kind == NodeKindStart {
			return &g.Nodes[i]
		}
	}
	return nil
}

// FirstEdgeFrom returns the first outgoing edge of the node, or nil
func (g *WorkflowGraph) FirstEdgeFrom(nodeID string) *WorkflowEdge {
	for i := range g.Edges {
		if g.Edges[i].Source == nodeID {
			return &g.Edges[i]
		}
	}
	return nil
}

// EdgeFromHandle returns the outgoing edge with the given source handle,
// falling back to the first handle-less edge of the node
func (g *WorkflowGraph) EdgeFromHandle(nodeID, handle string) *WorkflowEdge {
	var fallback *WorkflowEdge
	for i := range g.Edges {
		e := &g.Edges[i]
		if e.Source != nodeID {
			continue
		}
		if e.SourceHandle == handle {
			return e
		}
		if e.SourceHandle == "" && fallback == nil {
			fallback = e
		}
	}
	return fallback
}

// Workflow is a keyword-triggered automation graph owned by a vendor.
// TriggerKeywords is a comma-separated list; matching is exact after
// trimming and lowercasing each keyword and the inbound text.
type Workflow struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	UUID            uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:uk_workflows_uuid" json:"uuid"`
	VendorID        uint          `gorm:"not null;index:idx_workflows_vendor_id" json:"vendor_id"`
	Name            string        `gorm:"size:255;not null" json:"name"`
	TriggerKeywords string        `gorm:"type:text;not null" json:"trigger_keywords"`
	IsActive        *bool         `gorm:"not null;default:true;index:idx_workflows_is_active" json:"is_active"`
	Graph           WorkflowGraph `gorm:"type:jsonb;not null" json:"graph"`
	CreatedAt       time.Time     `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt       *time.Time    `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Workflow) TableName() string {
	return "workflows"
}

// BeforeCreate is called before creating a new record
func (w *Workflow) BeforeCreate() error {
	if w.UUID == uuid.Nil {
		w.UUID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	return nil
}

// MatchesKeyword reports whether the normalized inbound text equals one of
// the workflow's trigger keywords
func (w *Workflow) MatchesKeyword(normalizedText string) bool {
	for _, kw := range strings.Split(w.TriggerKeywords, ",") {
		if strings.ToLower(strings.TrimSpace(kw)) == normalizedText {
			return true
		}
	}
	return false
}

// WorkflowFilter represents filter criteria for workflows
type WorkflowFilter struct {
	ID       *uint      `json:"id,omitempty"`
	UUID     *uuid.UUID `json:"uuid,omitempty"`
	VendorID *uint      `json:"vendor_id,omitempty"`
	IsActive *bool      `json:"is_active,omitempty"`
}

// WorkflowSessionStatus represents the state of a workflow session
type WorkflowSessionStatus string

const (
	WorkflowSessionStatusActive    WorkflowSessionStatus = "active"
	WorkflowSessionStatusCompleted WorkflowSessionStatus = "completed"
	WorkflowSessionStatusDropped   WorkflowSessionStatus = "dropped"
	WorkflowSessionStatusError     WorkflowSessionStatus = "error"
)

// Valid checks if the status is valid
func (s WorkflowSessionStatus) Valid() bool {
	switch s {
	case WorkflowSessionStatusActive, WorkflowSessionStatusCompleted,
		WorkflowSessionStatusDropped, WorkflowSessionStatusError:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for WorkflowSessionStatus
func (s *WorkflowSessionStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = WorkflowSessionStatus(v)
	case []byte:
		*s = WorkflowSessionStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into WorkflowSessionStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for WorkflowSessionStatus
func (s WorkflowSessionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid WorkflowSessionStatus: %s", s)
	}
	return string(s), nil
}

// WorkflowSession is one conversation's live cursor position within a
// workflow graph. At most one active session exists per conversation;
// starting a new one marks any prior active session dropped.
type WorkflowSession struct {
	ID             uint                  `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:uk_workflow_sessions_uuid" json:"uuid"`
	ConversationID uint                  `gorm:"not null;index:idx_workflow_sessions_conversation_id" json:"conversation_id"`
	WorkflowID     uint                  `gorm:"not null;index:idx_workflow_sessions_workflow_id" json:"workflow_id"`
	CurrentNodeID  string                `gorm:"size:128;not null" json:"current_node_id"`
	Status         WorkflowSessionStatus `gorm:"type:varchar(12);not null;default:'active';index:idx_workflow_sessions_status" json:"status"`
	CreatedAt      time.Time             `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt      *time.Time            `json:"updated_at,omitempty"`

	// Relations
	Workflow *Workflow `gorm:"foreignKey:WorkflowID;references:ID" json:"workflow,omitempty"`
}

// TableName returns the table name for the model
func (WorkflowSession) TableName() string {
	return "workflow_sessions"
}

// BeforeCreate is called before creating a new record
func (s *WorkflowSession) BeforeCreate() error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.Status == "" {
		s.Status = WorkflowSessionStatusActive
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return nil
}

// WorkflowSessionFilter represents filter criteria for workflow sessions
type WorkflowSessionFilter struct {
	ID             *uint                  `json:"id,omitempty"`
	ConversationID *uint                  `json:"conversation_id,omitempty"`
	WorkflowID     *uint                  `json:"workflow_id,omitempty"`
	Status         *WorkflowSessionStatus `json:"status,omitempty"`
}
