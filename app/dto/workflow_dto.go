package dto

import (
	"time"

	"github.com/chatrasa/chatrasa/models"
)

// CreateWorkflowRequest represents the request to create an automation
// workflow. The graph is validated before the workflow is stored.
type CreateWorkflowRequest struct {
	VendorID        uint                 `json:"-"`
	Name            string               `json:"name" validate:"required,max=255"`
	TriggerKeywords string               `json:"trigger_keywords" validate:"required"`
	IsActive        *bool                `json:"is_active,omitempty"`
	Graph           models.WorkflowGraph `json:"graph" validate:"required"`
}

// UpdateWorkflowRequest represents the request to update a workflow
type UpdateWorkflowRequest struct {
	UUID            string                `json:"-"`
	VendorID        uint                  `json:"-"`
	Name            *string               `json:"name,omitempty" validate:"omitempty,max=255"`
	TriggerKeywords *string               `json:"trigger_keywords,omitempty"`
	IsActive        *bool                 `json:"is_active,omitempty"`
	Graph           *models.WorkflowGraph `json:"graph,omitempty"`
}

// WorkflowResponse represents a workflow in responses
type WorkflowResponse struct {
	UUID            string               `json:"uuid"`
	Name            string               `json:"name"`
	TriggerKeywords string               `json:"trigger_keywords"`
	IsActive        bool                 `json:"is_active"`
	Graph           models.WorkflowGraph `json:"graph"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       *time.Time           `json:"updated_at,omitempty"`
}

// ListWorkflowsResponse represents a page of workflows
type ListWorkflowsResponse struct {
	Items []WorkflowResponse `json:"items"`
	Total int64              `json:"total"`
}
