package businessflow

import (
	"context"

	"github.com/chatrasa/chatrasa/app/dto"
	"github.com/chatrasa/chatrasa/models"
	"github.com/chatrasa/chatrasa/repository"
	"github.com/chatrasa/chatrasa/utils"
	"github.com/google/uuid"
)

// WorkflowFlow handles automation workflow management. Graphs are
// validated on every write so the engine can traverse without defensive
// re-checks.
type WorkflowFlow interface {
	CreateWorkflow(ctx context.Context, req *dto.CreateWorkflowRequest, metadata *ClientMetadata) (*dto.WorkflowResponse, error)
	UpdateWorkflow(ctx context.Context, req *dto.UpdateWorkflowRequest, metadata *ClientMetadata) (*dto.WorkflowResponse, error)
	ListWorkflows(ctx context.Context, vendorID uint, page, pageSize int) (*dto.ListWorkflowsResponse, error)
}

// WorkflowFlowImpl implements WorkflowFlow.
type WorkflowFlowImpl struct {
	workflowRepo repository.WorkflowRepository
}

// NewWorkflowFlow creates a new workflow flow instance.
func NewWorkflowFlow(workflowRepo repository.WorkflowRepository) WorkflowFlow {
	return &WorkflowFlowImpl{workflowRepo: workflowRepo}
}

// CreateWorkflow validates and stores a new automation workflow
func (s *WorkflowFlowImpl) CreateWorkflow(ctx context.Context, req *dto.CreateWorkflowRequest, metadata *ClientMetadata) (*dto.WorkflowResponse, error) {
	if err := req.Graph.Validate(); err != nil {
		return nil, NewBusinessError("WORKFLOW_INVALID_GRAPH", err.Error(), ErrWorkflowInvalidGraph)
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	workflow := &models.Workflow{
		VendorID:        req.VendorID,
		Name:            req.Name,
		TriggerKeywords: req.TriggerKeywords,
		IsActive:        &isActive,
		Graph:           req.Graph,
	}
	if err := s.workflowRepo.Save(ctx, workflow); err != nil {
		return nil, NewBusinessError("WORKFLOW_CREATION_FAILED", "failed to create workflow", err)
	}

	resp := ToWorkflowDTO(*workflow)
	return &resp, nil
}

// UpdateWorkflow applies a partial update, re-validating the graph when
// it changes
func (s *WorkflowFlowImpl) UpdateWorkflow(ctx context.Context, req *dto.UpdateWorkflowRequest, metadata *ClientMetadata) (*dto.WorkflowResponse, error) {
	parsed, err := uuid.Parse(req.UUID)
	if err != nil {
		return nil, NewBusinessError("WORKFLOW_NOT_FOUND", "workflow not found", ErrWorkflowNotFound)
	}
	workflow, err := s.workflowRepo.ByUUID(ctx, parsed.String())
	if err != nil {
		return nil, NewBusinessError("WORKFLOW_LOOKUP_FAILED", "failed to look up workflow", err)
	}
	if workflow == nil {
		return nil, NewBusinessError("WORKFLOW_NOT_FOUND", "workflow not found", ErrWorkflowNotFound)
	}
	if workflow.VendorID != req.VendorID {
		return nil, NewBusinessError("WORKFLOW_ACCESS_DENIED", "workflow belongs to another vendor", ErrWorkflowAccessDenied)
	}

	if req.Graph != nil {
		if err := req.Graph.Validate(); err != nil {
			return nil, NewBusinessError("WORKFLOW_INVALID_GRAPH", err.Error(), ErrWorkflowInvalidGraph)
		}
		workflow.Graph = *req.Graph
	}
	if req.Name != nil {
		workflow.Name = *req.Name
	}
	if req.TriggerKeywords != nil {
		workflow.TriggerKeywords = *req.TriggerKeywords
	}
	if req.IsActive != nil {
		workflow.IsActive = req.IsActive
	}
	workflow.UpdatedAt = utils.UTCNowPtr()

	if err := s.workflowRepo.Update(ctx, workflow); err != nil {
		return nil, NewBusinessError("WORKFLOW_UPDATE_FAILED", "failed to update workflow", err)
	}

	resp := ToWorkflowDTO(*workflow)
	return &resp, nil
}

// ListWorkflows returns a page of the vendor's workflows, newest first
func (s *WorkflowFlowImpl) ListWorkflows(ctx context.Context, vendorID uint, page, pageSize int) (*dto.ListWorkflowsResponse, error) {
	if err := validatePagination(page, pageSize); err != nil {
		return nil, err
	}
	filter := models.WorkflowFilter{VendorID: &vendorID}
	total, err := s.workflowRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("WORKFLOW_LIST_FAILED", "failed to count workflows", err)
	}
	workflows, err := s.workflowRepo.ByFilter(ctx, filter, "created_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("WORKFLOW_LIST_FAILED", "failed to list workflows", err)
	}

	items := make([]dto.WorkflowResponse, 0, len(workflows))
	for _, w := range workflows {
		items = append(items, ToWorkflowDTO(*w))
	}
	return &dto.ListWorkflowsResponse{Items: items, Total: total}, nil
}
