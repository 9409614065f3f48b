package handlers

import (
	"context"
	"log"
	"time"

	"github.com/chatrasa/chatrasa/app/dto"
	businessflow "github.com/chatrasa/chatrasa/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// WorkflowHandlerInterface defines the contract for workflow handlers
type WorkflowHandlerInterface interface {
	CreateWorkflow(c fiber.Ctx) error
	UpdateWorkflow(c fiber.Ctx) error
	ListWorkflows(c fiber.Ctx) error
}

// WorkflowHandler handles keyword-triggered workflow management
type WorkflowHandler struct {
	workflowFlow businessflow.WorkflowFlow
	validator    *validator.Validate
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(workflowFlow businessflow.WorkflowFlow) *WorkflowHandler {
	return &WorkflowHandler{
		workflowFlow: workflowFlow,
		validator:    validator.New(),
	}
}

func (h *WorkflowHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *WorkflowHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateWorkflow registers a new keyword-triggered workflow after
// validating its node graph
func (h *WorkflowHandler) CreateWorkflow(c fiber.Ctx) error {
	vendorID, ok := c.Locals("vendor_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Vendor ID not found in context", "MISSING_VENDOR_ID", nil)
	}

	var req dto.CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}
	req.VendorID = vendorID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.workflowFlow.CreateWorkflow(h.createRequestContext(c, "/api/v1/workflows"), &req, metadata)
	if err != nil {
		if businessflow.IsWorkflowInvalidGraph(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid workflow graph", "WORKFLOW_INVALID_GRAPH", err.Error())
		}
		log.Println("Workflow creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Workflow creation failed", "WORKFLOW_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Workflow created successfully", result)
}

// UpdateWorkflow updates a workflow's keywords, graph, or active flag
func (h *WorkflowHandler) UpdateWorkflow(c fiber.Ctx) error {
	vendorID, ok := c.Locals("vendor_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Vendor ID not found in context", "MISSING_VENDOR_ID", nil)
	}

	workflowUUID := c.Params("uuid")
	if workflowUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Workflow UUID is required", "MISSING_WORKFLOW_UUID", nil)
	}

	var req dto.UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}
	req.UUID = workflowUUID
	req.VendorID = vendorID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.workflowFlow.UpdateWorkflow(h.createRequestContext(c, "/api/v1/workflows/:uuid"), &req, metadata)
	if err != nil {
		if businessflow.IsWorkflowNotFound(err) || businessflow.IsWorkflowAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Workflow not found", "WORKFLOW_NOT_FOUND", nil)
		}
		if businessflow.IsWorkflowInvalidGraph(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid workflow graph", "WORKFLOW_INVALID_GRAPH", err.Error())
		}
		log.Println("Workflow update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Workflow update failed", "WORKFLOW_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Workflow updated successfully", result)
}

// ListWorkflows returns the authenticated vendor's workflows
func (h *WorkflowHandler) ListWorkflows(c fiber.Ctx) error {
	vendorID, ok := c.Locals("vendor_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Vendor ID not found in context", "MISSING_VENDOR_ID", nil)
	}

	page, pageSize := paginationParams(c)

	result, err := h.workflowFlow.ListWorkflows(h.createRequestContext(c, "/api/v1/workflows"), vendorID, page, pageSize)
	if err != nil {
		if businessflow.IsInvalidPage(err) || businessflow.IsInvalidPageSize(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid pagination parameters", "INVALID_PAGINATION", nil)
		}
		log.Println("Workflow listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Workflow listing failed", "WORKFLOW_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Workflows retrieved successfully", result)
}

func (h *WorkflowHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}
