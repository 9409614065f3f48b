// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/chatrasa/chatrasa/app/dto"
	businessflow "github.com/chatrasa/chatrasa/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	ImportRecipients(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	campaignFlow businessflow.CampaignFlow
	validator    *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow) *CampaignHandler {
	return &CampaignHandler{
		campaignFlow: campaignFlow,
		validator:    validator.New(),
	}
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateCampaign creates a template campaign and, when enqueue is set,
// fans a queued message out to every recipient
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	vendorID, ok := c.Locals("vendor_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Vendor ID not found in context", "MISSING_VENDOR_ID", nil)
	}

	var req dto.CreateCampaignRequest
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

	result, err := h.campaignFlow.CreateCampaign(h.createRequestContext(c, "/api/v1/campaigns"), &req, metadata)
	if err != nil {
		if businessflow.IsCampaignRecipientsRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "At least one valid recipient is required", "CAMPAIGN_RECIPIENTS_REQUIRED", nil)
		}
		log.Println("Campaign creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// ImportRecipients parses an uploaded spreadsheet and returns the
// normalized phone numbers found in it
func (h *CampaignHandler) ImportRecipients(c fiber.Ctx) error {
	if _, ok := c.Locals("vendor_id").(uint); !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Vendor ID not found in context", "MISSING_VENDOR_ID", nil)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Missing file upload", "MISSING_FILE", nil)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Could not open uploaded file", "INVALID_FILE", nil)
	}
	defer file.Close()

	recipients, err := h.campaignFlow.ImportRecipients(h.createRequestContext(c, "/api/v1/campaigns/import-recipients"), file)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Could not parse uploaded file", "INVALID_FILE", err.Error())
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Recipients imported successfully", dto.ImportRecipientsResponse{
		Recipients: recipients,
		Total:      len(recipients),
	})
}

// ListCampaigns returns the authenticated vendor's campaigns, newest first
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	vendorID, ok := c.Locals("vendor_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Vendor ID not found in context", "MISSING_VENDOR_ID", nil)
	}

	page, pageSize := paginationParams(c)

	result, err := h.campaignFlow.ListCampaigns(h.createRequestContext(c, "/api/v1/campaigns"), vendorID, page, pageSize)
	if err != nil {
		if businessflow.IsInvalidPage(err) || businessflow.IsInvalidPageSize(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid pagination parameters", "INVALID_PAGINATION", nil)
		}
		log.Println("Campaign listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign listing failed", "CAMPAIGN_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns retrieved successfully", result)
}

// GetCampaign returns a single campaign with its derived status
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	vendorID, ok := c.Locals("vendor_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Vendor ID not found in context", "MISSING_VENDOR_ID", nil)
	}

	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	result, err := h.campaignFlow.GetCampaign(h.createRequestContext(c, "/api/v1/campaigns/:uuid"), vendorID, campaignUUID)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) || businessflow.IsCampaignAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		log.Println("Campaign lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign lookup failed", "CAMPAIGN_LOOKUP_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

func (h *CampaignHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func paginationParams(c fiber.Ctx) (int, int) {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.Query("page_size", "20"))
	if err != nil {
		pageSize = 20
	}
	return page, pageSize
}
