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

// VendorHandlerInterface defines the contract for vendor handlers
type VendorHandlerInterface interface {
	Connect(c fiber.Ctx) error
	UpdateCredentials(c fiber.Ctx) error
	ProvisionFlowKeys(c fiber.Ctx) error
	GetVendor(c fiber.Ctx) error
}

// VendorHandler handles vendor onboarding and credential management
type VendorHandler struct {
	vendorFlow businessflow.VendorFlow
	validator  *validator.Validate
}

// NewVendorHandler creates a new vendor handler
func NewVendorHandler(vendorFlow businessflow.VendorFlow) *VendorHandler {
	return &VendorHandler{
		vendorFlow: vendorFlow,
		validator:  validator.New(),
	}
}

func (h *VendorHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *VendorHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Connect handles vendor registration. This is the bootstrap endpoint:
// its response carries the API token the other management endpoints need.
func (h *VendorHandler) Connect(c fiber.Ctx) error {
	var req dto.ConnectVendorRequest
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

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.vendorFlow.ConnectVendor(h.createRequestContext(c, "/api/v1/vendors"), &req, metadata)
	if err != nil {
		if businessflow.IsVendorAlreadyExists(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Vendor already exists", "VENDOR_ALREADY_EXISTS", nil)
		}
		log.Println("Vendor registration failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Vendor registration failed", "VENDOR_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Vendor connected successfully", result)
}

// UpdateCredentials rotates the authenticated vendor's gateway token
func (h *VendorHandler) UpdateCredentials(c fiber.Ctx) error {
	vendorID, ok := c.Locals("vendor_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Vendor ID not found in context", "MISSING_VENDOR_ID", nil)
	}

	var req dto.UpdateVendorCredentialsRequest
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

	if err := h.vendorFlow.UpdateCredentials(h.createRequestContext(c, "/api/v1/vendors/credentials"), &req, metadata); err != nil {
		if businessflow.IsVendorNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Vendor not found", "VENDOR_NOT_FOUND", nil)
		}
		log.Println("Credential rotation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Credential rotation failed", "VENDOR_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Credentials updated successfully", nil)
}

// ProvisionFlowKeys generates and stores the key pair of a remote form
func (h *VendorHandler) ProvisionFlowKeys(c fiber.Ctx) error {
	vendorID, ok := c.Locals("vendor_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Vendor ID not found in context", "MISSING_VENDOR_ID", nil)
	}

	var req dto.ProvisionFlowKeysRequest
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

	result, err := h.vendorFlow.ProvisionFlowKeys(h.createRequestContext(c, "/api/v1/vendors/flow-keys"), &req, metadata)
	if err != nil {
		if businessflow.IsVendorNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Vendor not found", "VENDOR_NOT_FOUND", nil)
		}
		log.Println("Flow key provisioning failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Flow key provisioning failed", "FLOW_KEYGEN_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Flow keys provisioned successfully", result)
}

// GetVendor returns the authenticated vendor's profile
func (h *VendorHandler) GetVendor(c fiber.Ctx) error {
	vendorID, ok := c.Locals("vendor_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Vendor ID not found in context", "MISSING_VENDOR_ID", nil)
	}

	result, err := h.vendorFlow.GetVendor(h.createRequestContext(c, "/api/v1/vendors/me"), vendorID)
	if err != nil {
		if businessflow.IsVendorNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Vendor not found", "VENDOR_NOT_FOUND", nil)
		}
		log.Println("Vendor lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Vendor lookup failed", "VENDOR_LOOKUP_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Vendor retrieved successfully", result)
}

func (h *VendorHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}
