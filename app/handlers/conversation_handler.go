package handlers

import (
	"context"
	"log"
	"time"

	"github.com/chatrasa/chatrasa/app/dto"
	businessflow "github.com/chatrasa/chatrasa/business_flow"
	"github.com/gofiber/fiber/v3"
)

// ConversationHandlerInterface defines the contract for conversation handlers
type ConversationHandlerInterface interface {
	ListConversations(c fiber.Ctx) error
	ListMessages(c fiber.Ctx) error
}

// ConversationHandler exposes the vendor's inbox
type ConversationHandler struct {
	conversationFlow businessflow.ConversationFlow
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversationFlow businessflow.ConversationFlow) *ConversationHandler {
	return &ConversationHandler{conversationFlow: conversationFlow}
}

func (h *ConversationHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ConversationHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ListConversations returns the vendor's conversations ordered by recency
func (h *ConversationHandler) ListConversations(c fiber.Ctx) error {
	vendorID, ok := c.Locals("vendor_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Vendor ID not found in context", "MISSING_VENDOR_ID", nil)
	}

	page, pageSize := paginationParams(c)

	result, err := h.conversationFlow.ListConversations(h.createRequestContext(c, "/api/v1/conversations"), vendorID, page, pageSize)
	if err != nil {
		if businessflow.IsInvalidPage(err) || businessflow.IsInvalidPageSize(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid pagination parameters", "INVALID_PAGINATION", nil)
		}
		log.Println("Conversation listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Conversation listing failed", "CONVERSATION_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Conversations retrieved successfully", result)
}

// ListMessages returns the message history of one conversation
func (h *ConversationHandler) ListMessages(c fiber.Ctx) error {
	vendorID, ok := c.Locals("vendor_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Vendor ID not found in context", "MISSING_VENDOR_ID", nil)
	}

	conversationUUID := c.Params("uuid")
	if conversationUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Conversation UUID is required", "MISSING_CONVERSATION_UUID", nil)
	}

	page, pageSize := paginationParams(c)

	result, err := h.conversationFlow.ListMessages(h.createRequestContext(c, "/api/v1/conversations/:uuid/messages"), vendorID, conversationUUID, page, pageSize)
	if err != nil {
		if businessflow.IsConversationNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Conversation not found", "CONVERSATION_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidPage(err) || businessflow.IsInvalidPageSize(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid pagination parameters", "INVALID_PAGINATION", nil)
		}
		log.Println("Message listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Message listing failed", "MESSAGE_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Messages retrieved successfully", result)
}

func (h *ConversationHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}
