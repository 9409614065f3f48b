package handlers

import (
	"log"

	"github.com/chatrasa/chatrasa/app/dto"
	businessflow "github.com/chatrasa/chatrasa/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// FlowHandlerInterface defines the contract for flow exchange handlers
type FlowHandlerInterface interface {
	Exchange(c fiber.Ctx) error
}

// FlowHandler handles the encrypted form data exchange endpoint. The
// response body is an opaque encrypted blob, so it goes out as plain
// text, never JSON.
type FlowHandler struct {
	exchangeFlow businessflow.FlowExchangeFlow
	validator    *validator.Validate
}

// NewFlowHandler creates a new flow handler
func NewFlowHandler(exchangeFlow businessflow.FlowExchangeFlow) *FlowHandler {
	return &FlowHandler{
		exchangeFlow: exchangeFlow,
		validator:    validator.New(),
	}
}

// Exchange handles one encrypted exchange step: 400 for malformed
// requests, 500 with an empty body when nothing decrypts, 200 text/plain
// with the encrypted response otherwise.
func (h *FlowHandler) Exchange(c fiber.Ctx) error {
	var req dto.FlowExchangeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	encrypted, err := h.exchangeFlow.Exchange(c.Context(), &req)
	if err != nil {
		log.Printf("[FlowExchange] exchange failed: %v", err)
		// the caller re-requests keys on a bodyless 500; SendStatus
		// would fill the body with the status text
		return c.Status(fiber.StatusInternalServerError).Send(nil)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlain)
	return c.Status(fiber.StatusOK).SendString(encrypted)
}
