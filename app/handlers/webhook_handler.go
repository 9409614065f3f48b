// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"log"

	"github.com/chatrasa/chatrasa/app/dto"
	businessflow "github.com/chatrasa/chatrasa/business_flow"
	"github.com/gofiber/fiber/v3"
)

// WebhookHandlerInterface defines the contract for webhook handlers
type WebhookHandlerInterface interface {
	Verify(c fiber.Ctx) error
	Receive(c fiber.Ctx) error
}

// WebhookHandler handles the gateway's webhook endpoints: the
// subscription handshake and event intake.
type WebhookHandler struct {
	webhookFlow businessflow.WebhookFlow
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhookFlow businessflow.WebhookFlow) *WebhookHandler {
	return &WebhookHandler{webhookFlow: webhookFlow}
}

// Verify handles the gateway's subscription handshake: echo the challenge
// when the mode and token match, 403 otherwise.
func (h *WebhookHandler) Verify(c fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if h.webhookFlow.VerifySubscription(mode, token) {
		return c.Status(fiber.StatusOK).SendString(challenge)
	}
	return c.SendStatus(fiber.StatusForbidden)
}

// Receive handles event intake. The gateway retry-storms on non-2xx, so
// this endpoint acknowledges unconditionally; processing failures are
// logged, never surfaced.
func (h *WebhookHandler) Receive(c fiber.Ctx) error {
	var payload dto.WebhookPayload
	if err := c.Bind().JSON(&payload); err != nil {
		log.Printf("[Webhook] unparseable event payload: %v", err)
		return c.SendStatus(fiber.StatusOK)
	}

	if err := h.webhookFlow.ProcessEvent(c.Context(), &payload); err != nil {
		log.Printf("[Webhook] event processing failed: %v", err)
	}
	return c.SendStatus(fiber.StatusOK)
}
