// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/middleware"
	businessflow "github.com/simurgh-io/simurgh/business_flow"
)

// WebhookHandlerInterface defines the contract for provider webhook handlers
type WebhookHandlerInterface interface {
	HandleVapiEvent(c fiber.Ctx) error
}

// WebhookHandler handles provider push events. It never returns a non-2xx
// status for a processing failure: the provider treats those as delivery
// failures and retries, amplifying whatever went wrong.
type WebhookHandler struct {
	webhookFlow businessflow.WebhookFlow
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhookFlow businessflow.WebhookFlow) *WebhookHandler {
	return &WebhookHandler{
		webhookFlow: webhookFlow,
	}
}

// HandleVapiEvent receives one provider event envelope
func (h *WebhookHandler) HandleVapiEvent(c fiber.Ctx) error {
	// The raw body outlives this request as the event-log payload
	payload := make([]byte, len(c.Body()))
	copy(payload, c.Body())

	var envelope dto.WebhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		log.Printf("webhook: malformed payload: %v", err)
		middleware.RecordWebhookEvent("malformed", true)
		return c.Status(fiber.StatusOK).JSON(dto.WebhookAckResponse{
			Received: true,
			Error:    "malformed payload",
		})
	}

	msg := &envelope.Message

	// assistant-request is request/response: the provider is waiting on the
	// call configuration and will abandon the call if we are slow
	if msg.EventType() == dto.EventAssistantRequest {
		ctx, cancel := h.createRequestContext(c, 5*time.Second)
		defer cancel()
		resp := h.webhookFlow.SelectAssistant(ctx, payload, msg)
		middleware.RecordWebhookEvent(msg.Type, resp.Error != "")
		return c.Status(fiber.StatusOK).JSON(resp)
	}

	ctx, cancel := h.createRequestContext(c, 30*time.Second)
	defer cancel()
	ack := h.webhookFlow.ProcessEvent(ctx, payload, msg)
	middleware.RecordWebhookEvent(msg.Type, ack.Error != "")
	return c.Status(fiber.StatusOK).JSON(ack)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *WebhookHandler) createRequestContext(c fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, "request_id", c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, "ip_address", c.IP())
	return ctx, cancel
}
