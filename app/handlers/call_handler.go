// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/middleware"
	businessflow "github.com/simurgh-io/simurgh/business_flow"
)

// CallHandlerInterface defines the contract for call operation handlers
type CallHandlerInterface interface {
	GetCall(c fiber.Ctx) error
	SyncCall(c fiber.Ctx) error
	SyncSweep(c fiber.Ctx) error
	DispatchCampaign(c fiber.Ctx) error
}

// CallHandler handles call remediation and dispatch HTTP requests
type CallHandler struct {
	syncFlow     businessflow.SyncFlow
	dispatchFlow businessflow.DispatchFlow
	validator    *validator.Validate
}

func (h *CallHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CallHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// NewCallHandler creates a new call handler
func NewCallHandler(syncFlow businessflow.SyncFlow, dispatchFlow businessflow.DispatchFlow) *CallHandler {
	return &CallHandler{
		syncFlow:     syncFlow,
		dispatchFlow: dispatchFlow,
		validator:    validator.New(),
	}
}

// GetCall returns the operator view of one call
func (h *CallHandler) GetCall(c fiber.Ctx) error {
	callUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid call UUID", "INVALID_CALL_UUID", nil)
	}

	ctx, cancel := h.createRequestContext(c, 10*time.Second)
	defer cancel()

	call, err := h.syncFlow.GetCall(ctx, callUUID)
	if err != nil {
		if businessflow.IsCallNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Call not found", "CALL_NOT_FOUND", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load call", "CALL_LOOKUP_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Call retrieved successfully", call)
}

// SyncCall force-syncs one call against the provider
func (h *CallHandler) SyncCall(c fiber.Ctx) error {
	callUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid call UUID", "INVALID_CALL_UUID", nil)
	}

	ctx, cancel := h.createRequestContext(c, 30*time.Second)
	defer cancel()

	result, err := h.syncFlow.SyncCall(ctx, callUUID)
	if err != nil {
		if businessflow.IsCallNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Call not found", "CALL_NOT_FOUND", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to sync call", "CALL_SYNC_FAILED", err.Error())
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Call synced successfully", result)
}

// SyncSweep runs one reconciliation sweep immediately
func (h *CallHandler) SyncSweep(c fiber.Ctx) error {
	// Sweeps visit up to a full batch of stuck calls against the provider;
	// give them room
	ctx, cancel := h.createRequestContext(c, 2*time.Minute)
	defer cancel()

	result, err := h.syncFlow.SweepStuckCalls(ctx)
	if err != nil {
		if businessflow.IsSweepInProgress(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "A sweep is already running", "SWEEP_IN_PROGRESS", nil)
		}
		middleware.RecordSweep("failed", 0)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Sweep failed", "SWEEP_FAILED", err.Error())
	}

	middleware.RecordSweep("completed", result.Synced)
	return h.SuccessResponse(c, fiber.StatusOK, "Sweep completed", result)
}

// DispatchCampaign starts batch dispatch for a campaign's pending contacts
func (h *CallHandler) DispatchCampaign(c fiber.Ctx) error {
	campaignUUID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign UUID", "INVALID_CAMPAIGN_UUID", nil)
	}

	var req dto.DispatchCampaignRequest
	if len(c.Body()) > 0 {
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
	}

	// Dispatch paces itself between chunks; a large campaign takes a while
	ctx, cancel := h.createRequestContext(c, 10*time.Minute)
	defer cancel()

	result, err := h.dispatchFlow.DispatchCampaign(ctx, campaignUUID, req.Limit)
	if err != nil {
		switch {
		case businessflow.IsCampaignNotFound(err):
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		case businessflow.IsCampaignNotActive(err):
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign is not active", "CAMPAIGN_NOT_ACTIVE", nil)
		case businessflow.IsNoPendingContacts(err):
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign has no pending contacts", "NO_PENDING_CONTACTS", nil)
		case businessflow.IsPhoneNumberResolution(err):
			return h.ErrorResponse(c, fiber.StatusBadGateway, "Failed to resolve provider phone number", "PHONE_NUMBER_RESOLUTION_FAILED", err.Error())
		default:
			return h.ErrorResponse(c, fiber.StatusInternalServerError, "Dispatch failed", "DISPATCH_FAILED", err.Error())
		}
	}

	middleware.RecordDispatch(result.Dispatched, result.Failed)
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign dispatched", result)
}

// createRequestContext creates a context with request-scoped values for observability and timeout
func (h *CallHandler) createRequestContext(c fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, "request_id", c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, "ip_address", c.IP())
	return ctx, cancel
}
