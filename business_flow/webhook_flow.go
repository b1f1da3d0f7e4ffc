// Package businessflow contains the core business logic and use cases for webhook ingestion
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/services"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/repository"
	"github.com/simurgh-io/simurgh/utils"
)

const (
	assistantCacheKeyPrefix = "assistant:"
	assistantCacheTTL       = 10 * time.Minute

	// assistantRequestBudget bounds the synchronous assistant-selection
	// response; the provider abandons the call setup if we answer late
	assistantRequestBudget = 4 * time.Second
)

// WebhookFlow ingests provider push events. The contract is
// acknowledge-always: processing failure is recorded on the event-log entry,
// never surfaced to the provider as a non-2xx response.
type WebhookFlow interface {
	// ProcessEvent persists the raw payload and dispatches it to the state
	// machine. The returned ack is always success-shaped.
	ProcessEvent(ctx context.Context, payload []byte, msg *dto.WebhookMessage) *dto.WebhookAckResponse
	// SelectAssistant answers the synchronous assistant-request event for an
	// inbound call
	SelectAssistant(ctx context.Context, payload []byte, msg *dto.WebhookMessage) *dto.AssistantSelectionResponse
}

// WebhookFlowImpl implements the webhook ingestion flow
type WebhookFlowImpl struct {
	callRepo       repository.CallRepository
	contactRepo    repository.ContactRepository
	campaignRepo   repository.CampaignRepository
	webhookLogRepo repository.WebhookLogRepository
	lifecycle      CallLifecycleFlow
	vapiClient     services.VapiClient
	realtime       services.RealtimePublisher
	cache          *redis.Client

	// defaultAssistantID answers assistant requests that cannot be traced to
	// a campaign
	defaultAssistantID string
}

// NewWebhookFlow creates a new webhook ingestion flow instance
func NewWebhookFlow(
	callRepo repository.CallRepository,
	contactRepo repository.ContactRepository,
	campaignRepo repository.CampaignRepository,
	webhookLogRepo repository.WebhookLogRepository,
	lifecycle CallLifecycleFlow,
	vapiClient services.VapiClient,
	realtime services.RealtimePublisher,
	cache *redis.Client,
	defaultAssistantID string,
) WebhookFlow {
	return &WebhookFlowImpl{
		callRepo:           callRepo,
		contactRepo:        contactRepo,
		campaignRepo:       campaignRepo,
		webhookLogRepo:     webhookLogRepo,
		lifecycle:          lifecycle,
		vapiClient:         vapiClient,
		realtime:           realtime,
		cache:              cache,
		defaultAssistantID: defaultAssistantID,
	}
}

// ProcessEvent handles one provider notification event
func (f *WebhookFlowImpl) ProcessEvent(ctx context.Context, payload []byte, msg *dto.WebhookMessage) *dto.WebhookAckResponse {
	entry := f.logEvent(ctx, payload, msg)

	if err := f.processEvent(ctx, msg); err != nil {
		f.markError(ctx, entry, err)
		return &dto.WebhookAckResponse{Received: true, Error: err.Error()}
	}

	f.markProcessed(ctx, entry)
	return &dto.WebhookAckResponse{Received: true}
}

func (f *WebhookFlowImpl) processEvent(ctx context.Context, msg *dto.WebhookMessage) error {
	eventType := msg.EventType()
	if eventType == dto.EventUnknown {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, msg.Type)
	}

	call, err := f.resolveCall(ctx, msg)
	if err != nil {
		return err
	}

	switch eventType {
	case dto.EventStatusUpdate:
		status := msg.Status
		if status == "" && msg.Call != nil {
			status = msg.Call.Status
		}
		endedReason := msg.EndedReason
		if endedReason == "" && msg.Call != nil {
			endedReason = msg.Call.EndedReason
		}
		result, err := f.lifecycle.ApplyStatusUpdate(ctx, call, status, endedReason)
		if err != nil {
			return err
		}
		if result.Decision == TransitionRejected {
			log.Printf("webhook: status-update rejected for call %s: %s", call.UUID, result.Reason)
		}
		return nil

	case dto.EventConversationUpdate, dto.EventSpeechUpdate:
		_, err := f.lifecycle.PromoteToInProgress(ctx, call)
		return err

	case dto.EventTranscript:
		if _, err := f.lifecycle.PromoteToInProgress(ctx, call); err != nil {
			return err
		}
		if msg.Transcript != "" && msg.TranscriptType != "partial" {
			f.realtime.PublishCallEvent(ctx, dto.RealtimeTranscriptChunk, call.UUID.String(), map[string]any{
				"role":       msg.Role,
				"transcript": msg.Transcript,
			})
		}
		return nil

	case dto.EventHang:
		_, err := f.lifecycle.ForceCompleted(ctx, call)
		return err

	case dto.EventEndOfCallReport:
		report := f.buildTerminalReport(msg)
		_, _, err := f.lifecycle.FinalizeCall(ctx, call, report)
		return err

	case dto.EventAssistantRequest:
		// Answered synchronously via SelectAssistant; reaching here means the
		// router misdirected it
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, msg.Type)
	}
}

// SelectAssistant resolves which call configuration an inbound call should
// use: the campaign behind the most recent outbound call to the caller,
// falling back to the generic default.
func (f *WebhookFlowImpl) SelectAssistant(ctx context.Context, payload []byte, msg *dto.WebhookMessage) *dto.AssistantSelectionResponse {
	entry := f.logEvent(ctx, payload, msg)

	ctx, cancel := context.WithTimeout(ctx, assistantRequestBudget)
	defer cancel()

	assistantID := f.defaultAssistantID

	callerNumber := ""
	if msg.Customer != nil {
		callerNumber = msg.Customer.Number
	}
	if callerNumber == "" && msg.Call != nil {
		callerNumber = msg.Call.CustomerNumber()
	}

	if callerNumber != "" {
		since := utils.UTCNowAdd(-utils.InboundLinkLookback)
		outbound, err := f.callRepo.LatestOutboundToNumber(ctx, utils.NormalizePhoneNumber(callerNumber), since)
		if err == nil && outbound != nil && outbound.CampaignID != nil {
			if campaign, err := f.campaignRepo.ByID(ctx, *outbound.CampaignID); err == nil && campaign != nil && campaign.AssistantID != "" {
				assistantID = campaign.AssistantID
			}
		}
	}

	if assistantID == "" {
		err := fmt.Errorf("no assistant configured for caller %s", callerNumber)
		f.markError(ctx, entry, err)
		return &dto.AssistantSelectionResponse{Error: err.Error()}
	}

	assistant := f.fetchAssistant(ctx, assistantID)
	f.markProcessed(ctx, entry)
	if assistant != nil {
		return &dto.AssistantSelectionResponse{Assistant: assistant}
	}
	// Returning the id alone lets the provider resolve the configuration on
	// its side, which stays inside the response budget when our fetch is slow
	return &dto.AssistantSelectionResponse{AssistantID: assistantID}
}

// fetchAssistant returns the full assistant definition, preferring the cache
func (f *WebhookFlowImpl) fetchAssistant(ctx context.Context, assistantID string) *dto.VapiAssistant {
	key := assistantCacheKeyPrefix + assistantID

	if f.cache != nil {
		if raw, err := f.cache.Get(ctx, key).Bytes(); err == nil {
			var assistant dto.VapiAssistant
			if err := json.Unmarshal(raw, &assistant); err == nil {
				return &assistant
			}
		}
	}

	assistant, err := f.vapiClient.GetAssistant(ctx, assistantID)
	if err != nil {
		log.Printf("webhook: assistant fetch failed id=%s: %v", assistantID, err)
		return nil
	}

	if f.cache != nil {
		if raw, err := json.Marshal(assistant); err == nil {
			if err := f.cache.Set(ctx, key, raw, assistantCacheTTL).Err(); err != nil {
				log.Printf("webhook: assistant cache write failed id=%s: %v", assistantID, err)
			}
		}
	}
	return assistant
}

// resolveCall finds the local call a message refers to, synthesizing a row
// for inbound calls we have never seen
func (f *WebhookFlowImpl) resolveCall(ctx context.Context, msg *dto.WebhookMessage) (*models.Call, error) {
	vapiCallID := msg.VapiCallID()
	if vapiCallID == "" {
		return nil, ErrEventMissingCallID
	}

	call, err := f.callRepo.ByVapiCallID(ctx, vapiCallID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up call by provider id: %w", err)
	}
	if call != nil {
		return call, nil
	}

	// Events can beat the dispatcher's own SCHEDULED write; the correlation
	// UUID we attach at dispatch time closes that gap
	if localUUID := msg.Call.LocalCallUUID(); localUUID != "" {
		if parsed, parseErr := parseUUID(localUUID); parseErr == nil {
			call, err = f.callRepo.ByUUID(ctx, parsed)
			if err != nil {
				return nil, fmt.Errorf("failed to look up call by local uuid: %w", err)
			}
			if call != nil {
				if call.VapiCallID == nil {
					call.VapiCallID = &vapiCallID
					if err := f.callRepo.Update(ctx, call); err != nil {
						return nil, fmt.Errorf("failed to attach provider id: %w", err)
					}
				}
				return call, nil
			}
		}
	}

	if msg.Call.IsInbound() {
		return f.synthesizeInboundCall(ctx, msg.Call)
	}

	return nil, fmt.Errorf("%w: provider call %s", ErrCallNotFound, vapiCallID)
}

// synthesizeInboundCall creates the local record for an inbound call,
// attributing it to the most recent outbound call to the same number when one
// exists within the lookback
func (f *WebhookFlowImpl) synthesizeInboundCall(ctx context.Context, vc *dto.VapiCall) (*models.Call, error) {
	phoneNumber := utils.NormalizePhoneNumber(vc.CustomerNumber())
	if phoneNumber == "" {
		return nil, fmt.Errorf("inbound call %s carries no customer number", vc.ID)
	}

	status := models.CallStatusRinging
	if mapped, ok := MapProviderStatus(vc.Status, vc.EndedReason); ok && !mapped.IsTerminal() {
		status = mapped
	}

	now := utils.UTCNow()
	call := &models.Call{
		VapiCallID:  &vc.ID,
		Direction:   models.CallDirectionInbound,
		PhoneNumber: phoneNumber,
		Status:      status,
		StartedAt:   &now,
	}

	since := utils.UTCNowAdd(-utils.InboundLinkLookback)
	outbound, err := f.callRepo.LatestOutboundToNumber(ctx, phoneNumber, since)
	if err != nil {
		return nil, fmt.Errorf("failed to trace outbound call for inbound link: %w", err)
	}
	if outbound != nil {
		call.ContactID = outbound.ContactID
		call.CampaignID = outbound.CampaignID
	} else if contact, err := f.contactRepo.ByPhoneNumber(ctx, phoneNumber); err == nil && contact != nil {
		call.ContactID = &contact.ID
	}

	// Populate defaults up front so the UUID is usable before the insert runs
	if err := call.BeforeCreate(nil); err != nil {
		return nil, err
	}
	if err := f.callRepo.Save(ctx, call); err != nil {
		return nil, fmt.Errorf("failed to create inbound call record: %w", err)
	}

	log.Printf("webhook: synthesized inbound call %s for provider call %s", call.UUID, vc.ID)
	return call, nil
}

// buildTerminalReport extracts the finalization inputs from an
// end-of-call-report message
func (f *WebhookFlowImpl) buildTerminalReport(msg *dto.WebhookMessage) *TerminalReport {
	report := &TerminalReport{
		EndedReason: msg.EndedReason,
		Cost:        msg.Cost,
		StartedAt:   msg.StartedAt,
		EndedAt:     msg.EndedAt,
		Artifact:    msg.Artifact,
		Analysis:    msg.Analysis,
		Source:      models.AnalyticsSourceWebhook,
	}

	if msg.Call != nil {
		if report.EndedReason == "" {
			report.EndedReason = msg.Call.EndedReason
		}
		if report.Cost == nil {
			report.Cost = msg.Call.Cost
		}
		if report.StartedAt == nil {
			report.StartedAt = msg.Call.StartedAt
		}
		if report.EndedAt == nil {
			report.EndedAt = msg.Call.EndedAt
		}
		if report.Artifact == nil {
			report.Artifact = msg.Call.Artifact
		}
		if report.Analysis == nil {
			report.Analysis = msg.Call.Analysis
		}
	}

	report.Status = RefineEndedStatus(report.EndedReason)
	report.Duration = durationFromReport(msg)

	return report
}

// durationFromReport derives the call duration in seconds, preferring the
// provider's explicit value over the start/end delta
func durationFromReport(msg *dto.WebhookMessage) *int {
	if msg.DurationSeconds != nil {
		d := int(*msg.DurationSeconds)
		return &d
	}

	start, end := msg.StartedAt, msg.EndedAt
	if msg.Call != nil {
		if start == nil {
			start = msg.Call.StartedAt
		}
		if end == nil {
			end = msg.Call.EndedAt
		}
	}
	if start != nil && end != nil && end.After(*start) {
		d := int(end.Sub(*start).Seconds())
		return &d
	}
	return nil
}

// logEvent persists the raw payload as the durability checkpoint. A failed
// write is logged but never blocks processing.
func (f *WebhookFlowImpl) logEvent(ctx context.Context, payload []byte, msg *dto.WebhookMessage) *models.WebhookLogEntry {
	entry := &models.WebhookLogEntry{
		EventType: msg.Type,
		Payload:   json.RawMessage(payload),
	}
	if entry.EventType == "" {
		entry.EventType = "unknown"
	}
	if id := msg.VapiCallID(); id != "" {
		entry.VapiCallID = &id
	}

	if err := f.webhookLogRepo.Save(ctx, entry); err != nil {
		log.Printf("webhook: failed to persist event log entry type=%s: %v", entry.EventType, err)
		return nil
	}
	return entry
}

func (f *WebhookFlowImpl) markProcessed(ctx context.Context, entry *models.WebhookLogEntry) {
	if entry == nil {
		return
	}
	if err := f.webhookLogRepo.MarkProcessed(ctx, entry.ID); err != nil {
		log.Printf("webhook: failed to mark event log entry %d processed: %v", entry.ID, err)
	}
}

func (f *WebhookFlowImpl) markError(ctx context.Context, entry *models.WebhookLogEntry, procErr error) {
	if entry == nil {
		return
	}
	if err := f.webhookLogRepo.MarkError(ctx, entry.ID, procErr.Error()); err != nil {
		log.Printf("webhook: failed to record event log error on entry %d: %v", entry.ID, err)
	}
}
