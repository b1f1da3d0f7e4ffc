// Package businessflow contains the core business logic and use cases for batch call dispatch
package businessflow

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/services"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/repository"
	"github.com/simurgh-io/simurgh/utils"
)

// DispatchFlow issues outbound calls for a campaign's pending contacts under
// the campaign's concurrency ceiling
type DispatchFlow interface {
	DispatchCampaign(ctx context.Context, campaignUUID uuid.UUID, limit int) (*dto.DispatchCampaignResponse, error)
}

// DispatchFlowImpl implements the batch call dispatcher
type DispatchFlowImpl struct {
	campaignRepo        repository.CampaignRepository
	campaignContactRepo repository.CampaignContactRepository
	contactRepo         repository.ContactRepository
	callRepo            repository.CallRepository
	vapiClient          services.VapiClient
	realtime            services.RealtimePublisher

	// chunkDelay paces chunks to respect provider rate limits
	chunkDelay time.Duration
}

// NewDispatchFlow creates a new dispatch flow instance
func NewDispatchFlow(
	campaignRepo repository.CampaignRepository,
	campaignContactRepo repository.CampaignContactRepository,
	contactRepo repository.ContactRepository,
	callRepo repository.CallRepository,
	vapiClient services.VapiClient,
	realtime services.RealtimePublisher,
	chunkDelay time.Duration,
) DispatchFlow {
	if chunkDelay <= 0 {
		chunkDelay = utils.DefaultChunkDelay
	}
	return &DispatchFlowImpl{
		campaignRepo:        campaignRepo,
		campaignContactRepo: campaignContactRepo,
		contactRepo:         contactRepo,
		callRepo:            callRepo,
		vapiClient:          vapiClient,
		realtime:            realtime,
		chunkDelay:          chunkDelay,
	}
}

// DispatchCampaign issues calls for up to limit pending contacts (all of them
// when limit is zero). Contacts are dispatched in chunks of the campaign's
// max-concurrency; each chunk completes fully before the next starts.
func (f *DispatchFlowImpl) DispatchCampaign(ctx context.Context, campaignUUID uuid.UUID, limit int) (*dto.DispatchCampaignResponse, error) {
	campaign, err := f.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	if campaign.Status != models.CampaignStatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrCampaignNotActive, campaign.Status)
	}

	// Which provider line to dial from is resolved once for the whole run;
	// failure here aborts the campaign start
	phoneNumberID, err := f.resolvePhoneNumberID(ctx, campaign.PhoneNumber)
	if err != nil {
		return nil, err
	}

	pending, err := f.campaignContactRepo.ListPending(ctx, campaign.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending contacts: %w", err)
	}
	if len(pending) == 0 {
		return nil, ErrNoPendingContacts
	}

	if campaign.StartedAt == nil {
		now := utils.UTCNow()
		campaign.StartedAt = &now
		if err := f.campaignRepo.Update(ctx, campaign); err != nil {
			log.Printf("dispatch: failed to stamp campaign start %s: %v", campaign.UUID, err)
		}
	}

	chunkSize := campaign.MaxConcurrent
	if chunkSize <= 0 {
		chunkSize = utils.DefaultMaxConcurrent
	}

	resp := &dto.DispatchCampaignResponse{
		CampaignUUID: campaign.UUID.String(),
		Total:        len(pending),
		Results:      make([]dto.DispatchContactResult, len(pending)),
	}

	for start := 0; start < len(pending); start += chunkSize {
		end := start + chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		resp.Chunks++

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int, cc *models.CampaignContact) {
				defer wg.Done()
				resp.Results[idx] = f.dispatchOne(ctx, campaign, cc, phoneNumberID)
			}(i, pending[i])
		}
		wg.Wait()

		if end < len(pending) {
			select {
			case <-ctx.Done():
				return resp, ctx.Err()
			case <-time.After(f.chunkDelay):
			}
		}
	}

	for _, r := range resp.Results {
		if r.Dispatched {
			resp.Dispatched++
		} else {
			resp.Failed++
		}
	}

	f.realtime.PublishCampaignEvent(ctx, dto.RealtimeCampaignProgressChanged, campaign.UUID.String(), map[string]any{
		"dispatched": resp.Dispatched,
		"failed":     resp.Failed,
		"total":      resp.Total,
	})

	return resp, nil
}

// dispatchOne places one outbound call. The local Call row is created in
// QUEUED before the provider is contacted, so operators can see the attempt
// even when the provider call never happens.
func (f *DispatchFlowImpl) dispatchOne(ctx context.Context, campaign *models.Campaign, cc *models.CampaignContact, phoneNumberID string) dto.DispatchContactResult {
	result := dto.DispatchContactResult{ContactID: cc.ContactID}

	contact := cc.Contact
	if contact == nil {
		var err error
		contact, err = f.contactRepo.ByID(ctx, cc.ContactID)
		if err != nil || contact == nil {
			result.Error = ErrContactNotFound.Error()
			f.markContactFailed(ctx, campaign, cc)
			return result
		}
	}

	phoneNumber := utils.NormalizePhoneNumber(contact.PhoneNumber)
	result.PhoneNumber = phoneNumber

	now := utils.UTCNow()
	if err := f.campaignContactRepo.MarkStatus(ctx, campaign.ID, cc.ContactID, models.CampaignContactStatusInProgress, &now); err != nil {
		result.Error = fmt.Sprintf("failed to mark contact in progress: %v", err)
		return result
	}

	call := &models.Call{
		Direction:   models.CallDirectionOutbound,
		PhoneNumber: phoneNumber,
		Status:      models.CallStatusQueued,
		ContactID:   &contact.ID,
		CampaignID:  &campaign.ID,
	}
	if err := call.BeforeCreate(nil); err != nil {
		result.Error = err.Error()
		return result
	}
	if err := f.callRepo.Save(ctx, call); err != nil {
		result.Error = fmt.Sprintf("failed to create call record: %v", err)
		return result
	}
	result.CallUUID = call.UUID.String()

	req := &dto.CreateCallRequest{
		AssistantID:   campaign.AssistantID,
		PhoneNumberID: phoneNumberID,
		Customer: dto.VapiCustomer{
			Number: phoneNumber,
			Name:   contact.FullName(),
		},
		Metadata: map[string]any{
			"localCallId":  call.UUID.String(),
			"campaignUuid": campaign.UUID.String(),
		},
	}

	vc, err := f.vapiClient.CreateCall(ctx, req)
	if err != nil {
		errText := err.Error()
		if _, gerr := f.callRepo.UpdateStatusGuarded(ctx, call.ID, models.CallStatusQueued, models.CallStatusFailed, map[string]any{
			"error":      errText,
			"ended_at":   utils.UTCNow(),
			"updated_at": utils.UTCNow(),
		}); gerr != nil {
			log.Printf("dispatch: failed to mark call %s failed: %v", call.UUID, gerr)
		}
		f.markContactFailed(ctx, campaign, cc)
		f.realtime.PublishCallEvent(ctx, dto.RealtimeCallStatusChanged, call.UUID.String(), map[string]any{
			"from": string(models.CallStatusQueued),
			"to":   string(models.CallStatusFailed),
		})
		result.Error = errText
		return result
	}

	if _, err := f.callRepo.UpdateStatusGuarded(ctx, call.ID, models.CallStatusQueued, models.CallStatusScheduled, map[string]any{
		"vapi_call_id": vc.ID,
		"updated_at":   utils.UTCNow(),
	}); err != nil {
		// The provider call is live; the webhook path will converge the row
		log.Printf("dispatch: failed to mark call %s scheduled: %v", call.UUID, err)
	}
	f.realtime.PublishCallEvent(ctx, dto.RealtimeCallStatusChanged, call.UUID.String(), map[string]any{
		"from": string(models.CallStatusQueued),
		"to":   string(models.CallStatusScheduled),
	})

	result.Dispatched = true
	return result
}

// markContactFailed records a dispatch failure on the participation row and
// the campaign counters
func (f *DispatchFlowImpl) markContactFailed(ctx context.Context, campaign *models.Campaign, cc *models.CampaignContact) {
	if err := f.campaignContactRepo.MarkStatus(ctx, campaign.ID, cc.ContactID, models.CampaignContactStatusFailed, nil); err != nil {
		log.Printf("dispatch: failed to mark contact %d failed: %v", cc.ContactID, err)
	}
	if err := f.campaignRepo.IncrementCounters(ctx, campaign.ID, 0, 1); err != nil {
		log.Printf("dispatch: failed to bump failed counter for campaign %s: %v", campaign.UUID, err)
	}
}

// resolvePhoneNumberID maps the campaign's outbound line to the provider's
// phone number id
func (f *DispatchFlowImpl) resolvePhoneNumberID(ctx context.Context, phoneNumber string) (string, error) {
	numbers, err := f.vapiClient.ListPhoneNumbers(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPhoneNumberResolution, err)
	}

	want := utils.NormalizePhoneNumber(phoneNumber)
	for _, n := range numbers {
		if utils.NormalizePhoneNumber(n.Number) == want {
			return n.ID, nil
		}
	}
	if len(numbers) == 1 && want == "" {
		return numbers[0].ID, nil
	}
	return "", fmt.Errorf("%w: no provider line matches %s", ErrPhoneNumberResolution, phoneNumber)
}
