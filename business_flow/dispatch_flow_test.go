package businessflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/services"
	"github.com/simurgh-io/simurgh/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchFixture struct {
	flow         DispatchFlow
	campaigns    *mockCampaignRepo
	participants *mockCampaignContactRepo
	contacts     *mockContactRepo
	callRepo     *mockCallRepo
	vapi         *mockVapiClient
}

func newDispatchFixture() *dispatchFixture {
	f := &dispatchFixture{
		campaigns:    newMockCampaignRepo(),
		participants: &mockCampaignContactRepo{},
		contacts:     newMockContactRepo(),
		callRepo:     newMockCallRepo(),
		vapi: &mockVapiClient{
			phoneNumbers: []dto.VapiPhoneNumber{{ID: "pn-1", Number: "+15550000001"}},
		},
	}
	f.flow = NewDispatchFlow(
		f.campaigns,
		f.participants,
		f.contacts,
		f.callRepo,
		f.vapi,
		services.NewNoopRealtimePublisher(),
		time.Millisecond,
	)
	return f
}

func (f *dispatchFixture) seedCampaign(maxConcurrent, contactCount int) *models.Campaign {
	campaign := f.campaigns.add(&models.Campaign{
		UUID:          uuid.New(),
		Status:        models.CampaignStatusActive,
		AssistantID:   "assistant-1",
		PhoneNumber:   "+15550000001",
		MaxConcurrent: maxConcurrent,
		TotalContacts: contactCount,
	})
	for i := 0; i < contactCount; i++ {
		contact := f.contacts.add(&models.Contact{
			FirstName:   "Contact",
			PhoneNumber: fmt.Sprintf("+1555%07d", i),
		})
		f.participants.pending = append(f.participants.pending, &models.CampaignContact{
			CampaignID: campaign.ID,
			ContactID:  contact.ID,
			Status:     models.CampaignContactStatusPending,
			Contact:    contact,
		})
	}
	return campaign
}

func TestDispatchCampaign_ChunksByMaxConcurrent(t *testing.T) {
	f := newDispatchFixture()
	campaign := f.seedCampaign(10, 25)

	resp, err := f.flow.DispatchCampaign(context.Background(), campaign.UUID, 0)
	require.NoError(t, err)

	assert.Equal(t, 25, resp.Total)
	assert.Equal(t, 25, resp.Dispatched)
	assert.Equal(t, 0, resp.Failed)
	assert.Equal(t, 3, resp.Chunks)
	assert.Equal(t, 25, f.vapi.createCalls)

	// Every attempt got a local call row before the provider was contacted
	for _, r := range resp.Results {
		assert.NotEmpty(t, r.CallUUID)
	}
	assert.NotNil(t, campaign.StartedAt)
}

func TestDispatchCampaign_FailureIsolation(t *testing.T) {
	f := newDispatchFixture()
	campaign := f.seedCampaign(5, 5)

	badNumber := f.participants.pending[2].Contact.PhoneNumber
	f.vapi.createErrFor = map[string]error{badNumber: assert.AnError}

	resp, err := f.flow.DispatchCampaign(context.Background(), campaign.UUID, 0)
	require.NoError(t, err)

	assert.Equal(t, 4, resp.Dispatched)
	assert.Equal(t, 1, resp.Failed)

	// The failed contact's call row records the error and lands in FAILED
	var failedResult dto.DispatchContactResult
	for _, r := range resp.Results {
		if !r.Dispatched {
			failedResult = r
		}
	}
	require.NotEmpty(t, failedResult.CallUUID)
	call, err := f.callRepo.ByUUID(context.Background(), uuid.MustParse(failedResult.CallUUID))
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, models.CallStatusFailed, call.Status)

	// The failed counter was bumped exactly once
	require.Len(t, f.campaigns.bumps, 1)
	assert.Equal(t, 1, f.campaigns.bumps[0].FailedDelta)
}

func TestDispatchCampaign_SuccessfulDispatchAttachesProviderID(t *testing.T) {
	f := newDispatchFixture()
	campaign := f.seedCampaign(5, 1)

	resp, err := f.flow.DispatchCampaign(context.Background(), campaign.UUID, 0)
	require.NoError(t, err)
	require.Equal(t, 1, resp.Dispatched)

	call, err := f.callRepo.ByUUID(context.Background(), uuid.MustParse(resp.Results[0].CallUUID))
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, models.CallStatusScheduled, call.Status)
	assert.NotNil(t, call.VapiCallID)
}

func TestDispatchCampaign_LimitCapsRun(t *testing.T) {
	f := newDispatchFixture()
	campaign := f.seedCampaign(10, 25)

	resp, err := f.flow.DispatchCampaign(context.Background(), campaign.UUID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, resp.Total)
	assert.Equal(t, 7, f.vapi.createCalls)
}

func TestDispatchCampaign_RejectsInactiveCampaign(t *testing.T) {
	f := newDispatchFixture()
	campaign := f.campaigns.add(&models.Campaign{
		UUID:   uuid.New(),
		Status: models.CampaignStatusPaused,
	})

	_, err := f.flow.DispatchCampaign(context.Background(), campaign.UUID, 0)
	require.Error(t, err)
	assert.True(t, IsCampaignNotActive(err))
}

func TestDispatchCampaign_UnknownCampaign(t *testing.T) {
	f := newDispatchFixture()

	_, err := f.flow.DispatchCampaign(context.Background(), uuid.New(), 0)
	require.Error(t, err)
	assert.True(t, IsCampaignNotFound(err))
}

func TestDispatchCampaign_NoPendingContacts(t *testing.T) {
	f := newDispatchFixture()
	campaign := f.seedCampaign(10, 0)

	_, err := f.flow.DispatchCampaign(context.Background(), campaign.UUID, 0)
	require.Error(t, err)
	assert.True(t, IsNoPendingContacts(err))
}

func TestDispatchCampaign_UnresolvablePhoneNumber(t *testing.T) {
	f := newDispatchFixture()
	f.vapi.phoneNumbers = []dto.VapiPhoneNumber{
		{ID: "pn-1", Number: "+15559999999"},
		{ID: "pn-2", Number: "+15558888888"},
	}
	campaign := f.seedCampaign(10, 3)

	_, err := f.flow.DispatchCampaign(context.Background(), campaign.UUID, 0)
	require.Error(t, err)
	assert.True(t, IsPhoneNumberResolution(err))
	assert.Equal(t, 0, f.vapi.createCalls)
}
