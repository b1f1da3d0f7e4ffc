package businessflow

import (
	"context"
	"testing"

	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/services"
	"github.com/simurgh-io/simurgh/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookFixture struct {
	flow         WebhookFlow
	callRepo     *mockCallRepo
	contacts     *mockContactRepo
	campaigns    *mockCampaignRepo
	participants *mockCampaignContactRepo
	eventLog     *mockWebhookLogRepo
	vapi         *mockVapiClient
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		callRepo:     newMockCallRepo(),
		contacts:     newMockContactRepo(),
		campaigns:    newMockCampaignRepo(),
		participants: &mockCampaignContactRepo{},
		eventLog:     newMockWebhookLogRepo(),
		vapi:         &mockVapiClient{},
	}
	lifecycle := NewCallLifecycleFlow(
		f.callRepo,
		&mockTranscriptRepo{},
		&mockAnalyticsRepo{},
		f.campaigns,
		f.participants,
		f.contacts,
		&mockTransactor{},
		services.NewNoopRealtimePublisher(),
		nil,
	)
	f.flow = NewWebhookFlow(
		f.callRepo,
		f.contacts,
		f.campaigns,
		f.eventLog,
		lifecycle,
		f.vapi,
		services.NewNoopRealtimePublisher(),
		nil,
		"assistant-default",
	)
	return f
}

func (f *webhookFixture) seedCall(status models.CallStatus, vapiID string) *models.Call {
	call := callFixture(status)
	if vapiID != "" {
		call.VapiCallID = &vapiID
	}
	return f.callRepo.add(call)
}

func TestProcessEvent_AlwaysAcks(t *testing.T) {
	f := newWebhookFixture()

	msg := &dto.WebhookMessage{Type: "totally-new-event"}
	ack := f.flow.ProcessEvent(context.Background(), []byte(`{}`), msg)

	assert.True(t, ack.Received)
	assert.NotEmpty(t, ack.Error)

	// The payload was persisted and the failure recorded on the entry
	require.Len(t, f.eventLog.entries, 1)
	assert.Contains(t, f.eventLog.errored[f.eventLog.entries[0].ID], "totally-new-event")
}

func TestProcessEvent_StatusUpdate(t *testing.T) {
	f := newWebhookFixture()
	call := f.seedCall(models.CallStatusScheduled, "vapi-1")

	msg := &dto.WebhookMessage{
		Type:   string(dto.EventStatusUpdate),
		Status: "ringing",
		Call:   &dto.VapiCall{ID: "vapi-1"},
	}
	ack := f.flow.ProcessEvent(context.Background(), []byte(`{}`), msg)

	assert.True(t, ack.Received)
	assert.Empty(t, ack.Error)
	assert.Equal(t, models.CallStatusRinging, call.Status)
	require.Len(t, f.eventLog.processed, 1)
}

func TestProcessEvent_MissingCallID(t *testing.T) {
	f := newWebhookFixture()

	msg := &dto.WebhookMessage{Type: string(dto.EventStatusUpdate), Status: "ringing"}
	ack := f.flow.ProcessEvent(context.Background(), []byte(`{}`), msg)

	assert.True(t, ack.Received)
	assert.NotEmpty(t, ack.Error)
}

func TestProcessEvent_TranscriptPromotesCall(t *testing.T) {
	f := newWebhookFixture()
	call := f.seedCall(models.CallStatusRinging, "vapi-1")

	msg := &dto.WebhookMessage{
		Type:       string(dto.EventTranscript),
		Role:       "user",
		Transcript: "hello?",
		Call:       &dto.VapiCall{ID: "vapi-1"},
	}
	ack := f.flow.ProcessEvent(context.Background(), []byte(`{}`), msg)

	assert.Empty(t, ack.Error)
	assert.Equal(t, models.CallStatusInProgress, call.Status)
}

func TestProcessEvent_DuplicateEndOfCallReport(t *testing.T) {
	f := newWebhookFixture()
	campaign := f.campaigns.add(&models.Campaign{Status: models.CampaignStatusActive})
	contact := f.contacts.add(&models.Contact{PhoneNumber: "+15550001111"})

	call := f.seedCall(models.CallStatusInProgress, "vapi-1")
	call.CampaignID = &campaign.ID
	call.ContactID = &contact.ID

	duration := 140.0
	msg := &dto.WebhookMessage{
		Type:            string(dto.EventEndOfCallReport),
		EndedReason:     "customer-ended-call",
		DurationSeconds: &duration,
		Analysis:        &dto.VapiAnalysis{SuccessEvaluation: "true"},
		Call:            &dto.VapiCall{ID: "vapi-1"},
	}

	ack := f.flow.ProcessEvent(context.Background(), []byte(`{}`), msg)
	assert.Empty(t, ack.Error)
	assert.Equal(t, models.CallStatusCompleted, call.Status)
	require.Len(t, f.campaigns.bumps, 1)

	// Provider retry of the same report: acknowledged, no double counting
	ack = f.flow.ProcessEvent(context.Background(), []byte(`{}`), msg)
	assert.True(t, ack.Received)
	assert.Empty(t, ack.Error)
	assert.Len(t, f.campaigns.bumps, 1)
	assert.Len(t, f.eventLog.processed, 2)
}

func TestResolveCall_MetadataFallbackAttachesProviderID(t *testing.T) {
	f := newWebhookFixture()

	// Dispatch created the row but the SCHEDULED write with the provider id
	// lost the race against this event
	call := f.seedCall(models.CallStatusQueued, "")

	msg := &dto.WebhookMessage{
		Type:   string(dto.EventStatusUpdate),
		Status: "ringing",
		Call: &dto.VapiCall{
			ID:       "vapi-late",
			Metadata: map[string]any{"localCallId": call.UUID.String()},
		},
	}
	ack := f.flow.ProcessEvent(context.Background(), []byte(`{}`), msg)

	assert.Empty(t, ack.Error)
	require.NotNil(t, call.VapiCallID)
	assert.Equal(t, "vapi-late", *call.VapiCallID)
	assert.Equal(t, models.CallStatusRinging, call.Status)
}

func TestProcessEvent_SynthesizesInboundCall(t *testing.T) {
	f := newWebhookFixture()

	campaign := f.campaigns.add(&models.Campaign{Status: models.CampaignStatusActive, AssistantID: "assistant-camp"})
	contact := f.contacts.add(&models.Contact{PhoneNumber: "+15550002222"})
	outbound := f.seedCall(models.CallStatusNoAnswer, "vapi-out")
	outbound.PhoneNumber = "+15550002222"
	outbound.CampaignID = &campaign.ID
	outbound.ContactID = &contact.ID
	f.callRepo.latestOutbound = outbound

	msg := &dto.WebhookMessage{
		Type:   string(dto.EventStatusUpdate),
		Status: "ringing",
		Call: &dto.VapiCall{
			ID:       "vapi-inbound",
			Type:     "inboundPhoneCall",
			Status:   "ringing",
			Customer: &dto.VapiCustomer{Number: "+15550002222"},
		},
	}
	ack := f.flow.ProcessEvent(context.Background(), []byte(`{}`), msg)
	assert.Empty(t, ack.Error)

	created, err := f.callRepo.ByVapiCallID(context.Background(), "vapi-inbound")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, models.CallDirectionInbound, created.Direction)
	assert.Equal(t, models.CallStatusRinging, created.Status)
	// Attributed to the campaign behind the most recent outbound attempt
	require.NotNil(t, created.CampaignID)
	assert.Equal(t, campaign.ID, *created.CampaignID)
	require.NotNil(t, created.ContactID)
	assert.Equal(t, contact.ID, *created.ContactID)
}

func TestProcessEvent_UnknownOutboundCallRejected(t *testing.T) {
	f := newWebhookFixture()

	msg := &dto.WebhookMessage{
		Type:   string(dto.EventStatusUpdate),
		Status: "ringing",
		Call:   &dto.VapiCall{ID: "vapi-ghost", Type: "outboundPhoneCall"},
	}
	ack := f.flow.ProcessEvent(context.Background(), []byte(`{}`), msg)

	assert.True(t, ack.Received)
	assert.NotEmpty(t, ack.Error)
}

func TestSelectAssistant_PrefersCampaignBehindRecentOutbound(t *testing.T) {
	f := newWebhookFixture()

	campaign := f.campaigns.add(&models.Campaign{Status: models.CampaignStatusActive, AssistantID: "assistant-camp"})
	outbound := f.seedCall(models.CallStatusCompleted, "vapi-out")
	outbound.CampaignID = &campaign.ID
	f.callRepo.latestOutbound = outbound

	f.vapi.assistant = &dto.VapiAssistant{ID: "assistant-camp", Name: "Campaign Assistant"}

	msg := &dto.WebhookMessage{
		Type:     string(dto.EventAssistantRequest),
		Customer: &dto.VapiCustomer{Number: "+15550002222"},
	}
	resp := f.flow.SelectAssistant(context.Background(), []byte(`{}`), msg)

	assert.Empty(t, resp.Error)
	require.NotNil(t, resp.Assistant)
	assert.Equal(t, "assistant-camp", resp.Assistant.ID)
}

func TestSelectAssistant_FallsBackToIDWhenFetchFails(t *testing.T) {
	f := newWebhookFixture()
	f.vapi.assistantErr = assert.AnError

	msg := &dto.WebhookMessage{
		Type:     string(dto.EventAssistantRequest),
		Customer: &dto.VapiCustomer{Number: "+15550009999"},
	}
	resp := f.flow.SelectAssistant(context.Background(), []byte(`{}`), msg)

	assert.Empty(t, resp.Error)
	assert.Nil(t, resp.Assistant)
	assert.Equal(t, "assistant-default", resp.AssistantID)
}

func TestSelectAssistant_NoAssistantConfigured(t *testing.T) {
	f := newWebhookFixture()
	impl := f.flow.(*WebhookFlowImpl)
	impl.defaultAssistantID = ""

	msg := &dto.WebhookMessage{Type: string(dto.EventAssistantRequest)}
	resp := f.flow.SelectAssistant(context.Background(), []byte(`{}`), msg)

	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.AssistantID)

	// The failure is recorded on the event log entry
	require.Len(t, f.eventLog.entries, 1)
	assert.NotEmpty(t, f.eventLog.errored[f.eventLog.entries[0].ID])
}

func TestProcessEvent_HangForcesCompletion(t *testing.T) {
	f := newWebhookFixture()
	call := f.seedCall(models.CallStatusInProgress, "vapi-1")

	msg := &dto.WebhookMessage{
		Type: string(dto.EventHang),
		Call: &dto.VapiCall{ID: "vapi-1"},
	}
	ack := f.flow.ProcessEvent(context.Background(), []byte(`{}`), msg)

	assert.Empty(t, ack.Error)
	assert.Equal(t, models.CallStatusCompleted, call.Status)
}

func TestEventTypeDiscrimination(t *testing.T) {
	known := []dto.WebhookEventType{
		dto.EventStatusUpdate, dto.EventConversationUpdate, dto.EventSpeechUpdate,
		dto.EventTranscript, dto.EventHang, dto.EventEndOfCallReport, dto.EventAssistantRequest,
	}
	for _, et := range known {
		msg := &dto.WebhookMessage{Type: string(et)}
		assert.Equal(t, et, msg.EventType())
	}

	assert.Equal(t, dto.EventUnknown, (&dto.WebhookMessage{Type: "nope"}).EventType())
	assert.Equal(t, dto.EventUnknown, (&dto.WebhookMessage{}).EventType())
}

func TestProcessEvent_DuplicateSuppressionKeepsUUIDStable(t *testing.T) {
	f := newWebhookFixture()
	call := f.seedCall(models.CallStatusInProgress, "vapi-1")
	originalUUID := call.UUID

	msg := &dto.WebhookMessage{
		Type:   string(dto.EventStatusUpdate),
		Status: "in-progress",
		Call:   &dto.VapiCall{ID: "vapi-1"},
	}
	ack := f.flow.ProcessEvent(context.Background(), []byte(`{}`), msg)

	assert.Empty(t, ack.Error)
	assert.Equal(t, originalUUID, call.UUID)

	// No second row was synthesized for the same provider call
	found, err := f.callRepo.ByVapiCallID(context.Background(), "vapi-1")
	require.NoError(t, err)
	assert.Equal(t, call.ID, found.ID)
}
