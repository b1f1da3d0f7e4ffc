package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/services"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleFixture struct {
	flow         CallLifecycleFlow
	callRepo     *mockCallRepo
	transcripts  *mockTranscriptRepo
	analytics    *mockAnalyticsRepo
	campaigns    *mockCampaignRepo
	participants *mockCampaignContactRepo
	contacts     *mockContactRepo
	notifier     *services.MockAppointmentNotifier
}

func newLifecycleFixture() *lifecycleFixture {
	f := &lifecycleFixture{
		callRepo:     newMockCallRepo(),
		transcripts:  &mockTranscriptRepo{},
		analytics:    &mockAnalyticsRepo{},
		campaigns:    newMockCampaignRepo(),
		participants: &mockCampaignContactRepo{},
		contacts:     newMockContactRepo(),
		notifier:     services.NewMockAppointmentNotifier(),
	}
	f.flow = NewCallLifecycleFlow(
		f.callRepo,
		f.transcripts,
		f.analytics,
		f.campaigns,
		f.participants,
		f.contacts,
		&mockTransactor{},
		services.NewNoopRealtimePublisher(),
		f.notifier,
	)
	return f
}

func TestMapProviderStatus(t *testing.T) {
	cases := []struct {
		providerStatus string
		endedReason    string
		want           models.CallStatus
		ok             bool
	}{
		{"queued", "", models.CallStatusQueued, true},
		{"scheduled", "", models.CallStatusScheduled, true},
		{"ringing", "", models.CallStatusRinging, true},
		{"in-progress", "", models.CallStatusInProgress, true},
		{"forwarding", "", models.CallStatusInProgress, true},
		{"ended", "customer-ended-call", models.CallStatusCompleted, true},
		{"ended", "customer-busy", models.CallStatusBusy, true},
		{"ended", "customer-did-not-answer", models.CallStatusNoAnswer, true},
		{"ended", "voicemail", models.CallStatusVoicemail, true},
		{"ended", "pipeline-error-failed", models.CallStatusFailed, true},
		{"something-new", "", "", false},
	}

	for _, tc := range cases {
		got, ok := MapProviderStatus(tc.providerStatus, tc.endedReason)
		assert.Equal(t, tc.ok, ok, "provider status %q", tc.providerStatus)
		if ok {
			assert.Equal(t, tc.want, got, "provider status %q reason %q", tc.providerStatus, tc.endedReason)
		}
	}
}

func TestApplyStatusUpdate_ForwardProgression(t *testing.T) {
	f := newLifecycleFixture()
	call := f.callRepo.add(callFixture(models.CallStatusQueued))
	call.StartedAt = nil

	result, err := f.flow.ApplyStatusUpdate(context.Background(), call, "ringing", "")
	require.NoError(t, err)
	assert.Equal(t, TransitionApplied, result.Decision)
	assert.Equal(t, models.CallStatusRinging, call.Status)
	assert.NotNil(t, call.StartedAt)

	result, err = f.flow.ApplyStatusUpdate(context.Background(), call, "in-progress", "")
	require.NoError(t, err)
	assert.Equal(t, TransitionApplied, result.Decision)
	assert.NotNil(t, call.AnsweredAt)
}

func TestApplyStatusUpdate_LateEventIsNoOp(t *testing.T) {
	f := newLifecycleFixture()
	call := f.callRepo.add(callFixture(models.CallStatusInProgress))

	// A ringing event arriving after in-progress must not move the call back
	result, err := f.flow.ApplyStatusUpdate(context.Background(), call, "ringing", "")
	require.NoError(t, err)
	assert.Equal(t, TransitionRejected, result.Decision)
	assert.Equal(t, models.CallStatusInProgress, call.Status)
}

func TestApplyStatusUpdate_TerminalIsFinal(t *testing.T) {
	f := newLifecycleFixture()
	call := f.callRepo.add(callFixture(models.CallStatusCompleted))

	result, err := f.flow.ApplyStatusUpdate(context.Background(), call, "in-progress", "")
	require.NoError(t, err)
	assert.Equal(t, TransitionRejected, result.Decision)
	assert.Equal(t, models.CallStatusCompleted, call.Status)
}

func TestApplyStatusUpdate_UnrecognizedStatus(t *testing.T) {
	f := newLifecycleFixture()
	call := f.callRepo.add(callFixture(models.CallStatusRinging))

	result, err := f.flow.ApplyStatusUpdate(context.Background(), call, "mystery", "")
	require.NoError(t, err)
	assert.Equal(t, TransitionRejected, result.Decision)
	assert.Empty(t, f.callRepo.guardedUpdates)
}

func TestApplyStatusUpdate_StartedAtSetOnlyOnce(t *testing.T) {
	f := newLifecycleFixture()
	call := f.callRepo.add(callFixture(models.CallStatusRinging))
	firstStart := *call.StartedAt

	result, err := f.flow.ApplyStatusUpdate(context.Background(), call, "in-progress", "")
	require.NoError(t, err)
	assert.Equal(t, TransitionApplied, result.Decision)
	assert.Equal(t, firstStart, *call.StartedAt)
}

func TestPromoteToInProgress(t *testing.T) {
	f := newLifecycleFixture()
	call := f.callRepo.add(callFixture(models.CallStatusScheduled))

	result, err := f.flow.PromoteToInProgress(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, TransitionApplied, result.Decision)
	assert.Equal(t, models.CallStatusInProgress, call.Status)

	// Re-promoting is a no-op, not an error
	result, err = f.flow.PromoteToInProgress(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, TransitionNoOp, result.Decision)
}

func TestFinalizeCall_AppliesCountersOnce(t *testing.T) {
	f := newLifecycleFixture()
	campaign := f.campaigns.add(&models.Campaign{Status: models.CampaignStatusActive})
	contact := f.contacts.add(&models.Contact{PhoneNumber: "+15550001111"})

	call := callFixture(models.CallStatusInProgress)
	call.CampaignID = &campaign.ID
	call.ContactID = &contact.ID
	f.callRepo.add(call)

	duration := 95
	report := &TerminalReport{
		EndedReason: "customer-ended-call",
		Duration:    &duration,
		Analysis:    &dto.VapiAnalysis{Summary: "booked a demo", SuccessEvaluation: "true"},
		Artifact:    &dto.VapiArtifact{Transcript: "hello there"},
	}
	report.Status = RefineEndedStatus(report.EndedReason)

	result, classification, err := f.flow.FinalizeCall(context.Background(), call, report)
	require.NoError(t, err)
	assert.Equal(t, TransitionApplied, result.Decision)
	assert.Equal(t, models.CallStatusCompleted, call.Status)
	assert.Equal(t, models.CallOutcomeSuccess, classification.Outcome)

	require.Len(t, f.campaigns.bumps, 1)
	assert.Equal(t, 1, f.campaigns.bumps[0].CompletedDelta)
	assert.Equal(t, 0, f.campaigns.bumps[0].FailedDelta)
	require.Len(t, f.participants.marks, 1)
	assert.Equal(t, models.CampaignContactStatusCompleted, f.participants.marks[0].Status)
	assert.Len(t, f.transcripts.upserts, 1)
	assert.Len(t, f.analytics.upserts, 1)

	// Re-delivering the same report upserts the artifacts but never bumps the
	// counters again
	_, _, err = f.flow.FinalizeCall(context.Background(), call, report)
	require.NoError(t, err)
	assert.Len(t, f.campaigns.bumps, 1)
	assert.Len(t, f.analytics.upserts, 2)
}

func TestFinalizeCall_FailedStatusBumpsFailedCounter(t *testing.T) {
	f := newLifecycleFixture()
	campaign := f.campaigns.add(&models.Campaign{Status: models.CampaignStatusActive})
	contact := f.contacts.add(&models.Contact{PhoneNumber: "+15550001111"})

	call := callFixture(models.CallStatusScheduled)
	call.CampaignID = &campaign.ID
	call.ContactID = &contact.ID
	f.callRepo.add(call)

	report := &TerminalReport{
		Status:      models.CallStatusFailed,
		EndedReason: "pipeline-error-failed",
		Source:      models.AnalyticsSourceReconciliation,
	}

	result, _, err := f.flow.FinalizeCall(context.Background(), call, report)
	require.NoError(t, err)
	assert.Equal(t, TransitionApplied, result.Decision)
	assert.Equal(t, models.CallStatusFailed, call.Status)

	require.Len(t, f.campaigns.bumps, 1)
	assert.Equal(t, 0, f.campaigns.bumps[0].CompletedDelta)
	assert.Equal(t, 1, f.campaigns.bumps[0].FailedDelta)
	require.Len(t, f.participants.marks, 1)
	assert.Equal(t, models.CampaignContactStatusFailed, f.participants.marks[0].Status)
	require.Len(t, f.analytics.upserts, 1)
	assert.Equal(t, models.AnalyticsSourceReconciliation, f.analytics.upserts[0].SyncSource)
}

func TestFinalizeCall_BackfillsOutcomeOnAlreadyTerminalCall(t *testing.T) {
	f := newLifecycleFixture()

	// A terminal status-update won the race: the call is completed but carries
	// no outcome yet
	call := f.callRepo.add(callFixture(models.CallStatusCompleted))
	require.Nil(t, call.Outcome)

	duration := 70
	report := &TerminalReport{
		Status:      models.CallStatusCompleted,
		EndedReason: "customer-ended-call",
		Duration:    &duration,
		Analysis:    &dto.VapiAnalysis{SuccessEvaluation: "true"},
	}

	result, classification, err := f.flow.FinalizeCall(context.Background(), call, report)
	require.NoError(t, err)
	assert.Equal(t, TransitionNoOp, result.Decision)
	require.NotNil(t, call.Outcome)
	assert.Equal(t, models.CallOutcomeSuccess, *call.Outcome)
	assert.Equal(t, classification.Outcome, *call.Outcome)
	require.NotNil(t, call.Duration)
	assert.Equal(t, duration, *call.Duration)
}

func TestFinalizeCall_RejectsNonTerminalTarget(t *testing.T) {
	f := newLifecycleFixture()
	call := f.callRepo.add(callFixture(models.CallStatusInProgress))

	_, _, err := f.flow.FinalizeCall(context.Background(), call, &TerminalReport{Status: models.CallStatusRinging})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCallStatus)
}

func TestFinalizeCall_ProviderTimestampsWinOverLocalClock(t *testing.T) {
	f := newLifecycleFixture()
	call := f.callRepo.add(callFixture(models.CallStatusInProgress))
	call.StartedAt = nil
	call.EndedAt = nil

	started := utils.UTCNowAdd(-3 * time.Minute)
	ended := utils.UTCNowAdd(-1 * time.Minute)
	report := &TerminalReport{
		Status:    models.CallStatusCompleted,
		StartedAt: &started,
		EndedAt:   &ended,
	}

	_, _, err := f.flow.FinalizeCall(context.Background(), call, report)
	require.NoError(t, err)

	require.Len(t, f.callRepo.guardedUpdates, 1)
	set := f.callRepo.guardedUpdates[0].Set
	assert.Equal(t, started.UTC(), set["started_at"])
	assert.Equal(t, ended.UTC(), set["ended_at"])
}

func TestFinalizeCall_PropagatesInboundOutcome(t *testing.T) {
	f := newLifecycleFixture()

	outbound := f.callRepo.add(callFixture(models.CallStatusNoAnswer))
	f.callRepo.latestOutbound = outbound

	inbound := callFixture(models.CallStatusInProgress)
	inbound.Direction = models.CallDirectionInbound
	inbound.PhoneNumber = outbound.PhoneNumber
	f.callRepo.add(inbound)

	report := &TerminalReport{
		Status:   models.CallStatusCompleted,
		Analysis: &dto.VapiAnalysis{SuccessEvaluation: "true"},
	}

	_, _, err := f.flow.FinalizeCall(context.Background(), inbound, report)
	require.NoError(t, err)

	require.NotNil(t, outbound.Outcome)
	assert.Equal(t, models.CallOutcomeSuccess, *outbound.Outcome)
	require.NotNil(t, outbound.Result)
	assert.Equal(t, models.CallResultPass, *outbound.Result)
}

func TestFinalizeCall_NotifiesOnResolvedAppointment(t *testing.T) {
	f := newLifecycleFixture()
	contact := f.contacts.add(&models.Contact{FirstName: "Sam", LastName: "Lee", PhoneNumber: "+15550001111"})

	call := callFixture(models.CallStatusInProgress)
	call.ContactID = &contact.ID
	f.callRepo.add(call)

	structured := []byte(`{"outcome":"success","appointmentBooked":true,"appointmentDate":"tomorrow","appointmentTime":"10 AM","confirmedName":"Sam Lee","confirmedEmail":"sam@example.com"}`)
	report := &TerminalReport{
		Status:   models.CallStatusCompleted,
		Analysis: &dto.VapiAnalysis{StructuredData: structured},
	}

	_, classification, err := f.flow.FinalizeCall(context.Background(), call, report)
	require.NoError(t, err)
	require.NotNil(t, classification.AppointmentAt)

	// The analytics row records which identity fields were confirmed verbally
	require.Len(t, f.analytics.upserts, 1)
	assert.Equal(t, pq.StringArray{"name", "email"}, f.analytics.upserts[0].ConfirmedFields)

	// Notification delivery is asynchronous
	assert.Eventually(t, func() bool {
		return f.notifier.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
