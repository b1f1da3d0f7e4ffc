// Package businessflow contains the core business logic and use cases for the call lifecycle state machine
package businessflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/app/services"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/repository"
	"github.com/simurgh-io/simurgh/utils"
)

// TransitionDecision is the outcome of one attempted status transition.
// Callers distinguish "nothing to do" from "something went wrong" without
// inspecting errors.
type TransitionDecision string

const (
	TransitionApplied  TransitionDecision = "applied"
	TransitionNoOp     TransitionDecision = "no-op"
	TransitionRejected TransitionDecision = "rejected"
)

// TransitionResult reports what a transition attempt did
type TransitionResult struct {
	Decision TransitionDecision
	From     models.CallStatus
	To       models.CallStatus
	Reason   string
}

// Applied reports whether the transition mutated the call
func (r TransitionResult) Applied() bool {
	return r.Decision == TransitionApplied
}

// TerminalReport carries everything a terminal event (end-of-call-report or a
// reconciliation fetch) knows about a finished call. Both paths feed the same
// finalization pipeline.
type TerminalReport struct {
	Status      models.CallStatus
	EndedReason string
	Duration    *int
	Cost        *float64
	StartedAt   *time.Time
	EndedAt     *time.Time
	Artifact    *dto.VapiArtifact
	Analysis    *dto.VapiAnalysis
	// Source is recorded on the analytics row for audit
	Source string
}

// CallLifecycleFlow applies event-driven transitions to call records. It is
// the only writer of Call.status and Call.outcome.
type CallLifecycleFlow interface {
	// ApplyStatusUpdate maps a provider status string onto the local state
	// graph and applies it
	ApplyStatusUpdate(ctx context.Context, call *models.Call, providerStatus, endedReason string) (TransitionResult, error)
	// PromoteToInProgress moves an early-stage call to IN_PROGRESS. Used for
	// conversation activity on calls where the provider never emits an
	// explicit in-progress status.
	PromoteToInProgress(ctx context.Context, call *models.Call) (TransitionResult, error)
	// ForceCompleted terminates a call on a hang event
	ForceCompleted(ctx context.Context, call *models.Call) (TransitionResult, error)
	// FinalizeCall runs the shared terminal pipeline: transition, transcript,
	// classification, analytics, campaign side effects
	FinalizeCall(ctx context.Context, call *models.Call, report *TerminalReport) (TransitionResult, *Classification, error)
}

// CallLifecycleFlowImpl implements the call lifecycle state machine
type CallLifecycleFlowImpl struct {
	callRepo            repository.CallRepository
	transcriptRepo      repository.TranscriptRepository
	analyticsRepo       repository.CallAnalyticsRepository
	campaignRepo        repository.CampaignRepository
	campaignContactRepo repository.CampaignContactRepository
	contactRepo         repository.ContactRepository
	tx                  repository.Transactor
	realtime            services.RealtimePublisher
	notifier            services.AppointmentNotifier
}

// NewCallLifecycleFlow creates a new call lifecycle flow instance
func NewCallLifecycleFlow(
	callRepo repository.CallRepository,
	transcriptRepo repository.TranscriptRepository,
	analyticsRepo repository.CallAnalyticsRepository,
	campaignRepo repository.CampaignRepository,
	campaignContactRepo repository.CampaignContactRepository,
	contactRepo repository.ContactRepository,
	tx repository.Transactor,
	realtime services.RealtimePublisher,
	notifier services.AppointmentNotifier,
) CallLifecycleFlow {
	return &CallLifecycleFlowImpl{
		callRepo:            callRepo,
		transcriptRepo:      transcriptRepo,
		analyticsRepo:       analyticsRepo,
		campaignRepo:        campaignRepo,
		campaignContactRepo: campaignContactRepo,
		contactRepo:         contactRepo,
		tx:                  tx,
		realtime:            realtime,
		notifier:            notifier,
	}
}

// MapProviderStatus translates the provider's status string into the local
// state graph. The provider reports "ended" for every terminal case; the ended
// reason refines it into the specific terminal status.
func MapProviderStatus(providerStatus, endedReason string) (models.CallStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "queued":
		return models.CallStatusQueued, true
	case "scheduled":
		return models.CallStatusScheduled, true
	case "ringing":
		return models.CallStatusRinging, true
	case "in-progress", "forwarding":
		return models.CallStatusInProgress, true
	case "ended":
		return RefineEndedStatus(endedReason), true
	default:
		return "", false
	}
}

// RefineEndedStatus picks the terminal status implied by the ended reason
func RefineEndedStatus(endedReason string) models.CallStatus {
	reason := strings.ToLower(endedReason)
	switch {
	case strings.Contains(reason, "busy"):
		return models.CallStatusBusy
	case strings.Contains(reason, "no-answer"), strings.Contains(reason, "did-not-answer"):
		return models.CallStatusNoAnswer
	case strings.Contains(reason, "voicemail"):
		return models.CallStatusVoicemail
	case strings.Contains(reason, "error"), strings.Contains(reason, "failed"):
		return models.CallStatusFailed
	default:
		return models.CallStatusCompleted
	}
}

// ApplyStatusUpdate handles a provider status-update event
func (f *CallLifecycleFlowImpl) ApplyStatusUpdate(ctx context.Context, call *models.Call, providerStatus, endedReason string) (TransitionResult, error) {
	target, ok := MapProviderStatus(providerStatus, endedReason)
	if !ok {
		return TransitionResult{
			Decision: TransitionRejected,
			From:     call.Status,
			Reason:   fmt.Sprintf("unrecognized provider status %q", providerStatus),
		}, nil
	}

	extra := map[string]any{}
	if endedReason != "" {
		extra["ended_reason"] = endedReason
	}

	if target.IsTerminal() {
		var result TransitionResult
		err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			var err error
			result, err = f.applyTransition(txCtx, call, target, extra)
			if err != nil {
				return err
			}
			if result.Applied() {
				return f.applyCampaignSideEffects(txCtx, call)
			}
			return nil
		})
		if err != nil {
			return TransitionResult{}, err
		}
		f.publishStatusChange(ctx, call, result)
		return result, nil
	}

	result, err := f.applyTransition(ctx, call, target, extra)
	if err != nil {
		return TransitionResult{}, err
	}
	f.publishStatusChange(ctx, call, result)
	return result, nil
}

// PromoteToInProgress handles conversation activity for calls still in an
// early status
func (f *CallLifecycleFlowImpl) PromoteToInProgress(ctx context.Context, call *models.Call) (TransitionResult, error) {
	if call.Status == models.CallStatusInProgress || call.Status.IsTerminal() {
		return TransitionResult{Decision: TransitionNoOp, From: call.Status, To: call.Status, Reason: "already past in-progress"}, nil
	}
	result, err := f.applyTransition(ctx, call, models.CallStatusInProgress, nil)
	if err != nil {
		return TransitionResult{}, err
	}
	f.publishStatusChange(ctx, call, result)
	return result, nil
}

// ForceCompleted handles a hang event
func (f *CallLifecycleFlowImpl) ForceCompleted(ctx context.Context, call *models.Call) (TransitionResult, error) {
	var result TransitionResult
	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		result, err = f.applyTransition(txCtx, call, models.CallStatusCompleted, nil)
		if err != nil {
			return err
		}
		if result.Applied() {
			return f.applyCampaignSideEffects(txCtx, call)
		}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	f.publishStatusChange(ctx, call, result)
	return result, nil
}

// FinalizeCall runs the shared terminal pipeline for a finished call. Both the
// end-of-call-report webhook and the reconciliation poller land here so the
// two paths cannot drift apart behaviorally.
//
// Re-finalizing an already-terminal call is safe: the transition is a no-op,
// campaign counters are skipped, and the transcript/analytics upserts rewrite
// the same rows.
func (f *CallLifecycleFlowImpl) FinalizeCall(ctx context.Context, call *models.Call, report *TerminalReport) (TransitionResult, *Classification, error) {
	target := report.Status
	if target == "" {
		target = RefineEndedStatus(report.EndedReason)
	}
	if !target.IsTerminal() {
		return TransitionResult{}, nil, fmt.Errorf("%w: finalize target %s is not terminal", ErrInvalidCallStatus, target)
	}

	classification := f.classify(call, report)

	extra := map[string]any{
		"outcome": classification.Outcome,
		"result":  classification.Result,
	}
	if report.EndedReason != "" {
		extra["ended_reason"] = report.EndedReason
	}
	if report.Duration != nil {
		extra["duration"] = *report.Duration
	}
	if report.Cost != nil {
		extra["cost"] = *report.Cost
	}
	if report.StartedAt != nil && call.StartedAt == nil {
		extra["started_at"] = report.StartedAt.UTC()
	}
	if report.EndedAt != nil && call.EndedAt == nil {
		extra["ended_at"] = report.EndedAt.UTC()
	}

	var result TransitionResult
	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		result, err = f.applyTransition(txCtx, call, target, extra)
		if err != nil {
			return err
		}

		if !result.Applied() {
			if !call.Status.IsTerminal() {
				// Lost the write race against a concurrent transition; the
				// winning path owns the artifacts
				return nil
			}
			// Already terminal: keep the stored status but make sure the
			// outcome and artifacts still land (a terminal status-update may
			// have won the race against the full report)
			if err := f.backfillOutcome(txCtx, call, classification, report); err != nil {
				return err
			}
		}

		if err := f.persistTranscript(txCtx, call, report); err != nil {
			return err
		}
		if err := f.persistAnalytics(txCtx, call, report, classification); err != nil {
			return err
		}

		if result.Applied() {
			if err := f.applyCampaignSideEffects(txCtx, call); err != nil {
				return err
			}
		}

		return f.propagateInboundOutcome(txCtx, call, classification)
	})
	if err != nil {
		return TransitionResult{}, nil, err
	}

	f.publishStatusChange(ctx, call, result)
	f.realtime.PublishCallEvent(ctx, dto.RealtimeCallCompleted, call.UUID.String(), map[string]any{
		"status":  string(call.Status),
		"outcome": string(classification.Outcome),
	})
	f.realtime.PublishCallEvent(ctx, dto.RealtimeAnalyticsReady, call.UUID.String(), map[string]any{
		"outcome": string(classification.Outcome),
		"result":  string(classification.Result),
	})

	f.notifyAppointment(call, classification)

	return result, classification, nil
}

// applyTransition is the single write path for call status. The guarded
// update only succeeds while the row still holds the status we read, so a
// concurrent writer simply turns this attempt into a no-op.
func (f *CallLifecycleFlowImpl) applyTransition(ctx context.Context, call *models.Call, target models.CallStatus, extra map[string]any) (TransitionResult, error) {
	from := call.Status

	if from == target {
		return TransitionResult{Decision: TransitionNoOp, From: from, To: target, Reason: "status already held"}, nil
	}
	if !from.CanTransitionTo(target) {
		return TransitionResult{
			Decision: TransitionRejected,
			From:     from,
			To:       target,
			Reason:   fmt.Sprintf("transition %s -> %s not allowed", from, target),
		}, nil
	}

	now := utils.UTCNow()
	set := map[string]any{
		"updated_at": now,
	}
	for k, v := range extra {
		set[k] = v
	}

	// Timestamps use set-if-null semantics: only the first observation of a
	// lifecycle stage records its time. A caller-provided timestamp (from the
	// provider's report) wins over the local clock.
	switch {
	case target == models.CallStatusRinging:
		if call.StartedAt == nil {
			if _, ok := set["started_at"]; !ok {
				set["started_at"] = now
			}
			call.StartedAt = &now
		}
	case target == models.CallStatusInProgress:
		if call.StartedAt == nil {
			if _, ok := set["started_at"]; !ok {
				set["started_at"] = now
			}
			call.StartedAt = &now
		}
		if call.AnsweredAt == nil {
			set["answered_at"] = now
			call.AnsweredAt = &now
		}
	case target.IsTerminal():
		if call.EndedAt == nil {
			if _, ok := set["ended_at"]; !ok {
				set["ended_at"] = now
			}
			call.EndedAt = &now
		}
	}

	applied, err := f.callRepo.UpdateStatusGuarded(ctx, call.ID, from, target, set)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("failed to apply transition %s -> %s: %w", from, target, err)
	}
	if !applied {
		return TransitionResult{Decision: TransitionNoOp, From: from, To: target, Reason: "lost write race, row moved on"}, nil
	}

	call.Status = target
	call.UpdatedAt = now
	if reason, ok := extra["ended_reason"].(string); ok {
		call.EndedReason = &reason
	}
	if o, ok := extra["outcome"].(models.CallOutcome); ok {
		call.Outcome = &o
	}
	if r, ok := extra["result"].(models.CallResult); ok {
		call.Result = &r
	}
	if d, ok := extra["duration"].(int); ok {
		call.Duration = &d
	}
	if c, ok := extra["cost"].(float64); ok {
		call.Cost = &c
	}

	return TransitionResult{Decision: TransitionApplied, From: from, To: target}, nil
}

// classify assembles the classifier input from the report and call
func (f *CallLifecycleFlowImpl) classify(call *models.Call, report *TerminalReport) *Classification {
	in := ClassificationInput{
		EndedReason: report.EndedReason,
		Duration:    report.Duration,
	}
	if in.EndedReason == "" && call.EndedReason != nil {
		in.EndedReason = *call.EndedReason
	}
	if in.Duration == nil {
		in.Duration = call.Duration
	}
	if report.EndedAt != nil {
		in.EndedAt = *report.EndedAt
	} else if call.EndedAt != nil {
		in.EndedAt = *call.EndedAt
	}
	if report.Artifact != nil {
		in.TranscriptText = report.Artifact.Transcript
	}
	if report.Analysis != nil {
		in.Summary = report.Analysis.Summary
		in.SuccessEvaluation = report.Analysis.SuccessEvaluation
		in.Structured = report.Analysis.ParseStructuredData()
	}

	c := ClassifyOutcome(in)
	return &c
}

// backfillOutcome fills the outcome of a call that reached a terminal status
// before its full report arrived
func (f *CallLifecycleFlowImpl) backfillOutcome(ctx context.Context, call *models.Call, classification *Classification, report *TerminalReport) error {
	changed := false
	if call.Outcome == nil {
		call.Outcome = &classification.Outcome
		call.Result = &classification.Result
		changed = true
	}
	if call.Duration == nil && report.Duration != nil {
		call.Duration = report.Duration
		changed = true
	}
	if call.Cost == nil && report.Cost != nil {
		call.Cost = report.Cost
		changed = true
	}
	if !changed {
		return nil
	}
	if err := f.callRepo.Update(ctx, call); err != nil {
		return fmt.Errorf("failed to backfill call outcome: %w", err)
	}
	return nil
}

// persistTranscript upserts the transcript row from the report artifact
func (f *CallLifecycleFlowImpl) persistTranscript(ctx context.Context, call *models.Call, report *TerminalReport) error {
	if report.Artifact == nil {
		return nil
	}
	art := report.Artifact
	if art.Transcript == "" && len(art.Messages) == 0 && art.RecordingURL == "" {
		return nil
	}

	transcript := &models.Transcript{
		CallID:   call.ID,
		FullText: art.Transcript,
	}
	for _, m := range art.Messages {
		transcript.Turns = append(transcript.Turns, models.TranscriptTurn{
			Role:          m.Role,
			Content:       m.Message,
			OffsetSeconds: m.SecondsFromStart,
		})
	}
	if art.RecordingURL != "" {
		transcript.RecordingURL = &art.RecordingURL
	}
	if art.RecordingDuration != nil {
		d := int(*art.RecordingDuration)
		transcript.RecordingDuration = &d
	}

	if err := f.transcriptRepo.UpsertByCallID(ctx, transcript); err != nil {
		return fmt.Errorf("failed to persist transcript: %w", err)
	}
	return nil
}

// persistAnalytics upserts the analytics row from the classification
func (f *CallLifecycleFlowImpl) persistAnalytics(ctx context.Context, call *models.Call, report *TerminalReport, c *Classification) error {
	source := report.Source
	if source == "" {
		source = models.AnalyticsSourceWebhook
	}

	analytics := &models.CallAnalytics{
		CallID:            call.ID,
		Summary:           c.Summary,
		Outcome:           c.Outcome,
		Result:            c.Result,
		Sentiment:         c.Sentiment,
		InterestLevel:     c.InterestLevel,
		AppointmentBooked: c.AppointmentBooked,
		AppointmentDate:   c.AppointmentDate,
		AppointmentTime:   c.AppointmentTime,
		AppointmentAt:     c.AppointmentAt,
		FollowUpNeeded:    c.FollowUpNeeded,
		FollowUpTopics:    c.FollowUpTopics,
		ConfirmedName:     c.ConfirmedName,
		ConfirmedPhone:    c.ConfirmedPhone,
		ConfirmedEmail:    c.ConfirmedEmail,
		ConfirmedFields:   c.ConfirmedFields,
		SyncSource:        source,
	}
	if report.Analysis != nil && len(report.Analysis.StructuredData) > 0 {
		analytics.RawAnalysis = report.Analysis.StructuredData
	}

	if err := f.analyticsRepo.UpsertByCallID(ctx, analytics); err != nil {
		return fmt.Errorf("failed to persist analytics: %w", err)
	}
	return nil
}

// applyCampaignSideEffects runs the campaign bookkeeping that belongs to the
// same logical update as the terminal transition. Only called when the
// transition was actually applied, which is what prevents double counting.
func (f *CallLifecycleFlowImpl) applyCampaignSideEffects(ctx context.Context, call *models.Call) error {
	if call.CampaignID == nil {
		return nil
	}

	campaign, err := f.campaignRepo.ByID(ctx, *call.CampaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign for side effects: %w", err)
	}
	if campaign == nil {
		return nil
	}

	completedDelta, failedDelta := 1, 0
	contactStatus := models.CampaignContactStatusCompleted
	if call.Status == models.CallStatusFailed {
		completedDelta, failedDelta = 0, 1
		contactStatus = models.CampaignContactStatusFailed
	}

	if err := f.campaignRepo.IncrementCounters(ctx, campaign.ID, completedDelta, failedDelta); err != nil {
		return fmt.Errorf("failed to increment campaign counters: %w", err)
	}

	if call.ContactID != nil {
		if err := f.campaignContactRepo.MarkStatus(ctx, campaign.ID, *call.ContactID, contactStatus, nil); err != nil {
			return fmt.Errorf("failed to mark campaign contact: %w", err)
		}
	}

	finished, err := f.campaignRepo.CompleteIfFinished(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("failed to check campaign completion: %w", err)
	}

	f.realtime.PublishCampaignEvent(ctx, dto.RealtimeCampaignProgressChanged, campaign.UUID.String(), map[string]any{
		"call_uuid": call.UUID.String(),
		"status":    string(call.Status),
		"finished":  finished,
	})

	return nil
}

// propagateInboundOutcome copies a successful inbound callback's outcome onto
// the outbound call it answers. The business outcome belongs to the
// relationship, not the individual call leg.
func (f *CallLifecycleFlowImpl) propagateInboundOutcome(ctx context.Context, call *models.Call, c *Classification) error {
	if call.Direction != models.CallDirectionInbound {
		return nil
	}
	if c.Outcome != models.CallOutcomeSuccess && c.Outcome != models.CallOutcomePartial {
		return nil
	}

	since := utils.UTCNowAdd(-utils.InboundLinkLookback)
	outbound, err := f.callRepo.LatestOutboundToNumber(ctx, call.PhoneNumber, since)
	if err != nil {
		return fmt.Errorf("failed to trace outbound call for propagation: %w", err)
	}
	if outbound == nil || outbound.ID == call.ID {
		return nil
	}

	outbound.Outcome = &c.Outcome
	outbound.Result = &c.Result
	if err := f.callRepo.Update(ctx, outbound); err != nil {
		return fmt.Errorf("failed to propagate outcome to outbound call: %w", err)
	}
	return nil
}

// publishStatusChange pushes a realtime event for applied transitions
func (f *CallLifecycleFlowImpl) publishStatusChange(ctx context.Context, call *models.Call, result TransitionResult) {
	if !result.Applied() {
		return
	}
	f.realtime.PublishCallEvent(ctx, dto.RealtimeCallStatusChanged, call.UUID.String(), map[string]any{
		"from": string(result.From),
		"to":   string(result.To),
	})
}

// notifyAppointment fires the booked-appointment notification. Delivery is
// fire-and-forget; a failure is logged and never fails the finalization that
// produced it.
func (f *CallLifecycleFlowImpl) notifyAppointment(call *models.Call, c *Classification) {
	if !c.AppointmentBooked || c.AppointmentAt == nil || f.notifier == nil {
		return
	}

	n := &services.AppointmentNotification{
		CallUUID:      call.UUID.String(),
		AppointmentAt: c.AppointmentAt,
		Summary:       c.Summary,
	}
	if c.AppointmentDate != nil {
		n.RawDate = *c.AppointmentDate
	}
	if c.AppointmentTime != nil {
		n.RawTime = *c.AppointmentTime
	}

	// Prefer identity confirmed verbally during the call over the stored
	// contact record
	if c.ConfirmedName != nil {
		n.ContactName = *c.ConfirmedName
	}
	if c.ConfirmedPhone != nil {
		n.ContactPhone = *c.ConfirmedPhone
	} else {
		n.ContactPhone = call.PhoneNumber
	}
	if c.ConfirmedEmail != nil {
		n.ContactEmail = *c.ConfirmedEmail
	}

	contactID := call.ContactID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if (n.ContactName == "" || n.ContactEmail == "") && contactID != nil {
			if contact, err := f.contactRepo.ByID(ctx, *contactID); err == nil && contact != nil {
				if n.ContactName == "" {
					n.ContactName = contact.FullName()
				}
				if n.ContactEmail == "" && contact.Email != nil {
					n.ContactEmail = *contact.Email
				}
			}
		}

		if err := f.notifier.NotifyAppointmentBooked(ctx, n); err != nil {
			log.Printf("appointment notification failed for call %s: %v", n.CallUUID, err)
		}
	}()
}
