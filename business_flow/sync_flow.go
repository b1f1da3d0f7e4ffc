// Package businessflow contains the core business logic and use cases for call reconciliation
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

// sweepBatchLimit caps how many stuck calls one sweep loads
const sweepBatchLimit = 200

// SyncFlow repairs local call state when webhook delivery failed, by pulling
// the provider's authoritative state. It shares the lifecycle finalization
// pipeline with the webhook path so the two cannot drift apart.
type SyncFlow interface {
	// GetCall returns the operator view of one call
	GetCall(ctx context.Context, callUUID uuid.UUID) (*dto.CallDTO, error)
	// SyncCall force-syncs one call against the provider
	SyncCall(ctx context.Context, callUUID uuid.UUID) (*dto.SyncCallResponse, error)
	// SweepStuckCalls runs one full reconciliation sweep. Overlapping sweeps
	// are rejected, not queued.
	SweepStuckCalls(ctx context.Context) (*dto.SyncSweepResponse, error)
}

// SyncFlowImpl implements the reconciliation flow
type SyncFlowImpl struct {
	callRepo   repository.CallRepository
	vapiClient services.VapiClient
	lifecycle  CallLifecycleFlow

	// graceWindow must exceed normal webhook latency by a wide margin so a
	// healthy in-flight call is never reconciled mid-stream
	graceWindow time.Duration

	sweepMu sync.Mutex
}

// NewSyncFlow creates a new reconciliation flow instance
func NewSyncFlow(
	callRepo repository.CallRepository,
	vapiClient services.VapiClient,
	lifecycle CallLifecycleFlow,
	graceWindow time.Duration,
) SyncFlow {
	if graceWindow <= 0 {
		graceWindow = utils.StuckCallCutoff
	}
	return &SyncFlowImpl{
		callRepo:    callRepo,
		vapiClient:  vapiClient,
		lifecycle:   lifecycle,
		graceWindow: graceWindow,
	}
}

// SweepStuckCalls finds calls stuck in a non-terminal status past the grace
// window and converges each against the provider. One call's failure is
// logged and does not abort the sweep.
func (f *SyncFlowImpl) SweepStuckCalls(ctx context.Context) (*dto.SyncSweepResponse, error) {
	if !f.sweepMu.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer f.sweepMu.Unlock()

	cutoff := utils.UTCNowAdd(-f.graceWindow)
	stuck, err := f.callRepo.ListStuck(ctx, cutoff, sweepBatchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck calls: %w", err)
	}

	resp := &dto.SyncSweepResponse{Checked: len(stuck)}
	for _, call := range stuck {
		synced, err := f.syncOne(ctx, call)
		switch {
		case err != nil:
			resp.Errored++
			log.Printf("reconciliation: sync failed for call %s: %v", call.UUID, err)
		case synced:
			resp.Synced++
		default:
			resp.Skipped++
		}
	}

	return resp, nil
}

// GetCall returns the operator view of one call
func (f *SyncFlowImpl) GetCall(ctx context.Context, callUUID uuid.UUID) (*dto.CallDTO, error) {
	call, err := f.callRepo.ByUUID(ctx, callUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load call: %w", err)
	}
	if call == nil {
		return nil, ErrCallNotFound
	}
	return ToCallDTO(call), nil
}

// SyncCall force-syncs a single call as a manual remediation operation
func (f *SyncFlowImpl) SyncCall(ctx context.Context, callUUID uuid.UUID) (*dto.SyncCallResponse, error) {
	call, err := f.callRepo.ByUUID(ctx, callUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load call: %w", err)
	}
	if call == nil {
		return nil, ErrCallNotFound
	}

	resp := &dto.SyncCallResponse{UUID: call.UUID.String()}

	if call.Status.IsTerminal() {
		resp.Status = string(call.Status)
		if call.Outcome != nil {
			resp.Outcome = string(*call.Outcome)
		}
		return resp, nil
	}

	synced, err := f.syncOne(ctx, call)
	if err != nil {
		return nil, err
	}

	resp.Synced = synced
	resp.Status = string(call.Status)
	if call.Outcome != nil {
		resp.Outcome = string(*call.Outcome)
	}
	return resp, nil
}

// syncOne converges one call against the provider's authoritative state.
// Returns true when the call changed.
func (f *SyncFlowImpl) syncOne(ctx context.Context, call *models.Call) (bool, error) {
	// The sweep query races normal webhook processing; re-check before
	// touching the provider
	if call.Status.IsTerminal() {
		return false, nil
	}

	// A call the provider never accepted can only be failed locally
	if call.VapiCallID == nil {
		report := &TerminalReport{
			Status:      models.CallStatusFailed,
			EndedReason: "dispatch-never-completed",
			Source:      models.AnalyticsSourceReconciliation,
		}
		result, _, err := f.lifecycle.FinalizeCall(ctx, call, report)
		if err != nil {
			return false, err
		}
		return result.Applied(), nil
	}

	vc, err := f.vapiClient.GetCall(ctx, *call.VapiCallID)
	if err != nil {
		return false, fmt.Errorf("provider fetch failed: %w", err)
	}

	// Still live on the provider side: leave it alone
	if vc.Status != "ended" {
		return false, nil
	}

	report := terminalReportFromProviderCall(vc)
	result, _, err := f.lifecycle.FinalizeCall(ctx, call, report)
	if err != nil {
		return false, err
	}
	return result.Applied(), nil
}

// terminalReportFromProviderCall builds the finalization input from a
// provider call object fetched during reconciliation
func terminalReportFromProviderCall(vc *dto.VapiCall) *TerminalReport {
	report := &TerminalReport{
		Status:      RefineEndedStatus(vc.EndedReason),
		EndedReason: vc.EndedReason,
		Cost:        vc.Cost,
		StartedAt:   vc.StartedAt,
		EndedAt:     vc.EndedAt,
		Artifact:    vc.Artifact,
		Analysis:    vc.Analysis,
		Source:      models.AnalyticsSourceReconciliation,
	}
	if vc.StartedAt != nil && vc.EndedAt != nil && vc.EndedAt.After(*vc.StartedAt) {
		d := int(vc.EndedAt.Sub(*vc.StartedAt).Seconds())
		report.Duration = &d
	}
	return report
}
