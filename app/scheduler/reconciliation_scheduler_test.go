package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/stretchr/testify/assert"
)

// stubSyncFlow counts sweep invocations
type stubSyncFlow struct {
	sweeps atomic.Int64
}

func (s *stubSyncFlow) GetCall(ctx context.Context, callUUID uuid.UUID) (*dto.CallDTO, error) {
	return nil, nil
}

func (s *stubSyncFlow) SyncCall(ctx context.Context, callUUID uuid.UUID) (*dto.SyncCallResponse, error) {
	return nil, nil
}

func (s *stubSyncFlow) SweepStuckCalls(ctx context.Context) (*dto.SyncSweepResponse, error) {
	s.sweeps.Add(1)
	return &dto.SyncSweepResponse{}, nil
}

func TestReconciliationScheduler_SweepsOnStartAndOnTrigger(t *testing.T) {
	flow := &stubSyncFlow{}
	sched := NewReconciliationScheduler(flow, time.Hour)

	stop := sched.Start(context.Background())
	defer stop()

	// One sweep runs immediately at startup
	assert.Eventually(t, func() bool {
		return flow.sweeps.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A manual trigger runs a sweep without waiting for the ticker
	sched.TriggerSweep()
	assert.Eventually(t, func() bool {
		return flow.sweeps.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconciliationScheduler_TriggerCoalescesWhileQueued(t *testing.T) {
	flow := &stubSyncFlow{}
	sched := NewReconciliationScheduler(flow, time.Hour)

	// Not started: triggers queue into the buffered channel and collapse
	sched.TriggerSweep()
	sched.TriggerSweep()
	sched.TriggerSweep()

	stop := sched.Start(context.Background())
	defer stop()

	// Startup sweep plus the single coalesced trigger
	assert.Eventually(t, func() bool {
		return flow.sweeps.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// And it stays there
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(2), flow.sweeps.Load())
}
