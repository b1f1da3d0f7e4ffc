// Package scheduler
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	businessflow "github.com/simurgh-io/simurgh/business_flow"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ReconciliationScheduler runs the stuck-call sweep on a fixed interval and
// on demand. The scheduler owns its own start/stop lifecycle; on-demand
// sweeps go through a trigger channel rather than shared scheduling state.
type ReconciliationScheduler struct {
	syncFlow businessflow.SyncFlow
	logger   *log.Logger
	interval time.Duration

	trigger chan struct{}
}

// NewReconciliationScheduler creates a new reconciliation scheduler
func NewReconciliationScheduler(syncFlow businessflow.SyncFlow, interval time.Duration) *ReconciliationScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s := &ReconciliationScheduler{
		syncFlow: syncFlow,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}

	// Initialize scheduler-specific logger (to stdout and persistent file)
	if err := s.initSchedulerLogger(); err != nil {
		// Fallback to default stdout logger if file logger init fails
		s.logger = log.Default()
		s.logger.Printf("reconciliation: failed to initialize file logger: %v", err)
	}

	return s
}

// initSchedulerLogger configures a logger that writes to both stdout and a rotating file under data/ (or /data)
func (s *ReconciliationScheduler) initSchedulerLogger() error {
	// Prefer relative data/ then fallback to /data for containerized environments
	candidates := []string{
		filepath.Join("data"),
		"/data",
	}
	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "reconciliation.log"),
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		mw := io.MultiWriter(os.Stdout, rotator)
		// log.Logger is goroutine-safe; include timestamps with microseconds and UTC
		s.logger = log.New(mw, "reconciliation ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		return nil
	}
	return os.ErrPermission
}

// Start launches the sweep loop in a background goroutine and returns a stop function
func (s *ReconciliationScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			case <-s.trigger:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

// TriggerSweep requests an out-of-schedule sweep. Non-blocking; a request
// while one is already queued coalesces into it.
func (s *ReconciliationScheduler) TriggerSweep() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *ReconciliationScheduler) runOnce(ctx context.Context) {
	started := time.Now()

	resp, err := s.syncFlow.SweepStuckCalls(ctx)
	if err != nil {
		if businessflow.IsSweepInProgress(err) {
			s.logger.Printf("sweep skipped: previous run still active")
			return
		}
		s.logger.Printf("sweep failed: %v", err)
		return
	}

	s.logger.Printf("sweep finished in %s: checked=%d synced=%d skipped=%d errored=%d",
		time.Since(started).Round(time.Millisecond), resp.Checked, resp.Synced, resp.Skipped, resp.Errored)
}
