// Package scheduler runs POS batch sync on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appkeg "github.com/taproom/kegledger/internal/application/keg"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Syncer runs one full POS sync
type Syncer interface {
	SyncAll(ctx context.Context) (*appkeg.SyncResult, error)
}

// SyncRecorder receives the outcome of every run
type SyncRecorder interface {
	RecordSync(ctx context.Context, synced, failed int, d time.Duration)
}

// SyncTriggerConfig holds configuration for the sync trigger
type SyncTriggerConfig struct {
	// Interval between scheduled runs
	Interval time.Duration
	// Timeout bounds a single run, scheduled or manual
	Timeout time.Duration
}

// DefaultSyncTriggerConfig returns default sync trigger configuration
func DefaultSyncTriggerConfig() SyncTriggerConfig {
	return SyncTriggerConfig{
		Interval: 15 * time.Minute,
		Timeout:  5 * time.Minute,
	}
}

// SyncTrigger runs SyncAll every Interval and on demand. At most one run is
// in flight at a time; a tick that lands during a run is skipped and a manual
// request fails with ErrSyncInProgress.
type SyncTrigger struct {
	config   SyncTriggerConfig
	syncer   Syncer
	recorder SyncRecorder
	logger   *zap.Logger

	running   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isStarted bool
}

// NewSyncTrigger creates a new sync trigger. recorder may be nil.
func NewSyncTrigger(config SyncTriggerConfig, syncer Syncer, recorder SyncRecorder, log *zap.Logger) (*SyncTrigger, error) {
	if config.Interval <= 0 || config.Timeout <= 0 {
		return nil, fmt.Errorf("%w: interval and timeout must be positive", ErrInvalidConfig)
	}
	return &SyncTrigger{
		config:   config,
		syncer:   syncer,
		recorder: recorder,
		logger:   logger.OrNop(log).Named("scheduler.sync"),
	}, nil
}

// Start starts the interval loop
func (t *SyncTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isStarted {
		return nil
	}
	t.isStarted = true

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Sync trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Duration("timeout", t.config.Timeout),
	)
	return nil
}

// Stop stops the loop and waits for an in-flight run, bounded by ctx
func (t *SyncTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isStarted {
		t.mu.Unlock()
		return nil
	}
	t.isStarted = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Sync trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncAll runs a sync now. It satisfies the same contract as the coordinator
// so the HTTP layer can share the overlap guard with the schedule.
func (t *SyncTrigger) SyncAll(ctx context.Context) (*appkeg.SyncResult, error) {
	if !t.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer t.running.Store(false)
	return t.run(ctx)
}

func (t *SyncTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.SyncAll(ctx); err != nil {
				if errors.Is(err, ErrSyncInProgress) {
					t.logger.Warn("Skipping scheduled sync, previous run still in progress")
					continue
				}
				t.logger.Error("Scheduled sync failed", zap.Error(err))
			}
		}
	}
}

func (t *SyncTrigger) run(ctx context.Context) (*appkeg.SyncResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	start := time.Now()
	result, err := t.syncer.SyncAll(ctx)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	failed := len(result.Errors)
	if t.recorder != nil {
		t.recorder.RecordSync(ctx, result.Synced, failed, elapsed)
	}

	log := t.logger.With(
		zap.Int("synced", result.Synced),
		zap.Int("total", result.Total),
		zap.Int("failed", failed),
		zap.Duration("duration", elapsed),
	)
	for _, e := range result.Errors {
		log.Warn("Keg sync failed", logger.KegID(e.KegID), zap.String("error", e.Error))
	}
	log.Info("POS sync completed")
	return result, nil
}
