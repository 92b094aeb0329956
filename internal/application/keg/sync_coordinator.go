package keg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"github.com/taproom/kegledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultSyncConcurrency = 8

// SyncError is a per-keg sync failure
type SyncError struct {
	KegID uuid.UUID `json:"keg_id"`
	Error string    `json:"error"`
}

// SyncResult summarizes a batch POS sync
type SyncResult struct {
	Synced int         `json:"synced"`
	Total  int         `json:"total"`
	Errors []SyncError `json:"errors"`
}

// SyncCoordinator refreshes the POS snapshot of every active keg
type SyncCoordinator struct {
	kegRepo      keg.KegRepository
	snapshotRepo keg.PosSnapshotRepository
	pos          keg.POSAdapter
	concurrency  int
	now          func() time.Time
	logger       *zap.Logger
}

// NewSyncCoordinator creates a new SyncCoordinator.
// concurrency bounds the number of kegs synced at once.
func NewSyncCoordinator(
	kegRepo keg.KegRepository,
	snapshotRepo keg.PosSnapshotRepository,
	pos keg.POSAdapter,
	concurrency int,
	log *zap.Logger,
) *SyncCoordinator {
	if concurrency < 1 {
		concurrency = defaultSyncConcurrency
	}
	return &SyncCoordinator{
		kegRepo:      kegRepo,
		snapshotRepo: snapshotRepo,
		pos:          pos,
		concurrency:  concurrency,
		now:          time.Now,
		logger:       logger.OrNop(log),
	}
}

// SyncAll upserts a snapshot for every active keg.
// Per-keg failures are collected in the result and never stop the other kegs.
// The only error returned is a failure to list the active kegs.
func (s *SyncCoordinator) SyncAll(ctx context.Context) (*SyncResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "pos_sync", "sync_all")
	defer span.End()

	log := logger.For(ctx, s.logger)
	if err := s.pos.SyncSales(ctx); err != nil {
		log.Warn("POS sales refresh failed, syncing per keg", zap.Error(err))
	}

	kegs, err := s.kegRepo.ListActive(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("list active kegs: %w", err)
	}

	// one slot per keg; each task writes only its own index
	failures := make([]error, len(kegs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range kegs {
		g.Go(func() error {
			failures[i] = s.syncOne(ctx, kegs[i].ID)
			return nil
		})
	}
	_ = g.Wait()

	result := &SyncResult{Total: len(kegs), Errors: []SyncError{}}
	for i, ferr := range failures {
		if ferr != nil {
			result.Errors = append(result.Errors, SyncError{KegID: kegs[i].ID, Error: ferr.Error()})
			continue
		}
		result.Synced++
	}

	telemetry.SetAttributes(span, "total", result.Total, "synced", result.Synced)
	log.Info("POS sync completed",
		zap.Int("total", result.Total),
		zap.Int("synced", result.Synced),
		zap.Int("failed", len(result.Errors)),
	)
	telemetry.SetOK(span)
	return result, nil
}

func (s *SyncCoordinator) syncOne(ctx context.Context, kegID uuid.UUID) error {
	sold, err := s.pos.GetPintCount(ctx, kegID)
	if err != nil {
		return fmt.Errorf("get pint count: %w", err)
	}
	snapshot := &keg.PosSnapshot{KegID: kegID, PintsSold: sold, SyncedAt: s.now().UTC()}
	if err := s.snapshotRepo.Upsert(ctx, snapshot); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}
