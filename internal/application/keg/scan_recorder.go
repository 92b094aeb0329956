package keg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"github.com/taproom/kegledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const defaultMirrorTimeout = 10 * time.Second

// RecordScanInput is a custody scan of a physical keg
type RecordScanInput struct {
	KegID     uuid.UUID `json:"keg_id" validate:"required"`
	ScannedBy string    `json:"scanned_by" validate:"required,max=255"`
	Location  string    `json:"location" validate:"required,max=255"`
	// Timestamp defaults to now when zero
	Timestamp time.Time `json:"timestamp"`
}

// ScanResult is the outcome of a recorded scan.
// Warnings carries best-effort failures that did not fail the scan.
type ScanResult struct {
	Scan     *keg.KegScan
	Keg      *keg.Keg
	Warnings []string
}

// ScanRecorderConfig configures ledger mirroring after a scan
type ScanRecorderConfig struct {
	MirrorMode    MirrorMode
	MirrorTimeout time.Duration
}

// ScanRecorder appends custody scans and moves the keg's holder
type ScanRecorder struct {
	txScope        TransactionScope
	ledger         keg.LedgerAdapter
	locker         KegLocker
	eventPublisher shared.EventPublisher
	cfg            ScanRecorderConfig
	logger         *zap.Logger

	// tracks in-flight async mirrors so Close can drain them
	mirrors sync.WaitGroup

	queueMu sync.Mutex
	queues  map[string]*mirrorQueue
}

// mirrorQueue holds the newest metadata not yet sent for one token.
// One worker per token drains it, so updates land in scan order and a
// backlog collapses to the latest state.
type mirrorQueue struct {
	pending keg.TokenMetadata
	hasNext bool
	log     *zap.Logger
}

// NewScanRecorder creates a new ScanRecorder
func NewScanRecorder(
	txScope TransactionScope,
	ledger keg.LedgerAdapter,
	locker KegLocker,
	cfg ScanRecorderConfig,
	log *zap.Logger,
) *ScanRecorder {
	if locker == nil {
		locker = nopLocker{}
	}
	if cfg.MirrorMode == "" {
		cfg.MirrorMode = MirrorAsync
	}
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = defaultMirrorTimeout
	}
	return &ScanRecorder{
		txScope: txScope,
		ledger:  ledger,
		locker:  locker,
		cfg:     cfg,
		logger:  logger.OrNop(log),
		queues:  make(map[string]*mirrorQueue),
	}
}

// SetEventPublisher sets the event publisher for domain events
func (s *ScanRecorder) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// RecordScan appends a scan and updates holder, last scan and location in one transaction.
// Mirroring the keg's metadata to the ledger afterwards never fails the scan.
func (s *ScanRecorder) RecordScan(ctx context.Context, input RecordScanInput) (*ScanResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "keg_scan", "record")
	defer span.End()

	if err := validateInput(input); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, "keg_id", input.KegID.String(), "location", input.Location)

	scan, err := keg.NewKegScan(input.KegID, input.ScannedBy, input.Location, input.Timestamp)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, input.KegID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer unlock()

	var k *keg.Keg
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		found, err := repos.KegRepo().FindByID(ctx, input.KegID)
		if err != nil {
			return err
		}
		if err := found.ApplyScan(scan); err != nil {
			return err
		}
		if err := repos.ScanRepo().Insert(ctx, scan); err != nil {
			return fmt.Errorf("insert scan: %w", err)
		}
		if err := repos.KegRepo().UpdateHolder(ctx, found); err != nil {
			return err
		}
		k = found
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	log := logger.For(ctx, s.logger).With(logger.KegID(k.ID))
	log.Info("Scan recorded",
		zap.String("scanned_by", scan.ScannedBy),
		zap.String("location", scan.Location),
		zap.Time("scanned_at", scan.Timestamp),
	)
	publishDomainEvents(ctx, s.eventPublisher, log, k)

	result := &ScanResult{Scan: scan, Keg: k}
	if warning := s.mirror(ctx, k, log); warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}
	telemetry.SetOK(span)
	return result, nil
}

// mirror pushes the keg's metadata to the ledger. It returns a warning only in sync mode.
func (s *ScanRecorder) mirror(ctx context.Context, k *keg.Keg, log *zap.Logger) string {
	if s.ledger == nil {
		return ""
	}
	if !k.HasToken() {
		log.Warn("Skipping ledger mirror: keg has no token")
		return ""
	}
	tokenID := k.TokenID
	metadata := k.Metadata()

	if s.cfg.MirrorMode == MirrorSync {
		if err := s.updateMetadata(ctx, tokenID, metadata, log); err != nil {
			return fmt.Sprintf("ledger metadata mirror failed: %v", err)
		}
		return ""
	}

	s.enqueueMirror(context.WithoutCancel(ctx), tokenID, metadata, log)
	return ""
}

// enqueueMirror schedules an async mirror. A newer scan replaces metadata that
// is still waiting; it never overtakes an update already in flight.
func (s *ScanRecorder) enqueueMirror(ctx context.Context, tokenID string, metadata keg.TokenMetadata, log *zap.Logger) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if q, ok := s.queues[tokenID]; ok {
		q.pending, q.hasNext, q.log = metadata, true, log
		return
	}
	s.queues[tokenID] = &mirrorQueue{pending: metadata, hasNext: true, log: log}
	s.mirrors.Add(1)
	go s.drainMirrors(ctx, tokenID)
}

func (s *ScanRecorder) drainMirrors(ctx context.Context, tokenID string) {
	defer s.mirrors.Done()
	for {
		s.queueMu.Lock()
		q := s.queues[tokenID]
		if !q.hasNext {
			delete(s.queues, tokenID)
			s.queueMu.Unlock()
			return
		}
		metadata, log := q.pending, q.log
		q.hasNext = false
		s.queueMu.Unlock()

		_ = s.updateMetadata(ctx, tokenID, metadata, log)
	}
}

func (s *ScanRecorder) updateMetadata(ctx context.Context, tokenID string, metadata keg.TokenMetadata, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.MirrorTimeout)
	defer cancel()

	tx, err := s.ledger.UpdateMetadata(ctx, tokenID, metadata)
	if err != nil {
		log.Warn("Ledger metadata mirror failed", logger.TokenID(tokenID), zap.Error(err))
		return err
	}
	log.Debug("Ledger metadata mirrored", logger.TokenID(tokenID), logger.TxHash(tx.Hash))
	return nil
}

// Close waits for in-flight async mirrors to finish
func (s *ScanRecorder) Close() {
	s.mirrors.Wait()
}
