package keg

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"github.com/taproom/kegledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RegisterKegInput describes a freshly filled keg
type RegisterKegInput struct {
	Brewery    string          `json:"brewery" validate:"required,max=255"`
	BeerStyle  string          `json:"beer_style" validate:"max=255"`
	ABV        decimal.Decimal `json:"abv"`
	SizeLiters decimal.Decimal `json:"size_liters"`
	// ExpectedPints is derived from SizeLiters when zero
	ExpectedPints int    `json:"expected_pints" validate:"gte=0"`
	Holder        string `json:"holder" validate:"max=255"`
	Location      string `json:"location" validate:"max=255"`
}

// KegService registers kegs and serves read access to keg records
type KegService struct {
	kegRepo        keg.KegRepository
	scanRepo       keg.ScanRepository
	reportRepo     keg.VarianceReportRepository
	snapshotRepo   keg.PosSnapshotRepository
	ledger         keg.LedgerAdapter
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewKegService creates a new KegService
func NewKegService(
	kegRepo keg.KegRepository,
	scanRepo keg.ScanRepository,
	reportRepo keg.VarianceReportRepository,
	snapshotRepo keg.PosSnapshotRepository,
	ledger keg.LedgerAdapter,
	log *zap.Logger,
) *KegService {
	return &KegService{
		kegRepo:      kegRepo,
		scanRepo:     scanRepo,
		reportRepo:   reportRepo,
		snapshotRepo: snapshotRepo,
		ledger:       ledger,
		logger:       logger.OrNop(log),
	}
}

// SetEventPublisher sets the event publisher for domain events
func (s *KegService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// RegisterKeg creates the keg record and mints its ledger token.
// If minting fails the keg is not created.
func (s *KegService) RegisterKeg(ctx context.Context, input RegisterKegInput) (*keg.Keg, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "keg", "register")
	defer span.End()

	if err := validateInput(input); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	k, err := keg.NewKeg(keg.NewKegParams{
		Brewery:       input.Brewery,
		BeerStyle:     input.BeerStyle,
		ABV:           input.ABV,
		SizeLiters:    input.SizeLiters,
		ExpectedPints: input.ExpectedPints,
		Holder:        input.Holder,
		Location:      input.Location,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	log := logger.For(ctx, s.logger).With(logger.KegID(k.ID))

	// mint before any write so a ledger failure leaves no keg behind
	ref, err := s.ledger.Mint(ctx, k.Metadata())
	if err != nil {
		err = classifyLedgerError(err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	k.AssignToken(ref.TokenID)
	log = log.With(logger.TokenID(ref.TokenID), logger.TxHash(ref.Tx.Hash))

	if err := s.kegRepo.Create(ctx, k); err != nil {
		log.Error("Keg record not created, minted token is orphaned", zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("create keg: %w", err)
	}

	log.Info("Keg registered",
		zap.String("brewery", k.Brewery),
		zap.Int("expected_pints", k.ExpectedPints),
	)
	publishDomainEvents(ctx, s.eventPublisher, log, k)
	telemetry.SetOK(span)
	return k, nil
}

// GetKeg returns a keg by id
func (s *KegService) GetKeg(ctx context.Context, id uuid.UUID) (*keg.Keg, error) {
	return s.kegRepo.FindByID(ctx, id)
}

// ListKegs returns a page of kegs, optionally only active ones
func (s *KegService) ListKegs(ctx context.Context, filter shared.Filter, activeOnly bool) ([]keg.Keg, int64, error) {
	return s.kegRepo.List(ctx, filter, activeOnly)
}

// ListScans returns the keg's ordered provenance trail
func (s *KegService) ListScans(ctx context.Context, kegID uuid.UUID) ([]keg.KegScan, error) {
	if _, err := s.kegRepo.FindByID(ctx, kegID); err != nil {
		return nil, err
	}
	return s.scanRepo.ListByKeg(ctx, kegID)
}

// GetVarianceReport returns a variance report by id
func (s *KegService) GetVarianceReport(ctx context.Context, id uuid.UUID) (*keg.VarianceReport, error) {
	return s.reportRepo.FindByID(ctx, id)
}

// GetKegVarianceReport returns the variance report recorded for a keg
func (s *KegService) GetKegVarianceReport(ctx context.Context, kegID uuid.UUID) (*keg.VarianceReport, error) {
	return s.reportRepo.FindByKeg(ctx, kegID)
}

// ListVarianceReports returns a page of variance reports
func (s *KegService) ListVarianceReports(ctx context.Context, filter shared.Filter, unresolvedOnly bool) ([]keg.VarianceReport, int64, error) {
	return s.reportRepo.List(ctx, filter, unresolvedOnly)
}

// GetPosSnapshot returns the last synced POS count for a keg
func (s *KegService) GetPosSnapshot(ctx context.Context, kegID uuid.UUID) (*keg.PosSnapshot, error) {
	return s.snapshotRepo.FindByKeg(ctx, kegID)
}
