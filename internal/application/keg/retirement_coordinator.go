package keg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"github.com/taproom/kegledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RetirementResult is the outcome of a completed retirement
type RetirementResult struct {
	Keg      *keg.Keg
	Outcome  keg.VarianceOutcome
	Variance int
	Status   keg.VarianceStatus
	// BurnTx is nil when no burn happened in this call
	BurnTx             *keg.TxRef
	AnalysisDispatched bool
	Report             *keg.VarianceReport
	Warnings           []string
}

// RetirementCoordinator ends a keg's life: it reconciles POS sales against the
// expected pints, burns the ledger token and freezes the keg.
type RetirementCoordinator struct {
	kegRepo        keg.KegRepository
	txScope        TransactionScope
	pos            keg.POSAdapter
	ledger         keg.LedgerAdapter
	engine         *keg.VarianceEngine
	dispatcher     *AnalysisDispatcher
	locker         KegLocker
	eventPublisher shared.EventPublisher
	now            func() time.Time
	logger         *zap.Logger
}

// NewRetirementCoordinator creates a new RetirementCoordinator.
// A nil dispatcher skips analysis of risky retirements.
func NewRetirementCoordinator(
	kegRepo keg.KegRepository,
	txScope TransactionScope,
	pos keg.POSAdapter,
	ledger keg.LedgerAdapter,
	engine *keg.VarianceEngine,
	dispatcher *AnalysisDispatcher,
	locker KegLocker,
	log *zap.Logger,
) *RetirementCoordinator {
	if locker == nil {
		locker = nopLocker{}
	}
	return &RetirementCoordinator{
		kegRepo:    kegRepo,
		txScope:    txScope,
		pos:        pos,
		ledger:     ledger,
		engine:     engine,
		dispatcher: dispatcher,
		locker:     locker,
		now:        time.Now,
		logger:     logger.OrNop(log),
	}
}

// SetEventPublisher sets the event publisher for domain events
func (c *RetirementCoordinator) SetEventPublisher(publisher shared.EventPublisher) {
	c.eventPublisher = publisher
}

// Retire retires the keg on behalf of its current holder.
//
// Steps run in a fixed order: POS count, variance, burn, terminal write, analysis.
// A failure before the burn leaves nothing changed. A failure of the terminal
// write after a successful burn returns *keg.PartialRetirementError and is
// never retried here; see RepairPartialRetirement.
func (c *RetirementCoordinator) Retire(ctx context.Context, kegID uuid.UUID, requestedBy keg.Actor) (*RetirementResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "keg_retirement", "retire")
	defer span.End()
	telemetry.SetAttributes(span, "keg_id", kegID.String(), "actor_id", requestedBy.ID)

	log := logger.For(ctx, c.logger).With(logger.KegID(kegID), logger.ActorID(requestedBy.ID))

	unlock, err := c.locker.Lock(ctx, kegID)
	if err != nil {
		err = c.settleBusy(ctx, kegID, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer unlock()

	k, err := c.kegRepo.FindByID(ctx, kegID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := k.CheckRetirementBy(requestedBy); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	outcome, err := c.reconcile(ctx, k)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, "variance", outcome.Variance, "status", outcome.Status.String())

	result := &RetirementResult{}
	if k.HasToken() {
		tx, err := c.ledger.Burn(ctx, k.TokenID)
		if err != nil {
			err = classifyLedgerError(err)
			if errors.Is(err, keg.ErrAlreadyBurned) {
				log.Error("Token already burned while keg is active, reconciliation required",
					logger.TokenID(k.TokenID))
			} else {
				log.Warn("Token burn failed, retirement aborted", logger.TokenID(k.TokenID), zap.Error(err))
			}
			telemetry.RecordError(span, err)
			return nil, err
		}
		result.BurnTx = &tx
		log = log.With(logger.TokenID(k.TokenID), logger.TxHash(tx.Hash))
	} else {
		log.Warn("Keg has no ledger token, skipping burn")
		result.Warnings = append(result.Warnings, "keg has no ledger token; nothing was burned")
	}

	if err := c.persistRetirement(ctx, k, outcome); err != nil {
		if result.BurnTx != nil {
			perr := &keg.PartialRetirementError{KegID: k.ID, TokenID: k.TokenID, BurnTx: *result.BurnTx, Cause: err}
			log.Error("Token burned but keg retirement not persisted", zap.Error(err))
			telemetry.RecordError(span, perr)
			return nil, perr
		}
		telemetry.RecordError(span, err)
		return nil, err
	}
	log.Info("Keg retired",
		zap.Int("expected_pints", outcome.Expected),
		zap.Int("pints_sold", outcome.Actual),
		zap.Int("variance", outcome.Variance),
		zap.String("status", outcome.Status.String()),
	)
	publishDomainEvents(ctx, c.eventPublisher, log, k)

	c.fill(ctx, result, k, outcome, log)
	telemetry.SetOK(span)
	return result, nil
}

// RepairPartialRetirement completes a retirement whose burn succeeded but whose
// terminal write did not. The token is not burned again; the POS count is re-read.
func (c *RetirementCoordinator) RepairPartialRetirement(ctx context.Context, kegID uuid.UUID) (*RetirementResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "keg_retirement", "repair")
	defer span.End()
	telemetry.SetAttributes(span, "keg_id", kegID.String())

	log := logger.For(ctx, c.logger).With(logger.KegID(kegID))

	unlock, err := c.locker.Lock(ctx, kegID)
	if err != nil {
		err = c.settleBusy(ctx, kegID, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer unlock()

	k, err := c.kegRepo.FindByID(ctx, kegID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !k.IsActive() {
		telemetry.RecordError(span, keg.ErrKegRetired)
		return nil, keg.ErrKegRetired
	}
	if !k.HasToken() {
		err := keg.NewValidationError("keg %s has no ledger token to reconcile", k.ID)
		telemetry.RecordError(span, err)
		return nil, err
	}

	token, err := c.ledger.Get(ctx, k.TokenID)
	if err != nil {
		err = classifyLedgerError(err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !token.Burned {
		err := keg.NewValidationError("token %s is not burned; retire the keg instead", k.TokenID)
		telemetry.RecordError(span, err)
		return nil, err
	}

	outcome, err := c.reconcile(ctx, k)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	retiredAt := c.now()
	if token.BurnedAt != nil {
		retiredAt = *token.BurnedAt
	}
	if err := k.Retire(outcome, retiredAt); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := c.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.KegRepo().MarkRetired(ctx, k)
	}); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	log.Info("Partial retirement repaired",
		logger.TokenID(k.TokenID),
		zap.Int("variance", outcome.Variance),
		zap.String("status", outcome.Status.String()),
	)
	publishDomainEvents(ctx, c.eventPublisher, log, k)

	result := &RetirementResult{}
	c.fill(ctx, result, k, outcome, log)
	telemetry.SetOK(span)
	return result, nil
}

// settleBusy turns a lock timeout into ErrKegRetired when the holder it waited
// on has since retired the keg
func (c *RetirementCoordinator) settleBusy(ctx context.Context, kegID uuid.UUID, lockErr error) error {
	if !errors.Is(lockErr, keg.ErrKegBusy) {
		return lockErr
	}
	k, err := c.kegRepo.FindByID(ctx, kegID)
	if err == nil && !k.IsActive() {
		return keg.ErrKegRetired
	}
	return lockErr
}

// reconcile reads the live POS count, bypassing any sync snapshot, and classifies the variance
func (c *RetirementCoordinator) reconcile(ctx context.Context, k *keg.Keg) (keg.VarianceOutcome, error) {
	sold, err := c.pos.GetPintCount(keg.WithFreshPOSRead(ctx), k.ID)
	if err != nil {
		if !errors.Is(err, keg.ErrPOSUnavailable) {
			err = shared.WrapDomainError(keg.ErrPOSUnavailable, err)
		}
		return keg.VarianceOutcome{}, err
	}
	if sold < 0 {
		return keg.VarianceOutcome{}, shared.WrapDomainError(keg.ErrPOSUnavailable,
			fmt.Errorf("negative pint count %d", sold))
	}
	return c.engine.Evaluate(k.ExpectedPints, sold), nil
}

func (c *RetirementCoordinator) persistRetirement(ctx context.Context, k *keg.Keg, outcome keg.VarianceOutcome) error {
	if err := k.Retire(outcome, c.now().UTC()); err != nil {
		return err
	}
	return c.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.KegRepo().MarkRetired(ctx, k)
	})
}

// fill completes the result and runs best-effort analysis for risky outcomes
func (c *RetirementCoordinator) fill(ctx context.Context, result *RetirementResult, k *keg.Keg, outcome keg.VarianceOutcome, log *zap.Logger) {
	result.Keg = k
	result.Outcome = outcome
	result.Variance = outcome.Variance
	result.Status = outcome.Status

	if !outcome.Status.RequiresAnalysis() {
		return
	}
	if c.dispatcher == nil {
		result.Warnings = append(result.Warnings, "variance analysis is not configured")
		return
	}
	dispatched, err := c.dispatcher.Dispatch(ctx, k, outcome)
	if err != nil {
		log.Warn("Variance analysis dispatch failed", zap.Error(err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("variance analysis dispatch failed: %v", err))
		return
	}
	result.AnalysisDispatched = true
	result.Report = dispatched.Report
	if !dispatched.Analyzed {
		result.Warnings = append(result.Warnings, "variance report recorded without analysis")
	}
}

// classifyLedgerError keeps domain ledger errors and treats anything else as a network failure
func classifyLedgerError(err error) error {
	switch {
	case errors.Is(err, keg.ErrAlreadyBurned),
		errors.Is(err, keg.ErrTokenNotFound),
		errors.Is(err, keg.ErrLedgerContract),
		errors.Is(err, keg.ErrLedgerNetwork):
		return err
	default:
		return shared.WrapDomainError(keg.ErrLedgerNetwork, err)
	}
}
