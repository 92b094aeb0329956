package keg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"github.com/taproom/kegledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DispatchResult describes the persisted variance report
type DispatchResult struct {
	Report *keg.VarianceReport
	// Analyzed is false when the analyzer failed or was not configured
	Analyzed bool
}

// AnalysisDispatcher hands a risky retirement to the analyzer and records the report
type AnalysisDispatcher struct {
	scanRepo   keg.ScanRepository
	reportRepo keg.VarianceReportRepository
	analyzer   keg.Analyzer
	timeout    time.Duration
	logger     *zap.Logger
}

// NewAnalysisDispatcher creates a new AnalysisDispatcher.
// A nil analyzer records reports without analysis.
func NewAnalysisDispatcher(
	scanRepo keg.ScanRepository,
	reportRepo keg.VarianceReportRepository,
	analyzer keg.Analyzer,
	timeout time.Duration,
	log *zap.Logger,
) *AnalysisDispatcher {
	return &AnalysisDispatcher{
		scanRepo:   scanRepo,
		reportRepo: reportRepo,
		analyzer:   analyzer,
		timeout:    timeout,
		logger:     logger.OrNop(log),
	}
}

// Dispatch analyzes the retirement of k and persists exactly one VarianceReport.
// Analyzer failures still persist the report with no analysis; only a
// persistence failure is returned.
func (d *AnalysisDispatcher) Dispatch(ctx context.Context, k *keg.Keg, outcome keg.VarianceOutcome) (*DispatchResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "variance_analysis", "dispatch")
	defer span.End()
	telemetry.SetAttributes(span, "keg_id", k.ID.String(), "status", outcome.Status.String())

	if !outcome.Status.RequiresAnalysis() {
		err := keg.NewValidationError("variance status %s does not warrant analysis", outcome.Status)
		telemetry.RecordError(span, err)
		return nil, err
	}

	log := logger.For(ctx, d.logger).With(logger.KegID(k.ID), zap.String("status", outcome.Status.String()))
	analysis, err := d.analyze(ctx, k, outcome)
	if err != nil {
		log.Warn("Variance analysis failed, recording report without analysis", zap.Error(err))
	}

	report, err := keg.NewVarianceReport(k.ID, outcome, analysis)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := d.reportRepo.Insert(ctx, report); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("persist variance report: %w", err)
	}

	log.Info("Variance report recorded",
		zap.String("report_id", report.ID.String()),
		zap.Int("variance", outcome.Variance),
		zap.Bool("analyzed", report.HasAnalysis()),
	)
	telemetry.SetOK(span)
	return &DispatchResult{Report: report, Analyzed: report.HasAnalysis()}, nil
}

func (d *AnalysisDispatcher) analyze(ctx context.Context, k *keg.Keg, outcome keg.VarianceOutcome) (json.RawMessage, error) {
	if d.analyzer == nil {
		return nil, nil
	}
	scans, err := d.scanRepo.ListByKeg(ctx, k.ID)
	if err != nil {
		return nil, fmt.Errorf("load scan history: %w", err)
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	analysis, err := d.analyzer.Analyze(ctx, keg.AnalysisRequest{Keg: k, Scans: scans, Variance: outcome})
	if err != nil {
		return nil, shared.WrapDomainError(keg.ErrAnalysisFailed, err)
	}
	return analysis, nil
}
