package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
var (
	AttrVarianceStatus = attribute.Key("variance_status")
	AttrSyncOutcome    = attribute.Key("outcome")
)

// variance buckets in pints, symmetric around zero
var varianceBuckets = []float64{-40, -20, -10, -5, 0, 5, 10, 20, 40}

// KegMetrics counts keg lifecycle events. It subscribes to the domain event bus
// and is also called directly by the POS sync trigger.
type KegMetrics struct {
	registrations metric.Int64Counter
	scans         metric.Int64Counter
	retirements   metric.Int64Counter
	flags         metric.Int64Counter
	variance      metric.Int64Histogram
	syncedKegs    metric.Int64Counter
	syncDuration  metric.Float64Histogram
}

// NewKegMetrics registers the keg instruments on meter
func NewKegMetrics(meter metric.Meter) (*KegMetrics, error) {
	m := &KegMetrics{}
	var err error

	if m.registrations, err = meter.Int64Counter("keg_registrations_total",
		metric.WithDescription("Kegs registered and minted"),
		metric.WithUnit("{keg}")); err != nil {
		return nil, fmt.Errorf("create keg_registrations_total: %w", err)
	}
	if m.scans, err = meter.Int64Counter("keg_scans_total",
		metric.WithDescription("Custody scans recorded"),
		metric.WithUnit("{scan}")); err != nil {
		return nil, fmt.Errorf("create keg_scans_total: %w", err)
	}
	if m.retirements, err = meter.Int64Counter("keg_retirements_total",
		metric.WithDescription("Kegs retired, by variance status"),
		metric.WithUnit("{keg}")); err != nil {
		return nil, fmt.Errorf("create keg_retirements_total: %w", err)
	}
	if m.flags, err = meter.Int64Counter("keg_variance_flags_total",
		metric.WithDescription("Retirements whose variance required analysis"),
		metric.WithUnit("{keg}")); err != nil {
		return nil, fmt.Errorf("create keg_variance_flags_total: %w", err)
	}
	if m.variance, err = meter.Int64Histogram("keg_variance_pints",
		metric.WithDescription("Expected minus sold pints at retirement"),
		metric.WithUnit("{pint}"),
		metric.WithExplicitBucketBoundaries(varianceBuckets...)); err != nil {
		return nil, fmt.Errorf("create keg_variance_pints: %w", err)
	}
	if m.syncedKegs, err = meter.Int64Counter("keg_pos_sync_kegs_total",
		metric.WithDescription("Kegs processed by POS sync, by outcome"),
		metric.WithUnit("{keg}")); err != nil {
		return nil, fmt.Errorf("create keg_pos_sync_kegs_total: %w", err)
	}
	if m.syncDuration, err = meter.Float64Histogram("keg_pos_sync_duration_seconds",
		metric.WithDescription("Duration of a full POS sync"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create keg_pos_sync_duration_seconds: %w", err)
	}
	return m, nil
}

// Handle implements shared.EventHandler
func (m *KegMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *keg.KegRegisteredEvent:
		m.registrations.Add(ctx, 1)
	case *keg.KegScannedEvent:
		m.scans.Add(ctx, 1)
	case *keg.KegRetiredEvent:
		status := metric.WithAttributes(AttrVarianceStatus.String(e.Outcome.Status.String()))
		m.retirements.Add(ctx, 1, status)
		m.variance.Record(ctx, int64(e.Outcome.Variance), status)
	case *keg.VarianceFlaggedEvent:
		m.flags.Add(ctx, 1, metric.WithAttributes(AttrVarianceStatus.String(e.Outcome.Status.String())))
	}
	return nil
}

// EventTypes implements shared.EventHandler
func (m *KegMetrics) EventTypes() []string {
	return []string{
		keg.EventTypeKegRegistered,
		keg.EventTypeKegScanned,
		keg.EventTypeKegRetired,
		keg.EventTypeVarianceFlagged,
	}
}

// RecordSync records the outcome of one SyncAll run
func (m *KegMetrics) RecordSync(ctx context.Context, synced, failed int, d time.Duration) {
	m.syncedKegs.Add(ctx, int64(synced), metric.WithAttributes(AttrSyncOutcome.String("synced")))
	m.syncedKegs.Add(ctx, int64(failed), metric.WithAttributes(AttrSyncOutcome.String("failed")))
	m.syncDuration.Record(ctx, d.Seconds())
}

var _ shared.EventHandler = (*KegMetrics)(nil)
