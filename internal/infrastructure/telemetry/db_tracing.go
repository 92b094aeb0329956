package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig controls the GORM tracing plugin.
type DBTracingConfig struct {
	Enabled   bool
	DBSystem  string
	SlowQuery time.Duration
	// TracerProvider overrides the global provider, mostly for tests.
	TracerProvider trace.TracerProvider
}

type contextKey string

const queryStartKey contextKey = "keg_query_start"

// DBTracer adds otelgorm spans to every statement and flags slow ones.
type DBTracer struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracer creates a DBTracer; a zero SlowQuery disables slow flagging.
func NewDBTracer(cfg DBTracingConfig, logger *zap.Logger) *DBTracer {
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	return &DBTracer{config: cfg, logger: logger}
}

// Register installs the plugin and timing callbacks on db.
// Query variables are never attached to spans since they carry holder ids.
func (t *DBTracer) Register(db *gorm.DB) error {
	if !t.config.Enabled {
		t.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(t.config.DBSystem),
		otelgorm.WithoutQueryVariables(),
		otelgorm.WithoutMetrics(),
	}
	if t.config.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(t.config.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	cb := db.Callback()
	registrations := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("keg_timing:before_create", markStart) },
		func() error { return cb.Query().Before("gorm:query").Register("keg_timing:before_query", markStart) },
		func() error { return cb.Update().Before("gorm:update").Register("keg_timing:before_update", markStart) },
		func() error { return cb.Delete().Before("gorm:delete").Register("keg_timing:before_delete", markStart) },
		func() error { return cb.Row().Before("gorm:row").Register("keg_timing:before_row", markStart) },
		func() error { return cb.Raw().Before("gorm:raw").Register("keg_timing:before_raw", markStart) },
		func() error { return cb.Create().After("gorm:create").Register("keg_timing:after_create", t.annotate) },
		func() error { return cb.Query().After("gorm:query").Register("keg_timing:after_query", t.annotate) },
		func() error { return cb.Update().After("gorm:update").Register("keg_timing:after_update", t.annotate) },
		func() error { return cb.Delete().After("gorm:delete").Register("keg_timing:after_delete", t.annotate) },
		func() error { return cb.Row().After("gorm:row").Register("keg_timing:after_row", t.annotate) },
		func() error { return cb.Raw().After("gorm:raw").Register("keg_timing:after_raw", t.annotate) },
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}

	t.logger.Info("Database tracing enabled",
		zap.String("db_system", t.config.DBSystem),
		zap.Duration("slow_query_threshold", t.config.SlowQuery),
	)
	return nil
}

func markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey, time.Now())
	}
}

// annotate runs while the otelgorm span is still open.
func (t *DBTracer) annotate(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
	}

	start, ok := ctx.Value(queryStartKey).(time.Time)
	if !ok || t.config.SlowQuery <= 0 {
		return
	}
	if elapsed := time.Since(start); elapsed > t.config.SlowQuery {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		t.logger.Warn("slow query",
			zap.String("table", db.Statement.Table),
			zap.Duration("elapsed", elapsed),
		)
	}
}
