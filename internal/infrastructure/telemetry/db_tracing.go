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

// DBTracingConfig controls GORM span instrumentation.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool // include bound variables; never in production
	SlowQueryThresh time.Duration
	DBName          string
}

type queryStartKey struct{}

type gormRegister interface {
	Register(name string, fn func(*gorm.DB)) error
}

// RegisterDBTracing installs otelgorm on db plus callbacks that flag slow
// queries and record errors other than record-not-found on the span.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) { annotateSpan(tx, cfg.SlowQueryThresh) }

	// After hooks must run before otelgorm ends the span.
	cb := db.Callback()
	hooks := []struct {
		callback gormRegister
		name     string
		fn       func(*gorm.DB)
	}{
		{cb.Create().Before("gorm:create"), "before_create", before},
		{cb.Query().Before("gorm:query"), "before_query", before},
		{cb.Update().Before("gorm:update"), "before_update", before},
		{cb.Delete().Before("gorm:delete"), "before_delete", before},
		{cb.Row().Before("gorm:row"), "before_row", before},
		{cb.Raw().Before("gorm:raw"), "before_raw", before},
		{cb.Create().After("gorm:create").Before("otel:after:create"), "after_create", after},
		{cb.Query().After("gorm:query").Before("otel:after:select"), "after_query", after},
		{cb.Update().After("gorm:update").Before("otel:after:update"), "after_update", after},
		{cb.Delete().After("gorm:delete").Before("otel:after:delete"), "after_delete", after},
		{cb.Row().After("gorm:row").Before("otel:after:row"), "after_row", after},
		{cb.Raw().After("gorm:raw").Before("otel:after:raw"), "after_raw", after},
	}
	for _, h := range hooks {
		if err := h.callback.Register("otel_timing:"+h.name, h.fn); err != nil {
			return err
		}
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

func annotateSpan(tx *gorm.DB, slow time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", tx.Statement.RowsAffected))
	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
	}
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, tx.Error.Error())
		span.RecordError(tx.Error)
	}
	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > slow {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
