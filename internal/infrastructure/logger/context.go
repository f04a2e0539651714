package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID stores the request ID and attaches it to the context logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	enriched := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, enriched), enriched
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithStoreID scopes the context logger to one marketplace store
func WithStoreID(ctx context.Context, logger *zap.Logger, storeID, marketplace string) (context.Context, *zap.Logger) {
	enriched := logger.With(zap.String("store_id", storeID), zap.String("marketplace", marketplace))
	return WithContext(ctx, enriched), enriched
}

// WithJobID scopes the context logger to one queue job
func WithJobID(ctx context.Context, logger *zap.Logger, jobID, jobType string) (context.Context, *zap.Logger) {
	enriched := logger.With(zap.String("job_id", jobID), zap.String("job_type", jobType))
	return WithContext(ctx, enriched), enriched
}

// GetTraceID extracts the trace ID of the active span, if any
func GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// L returns the context logger enriched with trace correlation fields.
// Usage: logger.L(ctx).Info("message", zap.String("key", "value"))
func L(ctx context.Context) *zap.Logger {
	l := FromContext(ctx)
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		l = l.With(
			zap.String("trace_id", spanCtx.TraceID().String()),
			zap.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return l
}

// WithOperator scopes the context logger to an authenticated operator
func WithOperator(ctx context.Context, logger *zap.Logger, tenantID, userID string) (context.Context, *zap.Logger) {
	enriched := logger.With(zap.String("tenant_id", tenantID), zap.String("user_id", userID))
	return WithContext(ctx, enriched), enriched
}
