package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Reconcile outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// SyncMetrics records the marketplace sync pipeline. A nil *SyncMetrics is
// valid and records nothing, so services can run without telemetry.
type SyncMetrics struct {
	records       metric.Int64Counter
	webhooks      metric.Int64Counter
	tokenRefresh  metric.Int64Counter
	jobs          metric.Int64Counter
	jobDuration   metric.Float64Histogram
	apiDuration   metric.Float64Histogram
	prunedTickets metric.Int64Counter
}

// NewSyncMetrics registers every sync instrument on meter.
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	m := &SyncMetrics{}
	var err error

	if m.records, err = meter.Int64Counter("ordersync.records.reconciled",
		metric.WithDescription("Marketplace records reconciled, by entity and outcome"),
		metric.WithUnit("{record}")); err != nil {
		return nil, fmt.Errorf("records counter: %w", err)
	}
	if m.webhooks, err = meter.Int64Counter("ordersync.webhooks.received",
		metric.WithDescription("Marketplace notifications received, by topic class"),
		metric.WithUnit("{notification}")); err != nil {
		return nil, fmt.Errorf("webhooks counter: %w", err)
	}
	if m.tokenRefresh, err = meter.Int64Counter("ordersync.tokens.refreshed",
		metric.WithDescription("Access token refresh attempts, by outcome"),
		metric.WithUnit("{refresh}")); err != nil {
		return nil, fmt.Errorf("token counter: %w", err)
	}
	if m.jobs, err = meter.Int64Counter("ordersync.jobs.finished",
		metric.WithDescription("Queue jobs finished, by type and status"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("jobs counter: %w", err)
	}
	if m.jobDuration, err = meter.Float64Histogram("ordersync.jobs.duration",
		metric.WithDescription("Queue job run time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(SyncDurationBuckets...)); err != nil {
		return nil, fmt.Errorf("job histogram: %w", err)
	}
	if m.apiDuration, err = meter.Float64Histogram("ordersync.marketplace.request.duration",
		metric.WithDescription("Marketplace API round trip time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(SyncDurationBuckets...)); err != nil {
		return nil, fmt.Errorf("api histogram: %w", err)
	}
	if m.prunedTickets, err = meter.Int64Counter("ordersync.support.pruned",
		metric.WithDescription("Stale support tickets removed"),
		metric.WithUnit("{ticket}")); err != nil {
		return nil, fmt.Errorf("prune counter: %w", err)
	}
	return m, nil
}

// RecordReconcile counts one reconciled record.
func (m *SyncMetrics) RecordReconcile(ctx context.Context, marketplace, entity, outcome string) {
	if m == nil {
		return
	}
	m.records.Add(ctx, 1, metric.WithAttributes(
		AttrMarketplace.String(marketplace),
		AttrEntity.String(entity),
		AttrOutcome.String(outcome),
	))
}

// RecordWebhook counts one received notification.
func (m *SyncMetrics) RecordWebhook(ctx context.Context, marketplace, class string) {
	if m == nil {
		return
	}
	m.webhooks.Add(ctx, 1, metric.WithAttributes(
		AttrMarketplace.String(marketplace),
		AttrTopicClass.String(class),
	))
}

// RecordTokenRefresh counts one refresh attempt.
func (m *SyncMetrics) RecordTokenRefresh(ctx context.Context, marketplace string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = OutcomeFailed
	}
	m.tokenRefresh.Add(ctx, 1, metric.WithAttributes(
		AttrMarketplace.String(marketplace),
		AttrOutcome.String(outcome),
	))
}

// RecordJob counts a finished job run and its duration.
func (m *SyncMetrics) RecordJob(ctx context.Context, jobType, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrJobType.String(jobType), AttrJobStatus.String(status))
	m.jobs.Add(ctx, 1, attrs)
	m.jobDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordAPICall records one marketplace HTTP round trip.
func (m *SyncMetrics) RecordAPICall(ctx context.Context, marketplace, operation string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.apiDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		AttrMarketplace.String(marketplace),
		attribute.String("operation", operation),
		attribute.Int("http.status_code", status),
	))
}

// RecordPruned counts deleted stale support tickets.
func (m *SyncMetrics) RecordPruned(ctx context.Context, marketplace string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.prunedTickets.Add(ctx, n, metric.WithAttributes(AttrMarketplace.String(marketplace)))
}
