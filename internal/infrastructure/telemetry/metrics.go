package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// MeterProvider owns the SDK meter provider and its shutdown.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry
	logger   *zap.Logger
}

// MetricsOptions selects the metric readers.
type MetricsOptions struct {
	ExportInterval time.Duration // OTLP push interval
	Prometheus     bool          // expose a pull endpoint via Handler
}

// NewMeterProvider builds a meter provider with an OTLP push reader when
// telemetry is enabled and a Prometheus pull reader when requested. With no
// reader, Meter falls back to the global no-op provider.
func NewMeterProvider(ctx context.Context, cfg Config, opts MetricsOptions, logger *zap.Logger) (*MeterProvider, error) {
	mp := &MeterProvider{logger: logger}
	var readers []sdkmetric.Option

	if cfg.Enabled {
		interval := opts.ExportInterval
		if interval <= 0 {
			interval = 60 * time.Second
		}
		exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))))
	}

	if opts.Prometheus {
		mp.registry = prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(mp.registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(exporter))
	}

	if len(readers) == 0 {
		logger.Info("Metrics disabled, using no-op meter provider")
		return mp, nil
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	mp.provider = sdkmetric.NewMeterProvider(append(readers, sdkmetric.WithResource(res))...)
	otel.SetMeterProvider(mp.provider)

	logger.Info("OpenTelemetry MeterProvider initialized",
		zap.Bool("otlp", cfg.Enabled),
		zap.Bool("prometheus", opts.Prometheus),
	)
	return mp, nil
}

// Handler serves the Prometheus exposition format, or nil when the pull
// endpoint is disabled.
func (mp *MeterProvider) Handler() http.Handler {
	if mp == nil || mp.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(mp.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Meter returns a named meter.
func (mp *MeterProvider) Meter(name string) metric.Meter {
	if mp == nil || mp.provider == nil {
		return otel.GetMeterProvider().Meter(name)
	}
	return mp.provider.Meter(name)
}

// Shutdown flushes pending metrics.
func (mp *MeterProvider) Shutdown(ctx context.Context) error {
	if mp.provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mp.provider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}
	mp.logger.Info("OpenTelemetry MeterProvider shutdown complete")
	return nil
}

// Attribute keys shared by sync metrics and spans.
var (
	AttrTenantID    = attribute.Key("tenant_id")
	AttrStoreID     = attribute.Key("store_id")
	AttrMarketplace = attribute.Key("marketplace")
	AttrEntity      = attribute.Key("entity")
	AttrOutcome     = attribute.Key("outcome")
	AttrJobType     = attribute.Key("job_type")
	AttrJobStatus   = attribute.Key("job_status")
	AttrTopicClass  = attribute.Key("topic_class")

	AttrHTTPMethod     = attribute.Key("http_method")
	AttrHTTPRoute      = attribute.Key("http_route")
	AttrHTTPStatusCode = attribute.Key("http_status_code")
)

// HTTPDurationBuckets covers API handler latency (seconds).
var HTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// SyncDurationBuckets covers marketplace round trips and bulk runs (seconds).
var SyncDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
