package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
)

// EngineConfig selects the global middleware stack
type EngineConfig struct {
	Logger         *zap.Logger
	ServiceName    string
	TrustedProxies []string
	CORS           middleware.CORSConfig
	// TracerProvider enables server spans when set
	TracerProvider trace.TracerProvider
	// Meter records HTTP metrics; nil records nothing
	Meter     metric.Meter
	Profiling bool
	// MetricsHandler is served on /metrics when set
	MetricsHandler http.Handler
	// Health is served on /health when set
	Health gin.HandlerFunc
}

// NewEngine builds a gin engine with the middleware stack applied in order:
// request id, recovery, access log, security headers, CORS, tracing,
// HTTP metrics and profiling labels.
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			return nil, fmt.Errorf("trusted proxies: %w", err)
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(cfg.Logger))
	engine.Use(logger.GinMiddleware(cfg.Logger))
	engine.Use(middleware.Secure())
	if cors := middleware.CORS(cfg.CORS); cors != nil {
		engine.Use(cors)
	}
	if cfg.TracerProvider != nil {
		engine.Use(middleware.Tracing(cfg.ServiceName, cfg.TracerProvider), middleware.SpanEnricher())
	}

	metrics, err := middleware.HTTPMetrics(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}
	engine.Use(metrics)
	engine.Use(middleware.Profiling(cfg.Profiling))

	if cfg.Health != nil {
		engine.GET("/health", cfg.Health)
	}
	if cfg.MetricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}
	return engine, nil
}
