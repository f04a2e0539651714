package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/ordersync/backend/internal/infrastructure/auth"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func pong(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Equal(t, "/api/v1", r.BasePath())

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "/api/v2", r.BasePath())
}

func TestRouterSetup(t *testing.T) {
	denyAll := func(c *gin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	}

	engine := gin.New()
	NewRouter(engine, WithAuth(denyAll)).
		Public(RegistrarFunc(func(rg *gin.RouterGroup) { rg.GET("/open", pong) })).
		Protected(RegistrarFunc(func(rg *gin.RouterGroup) { rg.GET("/closed", pong) })).
		Setup()

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/open", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/closed", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterSetup_AuthDoesNotLeakToPublicRoutes(t *testing.T) {
	jwtCfg := config.JWTConfig{Secret: "router-test-secret-of-sufficient-length", Issuer: "ordersync"}
	verifier := auth.NewTokenVerifier(jwtCfg)

	engine := gin.New()
	NewRouter(engine, WithAuth(middleware.JWTAuthMiddleware(verifier))).
		Protected(RegistrarFunc(func(rg *gin.RouterGroup) {
			rg.POST("/marketplace/:marketplace/sync-orders", pong)
		})).
		Public(RegistrarFunc(func(rg *gin.RouterGroup) {
			rg.POST("/marketplace/:marketplace/webhook", pong)
		})).
		Setup()

	w := serve(engine, httptest.NewRequest(http.MethodPost, "/api/v1/marketplace/shopee/webhook", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(engine, httptest.NewRequest(http.MethodPost, "/api/v1/marketplace/shopee/sync-orders", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := verifier.Sign(uuid.New(), uuid.New(), nil, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/marketplace/shopee/sync-orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, serve(engine, req).Code)
}

func TestNewEngine(t *testing.T) {
	t.Run("minimal", func(t *testing.T) {
		engine, err := NewEngine(EngineConfig{})
		require.NoError(t, err)

		engine.GET("/x", pong)
		w := serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

		w = serve(engine, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("health and metrics endpoints", func(t *testing.T) {
		engine, err := NewEngine(EngineConfig{
			Logger:         zaptest.NewLogger(t),
			Health:         pong,
			MetricsHandler: promhttp.Handler(),
		})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
		w := serve(engine, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "go_goroutines")
	})

	t.Run("recovers from panics", func(t *testing.T) {
		engine, err := NewEngine(EngineConfig{Logger: zaptest.NewLogger(t)})
		require.NoError(t, err)
		engine.GET("/boom", func(*gin.Context) { panic(errors.New("boom")) })

		w := serve(engine, httptest.NewRequest(http.MethodGet, "/boom", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("cors", func(t *testing.T) {
		engine, err := NewEngine(EngineConfig{CORS: middleware.CORSConfig{AllowOrigins: []string{"https://app.example.com"}}})
		require.NoError(t, err)
		engine.GET("/x", pong)

		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := serve(engine, req)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("traces and measures requests", func(t *testing.T) {
		recorder := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

		engine, err := NewEngine(EngineConfig{
			ServiceName:    "ordersync",
			TracerProvider: tp,
			Meter:          mp.Meter("test"),
			Profiling:      true,
		})
		require.NoError(t, err)
		engine.GET("/api/v1/marketplace/:marketplace/ping", pong)

		w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/marketplace/shopee/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Contains(t, spans[0].Name(), "/api/v1/marketplace/:marketplace/ping")

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(t.Context(), &rm))
		assert.NotEmpty(t, rm.ScopeMetrics)
	})

	t.Run("invalid trusted proxy", func(t *testing.T) {
		_, err := NewEngine(EngineConfig{TrustedProxies: []string{"not-an-ip"}})
		assert.Error(t, err)
	})
}
