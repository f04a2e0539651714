package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// Tracing starts a server span per request. A nil provider uses the global one.
func Tracing(serviceName string, tp trace.TracerProvider) gin.HandlerFunc {
	var opts []otelgin.Option
	if tp != nil {
		opts = append(opts, otelgin.WithTracerProvider(tp))
	}
	return otelgin.Middleware(serviceName, opts...)
}

// SpanEnricher tags the request span with the request ID, the operator
// identity and the marketplace route parameter, then marks 4xx and 5xx
// responses as errors. It must run inside Tracing; mount it again after the
// JWT middleware to pick up the operator.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		var attrs []attribute.KeyValue
		if id := GetRequestID(c); id != "" {
			attrs = append(attrs, attribute.String("request_id", id))
		}
		if id := c.GetString(JWTTenantIDKey); id != "" {
			attrs = append(attrs, telemetry.AttrTenantID.String(id))
		}
		if id := c.GetString(JWTUserIDKey); id != "" {
			attrs = append(attrs, attribute.String("user_id", id))
		}
		if m := c.Param("marketplace"); m != "" {
			attrs = append(attrs, telemetry.AttrMarketplace.String(m))
		}
		span.SetAttributes(attrs...)

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
