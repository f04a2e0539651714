package ecommerce

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseSize is the maximum accepted marketplace response size (10MB)
const maxResponseSize = 10 * 1024 * 1024

// maxErrorBody caps how much of an error response is kept on MarketplaceAPIError
const maxErrorBody = 512

// HTTPOptions configures the transport shared by marketplace clients
type HTTPOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Metrics           *telemetry.SyncMetrics
	Logger            *zap.Logger
}

// apiClient performs rate limited, traced calls against one marketplace
type apiClient struct {
	marketplace integration.Marketplace
	httpClient  *http.Client
	limiter     *rate.Limiter
	metrics     *telemetry.SyncMetrics
	logger      *zap.Logger
}

func newAPIClient(m integration.Marketplace, opts HTTPOptions) *apiClient {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = max(1, int(opts.RequestsPerSecond))
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &apiClient{
		marketplace: m,
		httpClient:  client,
		limiter:     rate.NewLimiter(limit, burst),
		metrics:     opts.Metrics,
		logger:      logger.Named(string(m)),
	}
}

// do sends req and returns the body of a 2xx response. Every failure is a
// *integration.MarketplaceAPIError so callers can classify it.
func (c *apiClient) do(ctx context.Context, operation string, req *http.Request) (body []byte, err error) {
	ctx, span := telemetry.StartClientSpan(ctx, string(c.marketplace), operation)
	start := time.Now()
	status := 0
	defer func() {
		c.metrics.RecordAPICall(ctx, string(c.marketplace), operation, status, time.Since(start))
		telemetry.EndSpan(span, err)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.apiError(operation, 0, nil, err)
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, c.apiError(operation, 0, nil, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, c.apiError(operation, status, nil, fmt.Errorf("read response: %w", err))
	}

	if status >= http.StatusBadRequest {
		c.logger.Debug("Marketplace call failed",
			zap.String("operation", operation),
			zap.Int("status", status),
		)
		return nil, c.apiError(operation, status, body, nil)
	}
	return body, nil
}

func (c *apiClient) apiError(operation string, status int, body []byte, cause error) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &integration.MarketplaceAPIError{
		Marketplace: c.marketplace,
		Operation:   operation,
		StatusCode:  status,
		Body:        string(body),
		Cause:       cause,
	}
}

// decodePayload decodes a JSON object response
func (c *apiClient) decodePayload(operation string, body []byte) (integration.Payload, error) {
	p, err := integration.DecodePayload(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: invalid JSON response: %v", integration.ErrPermanent, c.marketplace, operation, err)
	}
	return p, nil
}
