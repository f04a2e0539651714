package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appintegration "github.com/ordersync/backend/internal/application/integration"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockIngester struct{ mock.Mock }

func (m *MockIngester) Accept(ctx context.Context, marketplace string, body []byte) (*appintegration.IngestResult, error) {
	args := m.Called(ctx, marketplace, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.IngestResult), args.Error(1)
}

type MockConnector struct{ mock.Mock }

func (m *MockConnector) AuthorizationURL(marketplace string, st appintegration.OAuthState) (string, error) {
	args := m.Called(marketplace, st)
	return args.String(0), args.Error(1)
}

func (m *MockConnector) HandleCallback(ctx context.Context, marketplace string, params integration.CallbackParams) (*integration.Store, error) {
	args := m.Called(ctx, marketplace, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Store), args.Error(1)
}

type MockTrigger struct{ mock.Mock }

func (m *MockTrigger) TriggerStoreSync(ctx context.Context, tenantID uuid.UUID, marketplace string, jobType integration.JobType, storeID uuid.UUID) (*scheduler.JobHandle, error) {
	args := m.Called(ctx, tenantID, marketplace, jobType, storeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.JobHandle), args.Error(1)
}

func (m *MockTrigger) TriggerTokenRefresh(ctx context.Context) (*scheduler.JobHandle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.JobHandle), args.Error(1)
}

type MockEnricher struct{ mock.Mock }

func (m *MockEnricher) EnrichShipping(ctx context.Context, tenantID, orderID uuid.UUID) (*appintegration.ReconcileResult[integration.Order], error) {
	args := m.Called(ctx, tenantID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.ReconcileResult[integration.Order]), args.Error(1)
}

type MockQueueStats struct{ mock.Mock }

func (m *MockQueueStats) Stats(ctx context.Context) (*integration.QueueStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.QueueStats), args.Error(1)
}

// withOperator stands in for the JWT middleware
func withOperator(tenantID, userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.JWTTenantIDKey, tenantID.String())
		c.Set(middleware.JWTUserIDKey, userID.String())
		c.Next()
	}
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, data any) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if data != nil && resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, data))
	}
	return resp
}
