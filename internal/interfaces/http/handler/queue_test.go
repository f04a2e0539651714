package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
)

func newQueueRouter(f *marketplaceFixture, stats *MockQueueStats) *gin.Engine {
	router := gin.New()
	NewQueueHandler(stats, f.handler).RegisterRoutes(router.Group("/api/v1", withOperator(f.tenantID, f.userID)))
	return router
}

func TestQueueHandler_SyncRoutesSkipMarketplaceCheck(t *testing.T) {
	f := newMarketplaceFixture()
	storeID := uuid.New()
	f.trigger.On("TriggerStoreSync", mock.Anything, f.tenantID, "", integration.JobTypeSyncProducts, storeID).
		Return(&scheduler.JobHandle{ID: uuid.New(), Type: integration.JobTypeSyncProducts}, nil)

	w := httptest.NewRecorder()
	newQueueRouter(f, new(MockQueueStats)).ServeHTTP(w,
		httptest.NewRequest(http.MethodPost, "/api/v1/queue/sync-products?storeId="+storeID.String(), nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	f.trigger.AssertExpectations(t)
}

func TestQueueHandler_RefreshTokens(t *testing.T) {
	f := newMarketplaceFixture()
	jobID := uuid.New()
	f.trigger.On("TriggerTokenRefresh", mock.Anything).
		Return(&scheduler.JobHandle{ID: jobID, Type: integration.JobTypeRefreshTokens}, nil)

	w := httptest.NewRecorder()
	newQueueRouter(f, new(MockQueueStats)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/queue/refresh-tokens", nil))

	require.Equal(t, http.StatusAccepted, w.Code)
	var data dto.JobResponse
	decodeResponse(t, w, &data)
	assert.Equal(t, jobID.String(), data.JobID)
}

func TestQueueHandler_Stats(t *testing.T) {
	t.Run("counts", func(t *testing.T) {
		f := newMarketplaceFixture()
		stats := new(MockQueueStats)
		stats.On("Stats", mock.Anything).Return(&integration.QueueStats{Waiting: 3, Active: 1, Completed: 40, Failed: 2, Delayed: 5}, nil)

		w := httptest.NewRecorder()
		newQueueRouter(f, stats).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/queue/stats", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"data":{"waiting":3,"active":1,"completed":40,"failed":2,"delayed":5}}`, w.Body.String())
	})

	t.Run("repository failure", func(t *testing.T) {
		f := newMarketplaceFixture()
		stats := new(MockQueueStats)
		stats.On("Stats", mock.Anything).Return(nil, errors.New("db down"))

		w := httptest.NewRecorder()
		newQueueRouter(f, stats).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/queue/stats", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
