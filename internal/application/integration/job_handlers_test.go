package integration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
)

type registration struct {
	concurrency int
	handler     scheduler.JobHandler
}

type recordingRegistrar struct {
	handlers map[integration.JobType]registration
	err      error
}

func (r *recordingRegistrar) Register(jobType integration.JobType, concurrency int, handler scheduler.JobHandler) error {
	if r.err != nil {
		return r.err
	}
	if r.handlers == nil {
		r.handlers = map[integration.JobType]registration{}
	}
	r.handlers[jobType] = registration{concurrency: concurrency, handler: handler}
	return nil
}

func newTestJobHandlers(f *ingestionFixture) *JobHandlers {
	tokens := newTestTokenManager(f.stores, f.registry)
	sync := NewSyncService(f.stores, f.tickets, f.registry, tokens, f.service.reconcile, nil,
		SyncConfig{Now: func() time.Time { return testNow }})
	return NewJobHandlers(sync, f.service, tokens)
}

func jobWith(t *testing.T, jobType integration.JobType, payload any) *integration.SyncJob {
	t.Helper()
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	job, err := integration.NewSyncJob(jobType, nil, data, integration.DefaultJobOptions(), testNow)
	require.NoError(t, err)
	return job
}

func TestJobHandlers_Register(t *testing.T) {
	h := newTestJobHandlers(newIngestionFixture())

	r := &recordingRegistrar{}
	require.NoError(t, h.Register(r, JobConcurrency{Webhook: 8, Sync: 2}))
	assert.Len(t, r.handlers, 5)
	assert.Equal(t, 8, r.handlers[integration.JobTypeWebhookNotification].concurrency)
	assert.Equal(t, 2, r.handlers[integration.JobTypeSyncSupport].concurrency)
	assert.Equal(t, 1, r.handlers[integration.JobTypeRefreshTokens].concurrency)

	err := h.Register(&recordingRegistrar{err: errors.New("queue started")}, JobConcurrency{})
	assert.ErrorContains(t, err, "register webhook-notification handler")
}

func TestJobHandlers_HandleWebhookNotification(t *testing.T) {
	ml := integration.MarketplaceMercadoLivre
	ctx := context.Background()

	t.Run("ingests the notification", func(t *testing.T) {
		f := newIngestionFixture()
		h := newTestJobHandlers(f)
		store := connectedStore(ml)
		raw := integration.Payload{"id": "2000003508419013"}

		f.stores.On("FindByExternalUser", mock.Anything, ml, "123456789").Return(store, nil)
		f.registry.clients[ml].On("FetchOrder", mock.Anything, mock.Anything, "2000003508419013").Return(raw, nil)
		f.registry.adapters[ml].On("MapOrder", raw).Return(orderDraft(), nil)
		f.orders.On("FindByExternalID", mock.Anything, ml, "2000003508419013").Return(nil, integration.ErrOrderNotFound)
		f.orders.On("Create", mock.Anything, mock.Anything).Return(nil)

		job := jobWith(t, integration.JobTypeWebhookNotification,
			integration.WebhookPayload{Marketplace: ml, Notification: *orderNotification()})
		require.NoError(t, h.HandleWebhookNotification(ctx, job))
		f.orders.AssertCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("ignored notification completes", func(t *testing.T) {
		f := newIngestionFixture()
		h := newTestJobHandlers(f)
		f.stores.On("FindByExternalUser", mock.Anything, ml, "123456789").Return(nil, integration.ErrStoreNotFound)

		job := jobWith(t, integration.JobTypeWebhookNotification,
			integration.WebhookPayload{Marketplace: ml, Notification: *orderNotification()})
		assert.NoError(t, h.HandleWebhookNotification(ctx, job))
	})

	t.Run("missing payload is permanent", func(t *testing.T) {
		h := newTestJobHandlers(newIngestionFixture())
		err := h.HandleWebhookNotification(ctx, jobWith(t, integration.JobTypeWebhookNotification, nil))
		assert.True(t, integration.IsPermanent(err))
	})
}

func TestJobHandlers_StoreSync(t *testing.T) {
	f := newIngestionFixture()
	h := newTestJobHandlers(f)
	r := &recordingRegistrar{}
	require.NoError(t, h.Register(r, JobConcurrency{Webhook: 1, Sync: 1}))

	storeID := uuid.New()
	f.stores.On("FindByID", mock.Anything, storeID).Return(nil, integration.ErrStoreNotFound)

	job := jobWith(t, integration.JobTypeSyncOrders, integration.StorePayload{StoreID: storeID})
	err := r.handlers[integration.JobTypeSyncOrders].handler(context.Background(), job)
	assert.ErrorIs(t, err, integration.ErrStoreNotFound)
	assert.True(t, integration.IsPermanent(err))

	bad := jobWith(t, integration.JobTypeSyncProducts, nil)
	bad.Payload = []byte(`{"storeId":`)
	err = r.handlers[integration.JobTypeSyncProducts].handler(context.Background(), bad)
	assert.True(t, integration.IsPermanent(err))
}

func TestJobHandlers_HandleRefreshTokens(t *testing.T) {
	f := newIngestionFixture()
	h := newTestJobHandlers(f)
	f.stores.On("FindSyncable", mock.Anything).Return([]integration.Store{*connectedStore(integration.MarketplaceShopee)}, nil)

	assert.NoError(t, h.HandleRefreshTokens(context.Background(), jobWith(t, integration.JobTypeRefreshTokens, nil)))
}
