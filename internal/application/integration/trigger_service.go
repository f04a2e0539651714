package integration

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
)

// TriggerService queues operator requested work after checking the caller
// owns the store
type TriggerService struct {
	stores integration.StoreRepository
	queue  scheduler.JobEnqueuer
}

// NewTriggerService creates a TriggerService
func NewTriggerService(stores integration.StoreRepository, queue scheduler.JobEnqueuer) *TriggerService {
	return &TriggerService{stores: stores, queue: queue}
}

// TriggerStoreSync queues a sync job for a store of the tenant. A non-empty
// marketplace must match the store's.
func (s *TriggerService) TriggerStoreSync(ctx context.Context, tenantID uuid.UUID, marketplace string, jobType integration.JobType, storeID uuid.UUID) (*scheduler.JobHandle, error) {
	switch jobType {
	case integration.JobTypeSyncOrders, integration.JobTypeSyncProducts, integration.JobTypeSyncSupport:
	default:
		return nil, integration.ErrInvalidJobType
	}

	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store.TenantID != tenantID {
		return nil, integration.ErrStoreNotFound
	}
	if marketplace != "" {
		m, err := integration.ParseMarketplace(marketplace)
		if err != nil {
			return nil, err
		}
		if m != store.Marketplace {
			return nil, integration.ErrStoreNotFound
		}
	}
	if !store.IsSyncable() {
		return nil, integration.ErrStoreNotSyncable
	}
	if jobType == integration.JobTypeSyncSupport && !store.Marketplace.SupportsSupportSync() {
		return nil, fmt.Errorf("%s support sync: %w", store.Marketplace, integration.ErrCapabilityUnsupported)
	}

	return s.queue.Enqueue(ctx, jobType, &store.ID, integration.StorePayload{StoreID: store.ID}, integration.JobOptions{})
}

// TriggerTokenRefresh queues a refresh of every due store token
func (s *TriggerService) TriggerTokenRefresh(ctx context.Context) (*scheduler.JobHandle, error) {
	return s.queue.Enqueue(ctx, integration.JobTypeRefreshTokens, nil, nil, integration.JobOptions{})
}

// FindStore returns a store of the tenant
func (s *TriggerService) FindStore(ctx context.Context, tenantID, storeID uuid.UUID) (*integration.Store, error) {
	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store.TenantID != tenantID {
		return nil, integration.ErrStoreNotFound
	}
	return store, nil
}
