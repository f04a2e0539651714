package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
)

// MockStoreRepository is a mock implementation of StoreRepository
type MockStoreRepository struct {
	mock.Mock
}

func (m *MockStoreRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Store, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Store), args.Error(1)
}

func (m *MockStoreRepository) FindByExternalUser(ctx context.Context, mk integration.Marketplace, externalUserID string) (*integration.Store, error) {
	args := m.Called(ctx, mk, externalUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Store), args.Error(1)
}

func (m *MockStoreRepository) FindSyncable(ctx context.Context) ([]integration.Store, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.Store), args.Error(1)
}

func (m *MockStoreRepository) Save(ctx context.Context, store *integration.Store) error {
	return m.Called(ctx, store).Error(0)
}

func (m *MockStoreRepository) UpdateCredential(ctx context.Context, storeID uuid.UUID, cred integration.StoreCredential, updatedAt time.Time) error {
	return m.Called(ctx, storeID, cred, updatedAt).Error(0)
}

func (m *MockStoreRepository) UpdateStatus(ctx context.Context, storeID uuid.UUID, status integration.StoreStatus, updatedAt time.Time) error {
	return m.Called(ctx, storeID, status, updatedAt).Error(0)
}

// MockOrderRepository is a mock implementation of OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByExternalID(ctx context.Context, mk integration.Marketplace, externalID string) (*integration.Order, error) {
	args := m.Called(ctx, mk, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Order), args.Error(1)
}

func (m *MockOrderRepository) Create(ctx context.Context, order *integration.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockOrderRepository) Update(ctx context.Context, order *integration.Order) error {
	return m.Called(ctx, order).Error(0)
}

// MockProductRepository is a mock implementation of ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Product), args.Error(1)
}

func (m *MockProductRepository) FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*integration.Product, error) {
	args := m.Called(ctx, tenantID, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Product), args.Error(1)
}

func (m *MockProductRepository) Create(ctx context.Context, product *integration.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *MockProductRepository) Update(ctx context.Context, product *integration.Product) error {
	return m.Called(ctx, product).Error(0)
}

// MockSupportTicketRepository is a mock implementation of SupportTicketRepository
type MockSupportTicketRepository struct {
	mock.Mock
}

func (m *MockSupportTicketRepository) FindByQuestion(ctx context.Context, mk integration.Marketplace, externalID string) (*integration.SupportTicket, error) {
	args := m.Called(ctx, mk, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SupportTicket), args.Error(1)
}

func (m *MockSupportTicketRepository) FindByPack(ctx context.Context, mk integration.Marketplace, packID string) (*integration.SupportTicket, error) {
	args := m.Called(ctx, mk, packID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SupportTicket), args.Error(1)
}

func (m *MockSupportTicketRepository) Create(ctx context.Context, ticket *integration.SupportTicket) error {
	return m.Called(ctx, ticket).Error(0)
}

func (m *MockSupportTicketRepository) Update(ctx context.Context, ticket *integration.SupportTicket) error {
	return m.Called(ctx, ticket).Error(0)
}

func (m *MockSupportTicketRepository) DeleteStale(ctx context.Context, storeID uuid.UUID, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, storeID, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockMarketplaceClient is a mock implementation of MarketplaceClient
type MockMarketplaceClient struct {
	mock.Mock
	marketplace integration.Marketplace
}

func (m *MockMarketplaceClient) Marketplace() integration.Marketplace {
	return m.marketplace
}

func (m *MockMarketplaceClient) AuthorizationURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockMarketplaceClient) ExchangeCode(ctx context.Context, params integration.CallbackParams) (*integration.TokenGrant, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.TokenGrant), args.Error(1)
}

func (m *MockMarketplaceClient) RefreshToken(ctx context.Context, cred integration.StoreCredential) (*integration.TokenGrant, error) {
	args := m.Called(ctx, cred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.TokenGrant), args.Error(1)
}

func (m *MockMarketplaceClient) payload(args mock.Arguments) (integration.Payload, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(integration.Payload), args.Error(1)
}

func (m *MockMarketplaceClient) page(args mock.Arguments) (*integration.Page, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Page), args.Error(1)
}

func (m *MockMarketplaceClient) FetchOrder(ctx context.Context, cred integration.StoreCredential, externalID string) (integration.Payload, error) {
	return m.payload(m.Called(ctx, cred, externalID))
}

func (m *MockMarketplaceClient) ListOrders(ctx context.Context, cred integration.StoreCredential, page integration.PageRequest) (*integration.Page, error) {
	return m.page(m.Called(ctx, cred, page))
}

func (m *MockMarketplaceClient) FetchProduct(ctx context.Context, cred integration.StoreCredential, externalID string) (integration.Payload, error) {
	return m.payload(m.Called(ctx, cred, externalID))
}

func (m *MockMarketplaceClient) ListProducts(ctx context.Context, cred integration.StoreCredential, page integration.PageRequest) (*integration.Page, error) {
	return m.page(m.Called(ctx, cred, page))
}

func (m *MockMarketplaceClient) FetchSupportItem(ctx context.Context, cred integration.StoreCredential, kind integration.SupportKind, externalID string) (integration.Payload, error) {
	return m.payload(m.Called(ctx, cred, kind, externalID))
}

func (m *MockMarketplaceClient) ListSupportItems(ctx context.Context, cred integration.StoreCredential, page integration.PageRequest) (*integration.Page, error) {
	return m.page(m.Called(ctx, cred, page))
}

func (m *MockMarketplaceClient) FetchShipment(ctx context.Context, cred integration.StoreCredential, shippingID string) (integration.Payload, error) {
	return m.payload(m.Called(ctx, cred, shippingID))
}

// MockMarketplaceAdapter is a mock implementation of MarketplaceAdapter
type MockMarketplaceAdapter struct {
	mock.Mock
	marketplace integration.Marketplace
}

func (m *MockMarketplaceAdapter) Marketplace() integration.Marketplace {
	return m.marketplace
}

func (m *MockMarketplaceAdapter) MapOrder(p integration.Payload) (*integration.OrderDraft, error) {
	args := m.Called(p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OrderDraft), args.Error(1)
}

func (m *MockMarketplaceAdapter) MapProduct(p integration.Payload) (*integration.ProductDraft, error) {
	args := m.Called(p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ProductDraft), args.Error(1)
}

func (m *MockMarketplaceAdapter) MapSupportItem(p integration.Payload) (*integration.SupportTicketDraft, error) {
	args := m.Called(p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SupportTicketDraft), args.Error(1)
}

func (m *MockMarketplaceAdapter) MapShipment(p integration.Payload) (*integration.ShippingInfo, error) {
	args := m.Called(p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ShippingInfo), args.Error(1)
}

func (m *MockMarketplaceAdapter) ParseNotification(body []byte) (*integration.Notification, error) {
	args := m.Called(body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Notification), args.Error(1)
}

// stubRegistry serves one mock client and adapter per marketplace
type stubRegistry struct {
	clients  map[integration.Marketplace]*MockMarketplaceClient
	adapters map[integration.Marketplace]*MockMarketplaceAdapter
}

func newStubRegistry(markets ...integration.Marketplace) *stubRegistry {
	r := &stubRegistry{
		clients:  map[integration.Marketplace]*MockMarketplaceClient{},
		adapters: map[integration.Marketplace]*MockMarketplaceAdapter{},
	}
	for _, m := range markets {
		r.clients[m] = &MockMarketplaceClient{marketplace: m}
		r.adapters[m] = &MockMarketplaceAdapter{marketplace: m}
	}
	return r
}

func (r *stubRegistry) Adapter(m integration.Marketplace) (integration.MarketplaceAdapter, error) {
	if a, ok := r.adapters[m]; ok {
		return a, nil
	}
	return nil, integration.ErrMarketplaceNotSupported
}

func (r *stubRegistry) Client(m integration.Marketplace) (integration.MarketplaceClient, error) {
	if c, ok := r.clients[m]; ok {
		return c, nil
	}
	return nil, integration.ErrMarketplaceNotSupported
}

func (r *stubRegistry) Marketplaces() []integration.Marketplace {
	out := make([]integration.Marketplace, 0, len(r.clients))
	for m := range r.clients {
		out = append(out, m)
	}
	return out
}

// recordingPublisher collects published events
type recordingPublisher struct {
	events []shared.DomainEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// MockJobEnqueuer is a mock implementation of scheduler.JobEnqueuer
type MockJobEnqueuer struct {
	mock.Mock
}

func (m *MockJobEnqueuer) Enqueue(ctx context.Context, jobType integration.JobType, storeID *uuid.UUID, payload any, opts integration.JobOptions) (*scheduler.JobHandle, error) {
	args := m.Called(ctx, jobType, storeID, payload, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.JobHandle), args.Error(1)
}

func (m *MockJobEnqueuer) ExistsPending(ctx context.Context, jobType integration.JobType, storeID *uuid.UUID) (bool, error) {
	args := m.Called(ctx, jobType, storeID)
	return args.Bool(0), args.Error(1)
}

// MockIdempotencyStore is a mock implementation of IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return nil
}

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// connectedStore builds a store whose token is valid for an hour
func connectedStore(m integration.Marketplace) *integration.Store {
	return &integration.Store{
		BaseEntity:  shared.BaseEntity{ID: uuid.New(), CreatedAt: testNow, UpdatedAt: testNow},
		TenantID:    uuid.New(),
		UserID:      uuid.New(),
		Marketplace: m,
		Status:      integration.StoreStatusConnected,
		Credential: integration.StoreCredential{
			ExternalUserID: "123456789",
			AccessToken:    "APP_USR-current",
			RefreshToken:   "TG-refresh",
			ExpiresAt:      testNow.Add(time.Hour),
		},
	}
}
