package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// ReconcileResult is the outcome of merging one draft into the canonical store
type ReconcileResult[T any] struct {
	Record  *T
	Changed bool
	Created bool
}

// Outcome names the result for logs and metrics
func (r *ReconcileResult[T]) Outcome() string {
	switch {
	case r.Created:
		return telemetry.OutcomeCreated
	case r.Changed:
		return telemetry.OutcomeUpdated
	}
	return telemetry.OutcomeUnchanged
}

// ReconciliationService upserts canonical records by natural key and
// publishes one change event per effective modification
type ReconciliationService struct {
	orders    integration.OrderRepository
	products  integration.ProductRepository
	tickets   integration.SupportTicketRepository
	stores    integration.StoreRepository
	registry  integration.AdapterRegistry
	tokens    *TokenManager
	publisher shared.EventPublisher
	metrics   *telemetry.SyncMetrics
	now       func() time.Time
}

// ReconciliationDeps groups the collaborators of ReconciliationService
type ReconciliationDeps struct {
	Orders    integration.OrderRepository
	Products  integration.ProductRepository
	Tickets   integration.SupportTicketRepository
	Stores    integration.StoreRepository
	Registry  integration.AdapterRegistry
	Tokens    *TokenManager
	Publisher shared.EventPublisher
	Metrics   *telemetry.SyncMetrics
	Now       func() time.Time
}

// NewReconciliationService creates a ReconciliationService
func NewReconciliationService(deps ReconciliationDeps) *ReconciliationService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &ReconciliationService{
		orders:    deps.Orders,
		products:  deps.Products,
		tickets:   deps.Tickets,
		stores:    deps.Stores,
		registry:  deps.Registry,
		tokens:    deps.Tokens,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		now:       deps.Now,
	}
}

// upsert describes one entity's natural-key upsert
type upsert[T any] struct {
	entity      string
	key         string
	marketplace integration.Marketplace
	notFound    error
	find        func(ctx context.Context) (*T, error)
	build       func(now time.Time) (*T, integration.FieldChanges, error)
	merge       func(existing *T, now time.Time) integration.FieldChanges
	create      func(ctx context.Context, record *T) error
	update      func(ctx context.Context, record *T) error
	event       func(record *T, changes integration.FieldChanges, created bool, now time.Time) shared.DomainEvent
}

// run looks the record up, inserts or merges it and publishes the change.
// An insert that loses a race on the natural key is re-read and merged
// once; losing again yields a ReconciliationConflictError.
func run[T any](ctx context.Context, s *ReconciliationService, u upsert[T]) (*ReconcileResult[T], error) {
	finish := func(r *ReconcileResult[T]) *ReconcileResult[T] {
		s.metrics.RecordReconcile(ctx, u.marketplace.String(), u.entity, r.Outcome())
		return r
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		now := s.now()
		existing, err := u.find(ctx)
		switch {
		case errors.Is(err, u.notFound):
			record, changes, err := u.build(now)
			if err != nil {
				return nil, err
			}
			if err := u.create(ctx, record); err != nil {
				if errors.Is(err, integration.ErrDuplicateKey) {
					lastErr = err
					continue
				}
				return nil, fmt.Errorf("insert %s %s: %w", u.entity, u.key, err)
			}
			s.publish(ctx, u.event(record, changes, true, now))
			return finish(&ReconcileResult[T]{Record: record, Changed: true, Created: true}), nil

		case err != nil:
			return nil, fmt.Errorf("find %s %s: %w", u.entity, u.key, err)
		}

		changes := u.merge(existing, now)
		if !changes.Changed() {
			return finish(&ReconcileResult[T]{Record: existing}), nil
		}
		if err := u.update(ctx, existing); err != nil {
			return nil, fmt.Errorf("update %s %s: %w", u.entity, u.key, err)
		}
		s.publish(ctx, u.event(existing, changes, false, now))
		return finish(&ReconcileResult[T]{Record: existing, Changed: true}), nil
	}

	conflict := &integration.ReconciliationConflictError{Entity: u.entity, Key: u.key, Cause: lastErr}
	logger.L(ctx).Warn("Data integrity: natural key conflict not resolved",
		zap.String("entity", u.entity),
		zap.String("key", u.key),
		zap.String("marketplace", u.marketplace.String()),
	)
	s.metrics.RecordReconcile(ctx, u.marketplace.String(), u.entity, telemetry.OutcomeFailed)
	return nil, conflict
}

func (s *ReconciliationService) publish(ctx context.Context, event shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.L(ctx).Error("Failed to publish record change",
			zap.String("event_type", event.EventType()),
			zap.String("aggregate_id", event.AggregateID().String()),
			zap.Error(err),
		)
	}
}

// ReconcileOrder upserts an order by (marketplace, external id)
func (s *ReconciliationService) ReconcileOrder(ctx context.Context, store *integration.Store, draft *integration.OrderDraft) (*ReconcileResult[integration.Order], error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return run(ctx, s, upsert[integration.Order]{
		entity:      "order",
		key:         draft.ExternalID,
		marketplace: draft.Marketplace,
		notFound:    integration.ErrOrderNotFound,
		find: func(ctx context.Context) (*integration.Order, error) {
			return s.orders.FindByExternalID(ctx, draft.Marketplace, draft.ExternalID)
		},
		build: func(now time.Time) (*integration.Order, integration.FieldChanges, error) {
			return integration.NewOrderFromDraft(store.TenantID, store.ID, draft, now)
		},
		merge: func(o *integration.Order, now time.Time) integration.FieldChanges {
			return o.Merge(draft, now)
		},
		create: s.orders.Create,
		update: s.orders.Update,
		event: func(o *integration.Order, changes integration.FieldChanges, created bool, now time.Time) shared.DomainEvent {
			return integration.NewOrderEvent(o, changes, created, now)
		},
	})
}

// ReconcileProduct upserts a product by (tenant, sku)
func (s *ReconciliationService) ReconcileProduct(ctx context.Context, store *integration.Store, draft *integration.ProductDraft) (*ReconcileResult[integration.Product], error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return run(ctx, s, upsert[integration.Product]{
		entity:      "product",
		key:         draft.SKU,
		marketplace: draft.Marketplace,
		notFound:    integration.ErrProductNotFound,
		find: func(ctx context.Context) (*integration.Product, error) {
			return s.products.FindBySKU(ctx, store.TenantID, draft.SKU)
		},
		build: func(now time.Time) (*integration.Product, integration.FieldChanges, error) {
			return integration.NewProductFromDraft(store.TenantID, store.ID, draft, now)
		},
		merge: func(p *integration.Product, now time.Time) integration.FieldChanges {
			return p.Merge(draft, now)
		},
		create: s.products.Create,
		update: s.products.Update,
		event: func(p *integration.Product, changes integration.FieldChanges, created bool, now time.Time) shared.DomainEvent {
			return integration.NewProductEvent(p, changes, created, now)
		},
	})
}

// ReconcileSupportTicket upserts a question by its id or a message thread by
// its pack id. A message whose text repeats the stored text is dropped.
func (s *ReconciliationService) ReconcileSupportTicket(ctx context.Context, store *integration.Store, draft *integration.SupportTicketDraft) (*ReconcileResult[integration.SupportTicket], error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return run(ctx, s, upsert[integration.SupportTicket]{
		entity:      "support_ticket",
		key:         draft.NaturalKey(),
		marketplace: draft.Marketplace,
		notFound:    integration.ErrTicketNotFound,
		find: func(ctx context.Context) (*integration.SupportTicket, error) {
			if draft.Kind == integration.SupportKindMessage {
				return s.tickets.FindByPack(ctx, draft.Marketplace, draft.PackID)
			}
			return s.tickets.FindByQuestion(ctx, draft.Marketplace, draft.ExternalID)
		},
		build: func(now time.Time) (*integration.SupportTicket, integration.FieldChanges, error) {
			return integration.NewSupportTicketFromDraft(store.TenantID, store.ID, draft, now)
		},
		merge: func(t *integration.SupportTicket, now time.Time) integration.FieldChanges {
			if t.IsDuplicateText(draft) {
				return nil
			}
			return t.Merge(draft, now)
		},
		create: s.tickets.Create,
		update: s.tickets.Update,
		event: func(t *integration.SupportTicket, changes integration.FieldChanges, created bool, now time.Time) shared.DomainEvent {
			return integration.NewSupportTicketEvent(t, changes, created, now)
		},
	})
}

// EnrichOrderShipping resolves the shipment of an order and merges its
// address into the order through the regular merge rule. Orders without a
// shipment or with a complete address are returned unchanged.
func (s *ReconciliationService) EnrichOrderShipping(ctx context.Context, store *integration.Store, orderID uuid.UUID) (*ReconcileResult[integration.Order], error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.StoreID != store.ID {
		return nil, integration.ErrOrderNotFound
	}
	return s.enrichShipping(ctx, store, order)
}

// EnrichShipping is EnrichOrderShipping for an order addressed by id alone.
// Orders of other tenants are reported as not found.
func (s *ReconciliationService) EnrichShipping(ctx context.Context, tenantID, orderID uuid.UUID) (*ReconcileResult[integration.Order], error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.TenantID != tenantID {
		return nil, integration.ErrOrderNotFound
	}
	store, err := s.stores.FindByID(ctx, order.StoreID)
	if err != nil {
		return nil, err
	}
	return s.enrichShipping(ctx, store, order)
}

func (s *ReconciliationService) enrichShipping(ctx context.Context, store *integration.Store, order *integration.Order) (*ReconcileResult[integration.Order], error) {
	if !order.NeedsShippingEnrichment() {
		return &ReconcileResult[integration.Order]{Record: order}, nil
	}

	client, err := s.registry.Client(store.Marketplace)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.Adapter(store.Marketplace)
	if err != nil {
		return nil, err
	}
	if _, err := s.tokens.EnsureFreshToken(ctx, store); err != nil {
		return nil, err
	}
	raw, err := client.FetchShipment(ctx, store.Credential, order.ShippingID)
	if err != nil {
		return nil, err
	}
	info, err := adapter.MapShipment(raw)
	if err != nil {
		return nil, err
	}

	draft := &integration.OrderDraft{Marketplace: order.Marketplace, ExternalID: order.ExternalID}
	draft.ApplyShipping(info)
	return s.ReconcileOrder(ctx, store, draft)
}
