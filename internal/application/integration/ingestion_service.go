package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// IngestStatus is the outcome of a notification
type IngestStatus string

const (
	IngestStatusQueued    IngestStatus = "QUEUED"
	IngestStatusProcessed IngestStatus = "PROCESSED"
	IngestStatusUnchanged IngestStatus = "UNCHANGED"
	IngestStatusDuplicate IngestStatus = "DUPLICATE"
	IngestStatusIgnored   IngestStatus = "IGNORED"
)

// Ignore reasons
const (
	ReasonUnsupportedMarketplace = "unsupported_marketplace"
	ReasonMalformed              = "malformed_notification"
	ReasonUnknownTopic           = "unknown_topic"
	ReasonStoreNotFound          = "store_not_found"
	ReasonStoreNotConnected      = "store_not_connected"
	ReasonResourceNotFound       = "resource_not_found"
	ReasonUnmappable             = "unmappable_resource"
	ReasonUnsupportedResource    = "unsupported_resource"
)

// IngestResult describes what happened to a notification
type IngestResult struct {
	Status   IngestStatus           `json:"status"`
	Class    integration.TopicClass `json:"class,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
	JobID    *uuid.UUID             `json:"jobId,omitempty"`
	RecordID *uuid.UUID             `json:"recordId,omitempty"`
}

func ignored(class integration.TopicClass, reason string) *IngestResult {
	return &IngestResult{Status: IngestStatusIgnored, Class: class, Reason: reason}
}

// IngestionConfig configures webhook ingestion
type IngestionConfig struct {
	DedupEnabled bool
	DedupTTL     time.Duration
}

// IngestionService turns marketplace push notifications into reconciled records.
// Accept runs at the HTTP boundary and only queues work; Ingest runs in the
// webhook worker.
type IngestionService struct {
	registry  integration.AdapterRegistry
	stores    integration.StoreRepository
	tokens    *TokenManager
	reconcile *ReconciliationService
	queue     scheduler.JobEnqueuer
	dedup     shared.IdempotencyStore
	validate  *validator.Validate
	metrics   *telemetry.SyncMetrics
	config    IngestionConfig
}

// NewIngestionService creates an IngestionService. dedup may be nil when
// duplicate suppression is disabled.
func NewIngestionService(
	registry integration.AdapterRegistry,
	stores integration.StoreRepository,
	tokens *TokenManager,
	reconcile *ReconciliationService,
	queue scheduler.JobEnqueuer,
	dedup shared.IdempotencyStore,
	metrics *telemetry.SyncMetrics,
	config IngestionConfig,
) *IngestionService {
	if config.DedupTTL <= 0 {
		config.DedupTTL = shared.DefaultIdempotencyConfig().TTL
	}
	return &IngestionService{
		registry:  registry,
		stores:    stores,
		tokens:    tokens,
		reconcile: reconcile,
		queue:     queue,
		dedup:     dedup,
		validate:  validator.New(),
		metrics:   metrics,
		config:    config,
	}
}

// Accept parses and screens a raw notification body and queues it for the
// webhook worker. Notifications that can never be processed are reported as
// ignored with a nil error; the HTTP layer acknowledges them all the same.
func (s *IngestionService) Accept(ctx context.Context, marketplace string, body []byte) (*IngestResult, error) {
	m, err := integration.ParseMarketplace(marketplace)
	if err != nil {
		return ignored(integration.TopicClassUnknown, ReasonUnsupportedMarketplace), nil
	}
	adapter, err := s.registry.Adapter(m)
	if err != nil {
		return ignored(integration.TopicClassUnknown, ReasonUnsupportedMarketplace), nil
	}

	n, err := adapter.ParseNotification(body)
	if err != nil {
		logger.L(ctx).Warn("Malformed notification", zap.String("marketplace", m.String()), zap.Error(err))
		return ignored(integration.TopicClassUnknown, ReasonMalformed), nil
	}
	class := n.Class()
	s.metrics.RecordWebhook(ctx, m.String(), class.String())

	if err := s.validate.Struct(n); err != nil {
		logger.L(ctx).Warn("Incomplete notification",
			zap.String("marketplace", m.String()), zap.String("topic", n.Topic), zap.Error(err))
		return ignored(class, ReasonMalformed), nil
	}
	if class == integration.TopicClassUnknown {
		logger.L(ctx).Debug("Notification topic not handled",
			zap.String("marketplace", m.String()), zap.String("topic", n.Topic))
		return ignored(class, ReasonUnknownTopic), nil
	}

	store, err := s.stores.FindByExternalUser(ctx, m, n.UserID)
	if errors.Is(err, integration.ErrStoreNotFound) {
		logger.L(ctx).Info("Notification for unknown seller",
			zap.String("marketplace", m.String()), zap.String("user_id", n.UserID))
		return ignored(class, ReasonStoreNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve store for notification: %w", err)
	}

	marked, duplicate := s.markDelivery(ctx, m, n)
	if duplicate {
		return &IngestResult{Status: IngestStatusDuplicate, Class: class}, nil
	}

	handle, err := s.queue.Enqueue(ctx, integration.JobTypeWebhookNotification, &store.ID,
		integration.WebhookPayload{Marketplace: m, Notification: *n}, integration.JobOptions{})
	if err != nil {
		if marked {
			s.releaseDelivery(ctx, m, n)
		}
		return nil, fmt.Errorf("queue notification: %w", err)
	}
	return &IngestResult{Status: IngestStatusQueued, Class: class, JobID: &handle.ID}, nil
}

// markDelivery marks the delivery and reports whether this call marked it
// and whether it was seen before. Dedup store failures let the notification
// through; reconciliation is idempotent.
func (s *IngestionService) markDelivery(ctx context.Context, m integration.Marketplace, n *integration.Notification) (marked, duplicate bool) {
	key := n.DedupKey(m)
	if s.dedup == nil || !s.config.DedupEnabled || key == "" {
		return false, false
	}
	fresh, err := s.dedup.MarkProcessed(ctx, key, s.config.DedupTTL)
	if err != nil {
		logger.L(ctx).Warn("Dedup store unavailable", zap.String("key", key), zap.Error(err))
		return false, false
	}
	if !fresh {
		logger.L(ctx).Debug("Duplicate notification dropped", zap.String("key", key))
	}
	return fresh, !fresh
}

// releaseDelivery forgets a delivery that was never queued so the
// marketplace's redelivery is accepted
func (s *IngestionService) releaseDelivery(ctx context.Context, m integration.Marketplace, n *integration.Notification) {
	key := n.DedupKey(m)
	if err := s.dedup.Release(ctx, key); err != nil {
		logger.L(ctx).Warn("Failed to release dedup key; redelivery will be dropped until it expires",
			zap.String("key", key), zap.Error(err))
	}
}

// Ingest fetches the resource a notification points at and reconciles it.
// The store is always resolved from the notification's seller id. Errors are
// returned only when a retry may succeed or the failure must be recorded.
func (s *IngestionService) Ingest(ctx context.Context, m integration.Marketplace, n *integration.Notification) (*IngestResult, error) {
	class := n.Class()
	if n.Resource == "" || n.UserID == "" || n.ResourceID() == "" {
		return ignored(class, ReasonMalformed), nil
	}
	if class == integration.TopicClassUnknown {
		return ignored(class, ReasonUnknownTopic), nil
	}

	store, err := s.stores.FindByExternalUser(ctx, m, n.UserID)
	if errors.Is(err, integration.ErrStoreNotFound) {
		return ignored(class, ReasonStoreNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve store for notification: %w", err)
	}
	if !store.IsSyncable() {
		return ignored(class, ReasonStoreNotConnected), nil
	}
	ctx, _ = logger.WithStoreID(ctx, logger.FromContext(ctx), store.ID.String(), m.String())

	client, err := s.registry.Client(m)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.Adapter(m)
	if err != nil {
		return nil, err
	}
	if _, err := s.tokens.EnsureFreshToken(ctx, store); err != nil {
		return nil, err
	}

	var (
		recordID uuid.UUID
		changed  bool
	)
	resourceID := n.ResourceID()
	switch class {
	case integration.TopicClassOrders:
		raw, ferr := client.FetchOrder(ctx, store.Credential, resourceID)
		if ferr != nil {
			return s.fetchFailed(ctx, class, resourceID, ferr)
		}
		draft, merr := adapter.MapOrder(raw)
		if merr != nil {
			return s.unmappable(ctx, class, resourceID, merr), nil
		}
		res, rerr := s.reconcile.ReconcileOrder(ctx, store, draft)
		if rerr != nil {
			return nil, rerr
		}
		recordID, changed = res.Record.ID, res.Changed

	case integration.TopicClassProducts:
		raw, ferr := client.FetchProduct(ctx, store.Credential, resourceID)
		if ferr != nil {
			return s.fetchFailed(ctx, class, resourceID, ferr)
		}
		draft, merr := adapter.MapProduct(raw)
		if merr != nil {
			return s.unmappable(ctx, class, resourceID, merr), nil
		}
		res, rerr := s.reconcile.ReconcileProduct(ctx, store, draft)
		if rerr != nil {
			return nil, rerr
		}
		recordID, changed = res.Record.ID, res.Changed

	case integration.TopicClassMessages:
		raw, ferr := client.FetchSupportItem(ctx, store.Credential, n.SupportKind(), resourceID)
		if ferr != nil {
			return s.fetchFailed(ctx, class, resourceID, ferr)
		}
		draft, merr := adapter.MapSupportItem(raw)
		if merr != nil {
			return s.unmappable(ctx, class, resourceID, merr), nil
		}
		res, rerr := s.reconcile.ReconcileSupportTicket(ctx, store, draft)
		if rerr != nil {
			return nil, rerr
		}
		recordID, changed = res.Record.ID, res.Changed
	}

	status := IngestStatusUnchanged
	if changed {
		status = IngestStatusProcessed
	}
	return &IngestResult{Status: status, Class: class, RecordID: &recordID}, nil
}

// fetchFailed ignores resources the marketplace no longer has or never
// exposes, and returns every other failure for the queue to retry
func (s *IngestionService) fetchFailed(ctx context.Context, class integration.TopicClass, resourceID string, err error) (*IngestResult, error) {
	var apiErr *integration.MarketplaceAPIError
	switch {
	case errors.As(err, &apiErr) && apiErr.IsNotFound():
		logger.L(ctx).Info("Notified resource no longer exists",
			zap.String("class", class.String()), zap.String("resource_id", resourceID))
		return ignored(class, ReasonResourceNotFound), nil
	case errors.Is(err, integration.ErrCapabilityUnsupported):
		return ignored(class, ReasonUnsupportedResource), nil
	}
	return nil, err
}

func (s *IngestionService) unmappable(ctx context.Context, class integration.TopicClass, resourceID string, err error) *IngestResult {
	logger.L(ctx).Warn("Notified resource could not be mapped",
		zap.String("class", class.String()), zap.String("resource_id", resourceID), zap.Error(err))
	return ignored(class, ReasonUnmappable)
}
