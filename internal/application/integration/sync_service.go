package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// Bulk sync defaults
const (
	DefaultSyncPageSize         = 50
	DefaultSyncMaxPages         = 4
	DefaultSupportRetentionDays = 30
)

// SyncConfig bounds a bulk sync run
type SyncConfig struct {
	PageSize         int
	MaxPages         int
	SupportRetention time.Duration
	Now              func() time.Time
}

// SyncResult counts what a bulk sync did
type SyncResult struct {
	Imported  int   `json:"imported"`
	Updated   int   `json:"updated"`
	Unchanged int   `json:"unchanged"`
	Failed    int   `json:"failed"`
	Skipped   int   `json:"skipped"`
	Pages     int   `json:"pages"`
	Pruned    int64 `json:"pruned"`
}

func (r *SyncResult) count(outcome string) {
	switch outcome {
	case telemetry.OutcomeCreated:
		r.Imported++
	case telemetry.OutcomeUpdated:
		r.Updated++
	case telemetry.OutcomeUnchanged:
		r.Unchanged++
	case telemetry.OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// SyncService pulls recent records page by page and reconciles them
type SyncService struct {
	stores    integration.StoreRepository
	tickets   integration.SupportTicketRepository
	registry  integration.AdapterRegistry
	tokens    *TokenManager
	reconcile *ReconciliationService
	metrics   *telemetry.SyncMetrics
	config    SyncConfig
}

// NewSyncService creates a SyncService
func NewSyncService(
	stores integration.StoreRepository,
	tickets integration.SupportTicketRepository,
	registry integration.AdapterRegistry,
	tokens *TokenManager,
	reconcile *ReconciliationService,
	metrics *telemetry.SyncMetrics,
	config SyncConfig,
) *SyncService {
	if config.PageSize <= 0 {
		config.PageSize = DefaultSyncPageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultSyncMaxPages
	}
	if config.SupportRetention <= 0 {
		config.SupportRetention = DefaultSupportRetentionDays * 24 * time.Hour
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &SyncService{
		stores:    stores,
		tickets:   tickets,
		registry:  registry,
		tokens:    tokens,
		reconcile: reconcile,
		metrics:   metrics,
		config:    config,
	}
}

// syncTarget is what a run needs from the store: its marketplace ports
type syncTarget struct {
	store   *integration.Store
	client  integration.MarketplaceClient
	adapter integration.MarketplaceAdapter
}

type listFunc func(ctx context.Context, cred integration.StoreCredential, page integration.PageRequest) (*integration.Page, error)

// applyFunc maps and reconciles one record, returning its outcome
type applyFunc func(ctx context.Context, raw integration.Payload) (string, error)

func (s *SyncService) target(ctx context.Context, storeID uuid.UUID) (*syncTarget, error) {
	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !store.IsSyncable() {
		return nil, fmt.Errorf("%w: %w: store %s is %s", integration.ErrPermanent, integration.ErrStoreNotSyncable, store.ID, store.Status)
	}
	client, err := s.registry.Client(store.Marketplace)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.Adapter(store.Marketplace)
	if err != nil {
		return nil, err
	}
	return &syncTarget{store: store, client: client, adapter: adapter}, nil
}

// paginate walks at most MaxPages pages, stopping early on a short page or
// when the marketplace reports no more. Record failures are logged and
// counted; page failures abort the run.
func (s *SyncService) paginate(ctx context.Context, t *syncTarget, entity string, list listFunc, apply applyFunc, result *SyncResult) error {
	ctx, log := logger.WithStoreID(ctx, logger.FromContext(ctx), t.store.ID.String(), t.store.Marketplace.String())
	page := integration.PageRequest{Limit: s.config.PageSize}

	for n := 0; n < s.config.MaxPages; n++ {
		if _, err := s.tokens.EnsureFreshToken(ctx, t.store); err != nil {
			return err
		}
		res, err := list(ctx, t.store.Credential, page)
		if err != nil {
			return fmt.Errorf("list %s page %d: %w", entity, n+1, err)
		}
		result.Pages++

		for _, raw := range res.Items {
			outcome, err := apply(ctx, raw)
			if err != nil {
				log.Warn("Skipping record", zap.String("entity", entity), zap.Error(err))
				outcome = telemetry.OutcomeFailed
			}
			result.count(outcome)
		}

		consumed := res.Consumed()
		if consumed < s.config.PageSize || !res.HasMore {
			break
		}
		page.Offset += consumed
		page.Cursor = res.NextCursor
	}

	log.Info("Bulk sync finished",
		zap.String("entity", entity),
		zap.Int("pages", result.Pages),
		zap.Int("imported", result.Imported),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
	)
	return nil
}

// SyncOrders imports the store's most recent orders
func (s *SyncService) SyncOrders(ctx context.Context, storeID uuid.UUID) (*SyncResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.orders")
	t, err := s.target(ctx, storeID)
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, err
	}
	result := &SyncResult{}
	err = s.paginate(ctx, t, "order", t.client.ListOrders, func(ctx context.Context, raw integration.Payload) (string, error) {
		draft, err := t.adapter.MapOrder(raw)
		if err != nil {
			return "", err
		}
		res, err := s.reconcile.ReconcileOrder(ctx, t.store, draft)
		if err != nil {
			return "", err
		}
		return res.Outcome(), nil
	}, result)
	telemetry.EndSpan(span, err)
	return result, err
}

// SyncProducts imports the store's listings
func (s *SyncService) SyncProducts(ctx context.Context, storeID uuid.UUID) (*SyncResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.products")
	t, err := s.target(ctx, storeID)
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, err
	}
	result := &SyncResult{}
	err = s.paginate(ctx, t, "product", t.client.ListProducts, func(ctx context.Context, raw integration.Payload) (string, error) {
		draft, err := t.adapter.MapProduct(raw)
		if err != nil {
			return "", err
		}
		res, err := s.reconcile.ReconcileProduct(ctx, t.store, draft)
		if err != nil {
			return "", err
		}
		return res.Outcome(), nil
	}, result)
	telemetry.EndSpan(span, err)
	return result, err
}

// SyncSupport prunes tickets outside the retention window, then imports
// recent questions and post-sale messages
func (s *SyncService) SyncSupport(ctx context.Context, storeID uuid.UUID) (*SyncResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.support")
	t, err := s.target(ctx, storeID)
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, err
	}

	result := &SyncResult{}
	cutoff := s.config.Now().Add(-s.config.SupportRetention)
	pruned, err := s.tickets.DeleteStale(ctx, t.store.ID, cutoff)
	if err != nil {
		err = fmt.Errorf("prune support tickets: %w", err)
		telemetry.EndSpan(span, err)
		return nil, err
	}
	result.Pruned = pruned
	s.metrics.RecordPruned(ctx, t.store.Marketplace.String(), pruned)

	if !t.store.Marketplace.SupportsSupportSync() {
		err = fmt.Errorf("%s support sync: %w", t.store.Marketplace, integration.ErrCapabilityUnsupported)
		telemetry.EndSpan(span, err)
		return result, err
	}

	err = s.paginate(ctx, t, "support_ticket", t.client.ListSupportItems, func(ctx context.Context, raw integration.Payload) (string, error) {
		draft, err := t.adapter.MapSupportItem(raw)
		if err != nil {
			return "", err
		}
		// pruned questions still show up in the marketplace listing
		if draft.QuestionDate != nil && draft.QuestionDate.Before(cutoff) {
			return telemetry.OutcomeSkipped, nil
		}
		res, err := s.reconcile.ReconcileSupportTicket(ctx, t.store, draft)
		if err != nil {
			return "", err
		}
		return res.Outcome(), nil
	}, result)
	telemetry.EndSpan(span, err)
	return result, err
}
