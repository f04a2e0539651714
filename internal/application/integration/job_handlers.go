package integration

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
)

// JobRegistrar is the part of JobQueue handlers register with
type JobRegistrar interface {
	Register(jobType integration.JobType, concurrency int, handler scheduler.JobHandler) error
}

// JobConcurrency sets how many jobs of each family run at once
type JobConcurrency struct {
	Webhook int
	Sync    int
}

// JobHandlers binds queue job types to the sync services
type JobHandlers struct {
	sync      *SyncService
	ingestion *IngestionService
	tokens    *TokenManager
}

// NewJobHandlers creates JobHandlers
func NewJobHandlers(sync *SyncService, ingestion *IngestionService, tokens *TokenManager) *JobHandlers {
	return &JobHandlers{sync: sync, ingestion: ingestion, tokens: tokens}
}

// Register attaches every handler to the queue
func (h *JobHandlers) Register(queue JobRegistrar, c JobConcurrency) error {
	handlers := []struct {
		jobType     integration.JobType
		concurrency int
		handler     scheduler.JobHandler
	}{
		{integration.JobTypeWebhookNotification, c.Webhook, h.HandleWebhookNotification},
		{integration.JobTypeSyncOrders, c.Sync, h.storeSync(h.sync.SyncOrders)},
		{integration.JobTypeSyncProducts, c.Sync, h.storeSync(h.sync.SyncProducts)},
		{integration.JobTypeSyncSupport, c.Sync, h.storeSync(h.sync.SyncSupport)},
		{integration.JobTypeRefreshTokens, 1, h.HandleRefreshTokens},
	}
	for _, r := range handlers {
		if err := queue.Register(r.jobType, r.concurrency, r.handler); err != nil {
			return fmt.Errorf("register %s handler: %w", r.jobType, err)
		}
	}
	return nil
}

// HandleWebhookNotification ingests one queued notification
func (h *JobHandlers) HandleWebhookNotification(ctx context.Context, job *integration.SyncJob) error {
	var payload integration.WebhookPayload
	if err := integration.DecodeJobPayload(job, &payload); err != nil {
		return err
	}
	result, err := h.ingestion.Ingest(ctx, payload.Marketplace, &payload.Notification)
	if err != nil {
		return err
	}
	logger.L(ctx).Info("Notification ingested",
		zap.String("topic", payload.Notification.Topic),
		zap.String("resource", payload.Notification.Resource),
		zap.String("status", string(result.Status)),
		zap.String("reason", result.Reason),
	)
	return nil
}

// HandleRefreshTokens refreshes every due store token
func (h *JobHandlers) HandleRefreshTokens(ctx context.Context, _ *integration.SyncJob) error {
	summary, err := h.tokens.RefreshAll(ctx)
	if summary != nil {
		logger.L(ctx).Info("Token refresh run finished",
			zap.Int("checked", summary.Checked),
			zap.Int("refreshed", summary.Refreshed),
			zap.Int("failed", summary.Failed),
		)
	}
	return err
}

func (h *JobHandlers) storeSync(run func(ctx context.Context, storeID uuid.UUID) (*SyncResult, error)) scheduler.JobHandler {
	return func(ctx context.Context, job *integration.SyncJob) error {
		var payload integration.StorePayload
		if err := integration.DecodeJobPayload(job, &payload); err != nil {
			return err
		}
		_, err := run(ctx, payload.StoreID)
		return err
	}
}
