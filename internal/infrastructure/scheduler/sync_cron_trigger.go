package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
)

// StoreProvider lists the stores periodic sync runs for
type StoreProvider interface {
	FindSyncable(ctx context.Context) ([]integration.Store, error)
}

// JobEnqueuer is the part of JobQueue the trigger needs
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobType integration.JobType, storeID *uuid.UUID, payload any, opts integration.JobOptions) (*JobHandle, error)
	ExistsPending(ctx context.Context, jobType integration.JobType, storeID *uuid.UUID) (bool, error)
}

// SyncCronTriggerConfig holds the interval of every periodic job type.
// A zero interval disables that job type.
type SyncCronTriggerConfig struct {
	CheckInterval        time.Duration
	SupportInterval      time.Duration
	OrdersInterval       time.Duration
	ProductsInterval     time.Duration
	TokenRefreshInterval time.Duration
}

// DefaultSyncCronTriggerConfig returns default configuration
func DefaultSyncCronTriggerConfig() SyncCronTriggerConfig {
	return SyncCronTriggerConfig{
		CheckInterval:        time.Minute,
		SupportInterval:      5 * time.Minute,
		OrdersInterval:       15 * time.Minute,
		ProductsInterval:     time.Hour,
		TokenRefreshInterval: 30 * time.Minute,
	}
}

// SyncCronTrigger enqueues periodic sync and token refresh jobs. Stores
// that need reconnecting are skipped, and a store never gets a second job
// of a type while one is still pending.
type SyncCronTrigger struct {
	config SyncCronTriggerConfig
	queue  JobEnqueuer
	stores StoreProvider
	logger *zap.Logger
	now    func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	lastScheduled map[integration.JobType]time.Time
}

// NewSyncCronTrigger creates a new trigger
func NewSyncCronTrigger(config SyncCronTriggerConfig, queue JobEnqueuer, stores StoreProvider, logger *zap.Logger) *SyncCronTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	return &SyncCronTrigger{
		config:        config,
		queue:         queue,
		stores:        stores,
		logger:        logger.Named("cron"),
		now:           time.Now,
		lastScheduled: make(map[integration.JobType]time.Time),
	}
}

// Start starts the trigger loop
func (c *SyncCronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Sync cron trigger started",
		zap.Duration("check_interval", c.config.CheckInterval),
		zap.Duration("support_interval", c.config.SupportInterval),
		zap.Duration("orders_interval", c.config.OrdersInterval),
		zap.Duration("products_interval", c.config.ProductsInterval),
		zap.Duration("token_refresh_interval", c.config.TokenRefreshInterval),
	)
	return nil
}

// Stop stops the trigger loop
func (c *SyncCronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Sync cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SyncCronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick enqueues every job type whose interval has elapsed
func (c *SyncCronTrigger) Tick(ctx context.Context) {
	now := c.now()

	if c.due(integration.JobTypeRefreshTokens, c.config.TokenRefreshInterval, now) {
		c.enqueueGlobal(ctx, integration.JobTypeRefreshTokens)
	}

	var storeJobs []integration.JobType
	for _, jt := range []struct {
		jobType  integration.JobType
		interval time.Duration
	}{
		{integration.JobTypeSyncSupport, c.config.SupportInterval},
		{integration.JobTypeSyncOrders, c.config.OrdersInterval},
		{integration.JobTypeSyncProducts, c.config.ProductsInterval},
	} {
		if c.due(jt.jobType, jt.interval, now) {
			storeJobs = append(storeJobs, jt.jobType)
		}
	}
	if len(storeJobs) == 0 {
		return
	}

	stores, err := c.stores.FindSyncable(ctx)
	if err != nil {
		c.logger.Error("Failed to list stores for periodic sync", zap.Error(err))
		return
	}

	for _, store := range stores {
		if !store.IsSyncable() {
			continue
		}
		for _, jobType := range storeJobs {
			if jobType == integration.JobTypeSyncSupport && !store.Marketplace.SupportsSupportSync() {
				continue
			}
			c.enqueueForStore(ctx, jobType, &store)
		}
	}
}

// due reports whether jobType's interval elapsed and marks it scheduled
func (c *SyncCronTrigger) due(jobType integration.JobType, interval time.Duration, now time.Time) bool {
	if interval <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastScheduled[jobType]; ok && now.Sub(last) < interval {
		return false
	}
	c.lastScheduled[jobType] = now
	return true
}

func (c *SyncCronTrigger) enqueueGlobal(ctx context.Context, jobType integration.JobType) {
	pending, err := c.queue.ExistsPending(ctx, jobType, nil)
	if err != nil {
		c.logger.Error("Failed to check pending jobs", zap.String("job_type", string(jobType)), zap.Error(err))
		return
	}
	if pending {
		c.logger.Debug("Skipping periodic job, one is already pending", zap.String("job_type", string(jobType)))
		return
	}
	if _, err := c.queue.Enqueue(ctx, jobType, nil, nil, integration.JobOptions{}); err != nil {
		c.logger.Error("Failed to enqueue periodic job", zap.String("job_type", string(jobType)), zap.Error(err))
	}
}

func (c *SyncCronTrigger) enqueueForStore(ctx context.Context, jobType integration.JobType, store *integration.Store) {
	storeID := store.ID
	fields := []zap.Field{
		zap.String("job_type", string(jobType)),
		zap.String("store_id", storeID.String()),
		zap.String("marketplace", string(store.Marketplace)),
	}

	pending, err := c.queue.ExistsPending(ctx, jobType, &storeID)
	if err != nil {
		c.logger.Error("Failed to check pending jobs", append(fields, zap.Error(err))...)
		return
	}
	if pending {
		c.logger.Debug("Skipping periodic sync, one is already pending", fields...)
		return
	}

	handle, err := c.queue.Enqueue(ctx, jobType, &storeID, integration.StorePayload{StoreID: storeID}, integration.JobOptions{})
	if err != nil {
		c.logger.Error("Failed to enqueue periodic sync", append(fields, zap.Error(err))...)
		return
	}
	c.logger.Debug("Periodic sync enqueued", append(fields, zap.String("job_id", handle.ID.String()))...)
}
