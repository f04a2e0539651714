package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
)

// QueueStatsReader reports job counts
type QueueStatsReader interface {
	Stats(ctx context.Context) (*integration.QueueStats, error)
}

// QueueHandler exposes the job queue to operators
type QueueHandler struct {
	BaseHandler
	stats       QueueStatsReader
	marketplace *MarketplaceHandler
}

// NewQueueHandler creates a QueueHandler. Sync routes reuse the marketplace
// handler without the marketplace check.
func NewQueueHandler(stats QueueStatsReader, marketplace *MarketplaceHandler) *QueueHandler {
	return &QueueHandler{stats: stats, marketplace: marketplace}
}

// RefreshTokens queues a refresh of every store token close to expiry
func (h *QueueHandler) RefreshTokens(c *gin.Context) {
	if _, err := getTenantID(c); err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}
	handle, err := h.marketplace.trigger.TriggerTokenRefresh(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, dto.JobResponse{JobID: handle.ID.String()})
}

// Stats returns job counts by state
func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.QueueStatsResponse{
		Waiting:   stats.Waiting,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Delayed:   stats.Delayed,
	})
}

// RegisterRoutes mounts the authenticated queue routes
func (h *QueueHandler) RegisterRoutes(rg *gin.RouterGroup) {
	q := rg.Group("/queue")
	q.POST("/sync-orders", h.marketplace.TriggerSync(integration.JobTypeSyncOrders))
	q.POST("/sync-products", h.marketplace.TriggerSync(integration.JobTypeSyncProducts))
	q.POST("/sync-support", h.marketplace.TriggerSync(integration.JobTypeSyncSupport))
	q.POST("/refresh-tokens", h.RefreshTokens)
	q.GET("/stats", h.Stats)
}
