package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appintegration "github.com/ordersync/backend/internal/application/integration"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
)

// WebhookIngester screens and queues marketplace notifications
type WebhookIngester interface {
	Accept(ctx context.Context, marketplace string, body []byte) (*appintegration.IngestResult, error)
}

// StoreConnector runs the OAuth connect flow
type StoreConnector interface {
	AuthorizationURL(marketplace string, st appintegration.OAuthState) (string, error)
	HandleCallback(ctx context.Context, marketplace string, params integration.CallbackParams) (*integration.Store, error)
}

// SyncTrigger queues operator requested jobs
type SyncTrigger interface {
	TriggerStoreSync(ctx context.Context, tenantID uuid.UUID, marketplace string, jobType integration.JobType, storeID uuid.UUID) (*scheduler.JobHandle, error)
	TriggerTokenRefresh(ctx context.Context) (*scheduler.JobHandle, error)
}

// ShippingEnricher resolves missing order addresses
type ShippingEnricher interface {
	EnrichShipping(ctx context.Context, tenantID, orderID uuid.UUID) (*appintegration.ReconcileResult[integration.Order], error)
}

// Webhook acknowledgement statuses the HTTP layer adds to IngestStatus
const (
	webhookStatusError  = "error"
	reasonBodyTooLarge  = "body_too_large"
	reasonUnreadable    = "unreadable_body"
	callbackStatusOK    = "connected"
	callbackStatusError = "error"
)

// MarketplaceHandler serves the marketplace facing and operator facing
// integration endpoints
type MarketplaceHandler struct {
	BaseHandler
	ingester    WebhookIngester
	connector   StoreConnector
	trigger     SyncTrigger
	enricher    ShippingEnricher
	webhook     config.WebhookConfig
	frontendURL string
}

// MarketplaceHandlerDeps groups the collaborators of MarketplaceHandler
type MarketplaceHandlerDeps struct {
	Ingester  WebhookIngester
	Connector StoreConnector
	Trigger   SyncTrigger
	Enricher  ShippingEnricher
	Webhook   config.WebhookConfig
	Frontend  config.FrontendConfig
}

// NewMarketplaceHandler creates a MarketplaceHandler
func NewMarketplaceHandler(deps MarketplaceHandlerDeps) *MarketplaceHandler {
	return &MarketplaceHandler{
		ingester:    deps.Ingester,
		connector:   deps.Connector,
		trigger:     deps.Trigger,
		enricher:    deps.Enricher,
		webhook:     deps.Webhook,
		frontendURL: strings.TrimRight(deps.Frontend.URL, "/") + deps.Frontend.IntegrationsPath,
	}
}

// Webhook receives a marketplace notification. It always answers 200 so the
// marketplace does not disable the subscription; the outcome is reported in
// the acknowledgement body only.
func (h *MarketplaceHandler) Webhook(c *gin.Context) {
	marketplace := c.Param("marketplace")
	log := logger.GetGinLogger(c).With(zap.String("marketplace", marketplace))

	body := c.Request.Body
	if h.webhook.MaxBodySize > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.webhook.MaxBodySize)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		reason := reasonUnreadable
		if middleware.IsBodyTooLarge(err) {
			reason = reasonBodyTooLarge
		}
		log.Warn("Webhook body rejected", zap.String("reason", reason), zap.Error(err))
		h.ack(c, strings.ToLower(string(appintegration.IngestStatusIgnored)), reason)
		return
	}

	res, err := h.ingester.Accept(c.Request.Context(), marketplace, data)
	if err != nil {
		log.Error("Webhook not queued", zap.Error(err))
		h.ack(c, webhookStatusError, "")
		return
	}
	h.ack(c, strings.ToLower(string(res.Status)), res.Reason)
}

func (h *MarketplaceHandler) ack(c *gin.Context, status, reason string) {
	c.JSON(http.StatusOK, dto.WebhookAck{Received: true, Status: status, Reason: reason})
}

// Callback completes the OAuth flow and sends the seller back to the
// integrations page with the outcome in the query string
func (h *MarketplaceHandler) Callback(c *gin.Context) {
	marketplace := c.Param("marketplace")

	var q dto.CallbackQuery
	_ = c.ShouldBindQuery(&q)

	store, err := h.connector.HandleCallback(c.Request.Context(), marketplace, integration.CallbackParams{
		Code:   q.Code,
		State:  q.State,
		ShopID: q.ShopID,
	})

	params := url.Values{"marketplace": {marketplace}}
	if err != nil {
		reason := appintegration.CallbackReasonStoreSaveFailed
		var cbErr *appintegration.CallbackError
		if errors.As(err, &cbErr) {
			reason = cbErr.Reason
		}
		logger.GetGinLogger(c).Warn("Marketplace connect failed",
			zap.String("marketplace", marketplace), zap.String("reason", reason), zap.Error(err))
		params.Set("status", callbackStatusError)
		params.Set("reason", reason)
	} else {
		logger.GetGinLogger(c).Info("Marketplace store connected",
			zap.String("marketplace", marketplace), zap.String("store_id", store.ID.String()))
		params.Set("status", callbackStatusOK)
		params.Set("storeId", store.ID.String())
	}
	c.Redirect(http.StatusFound, h.frontendURL+"?"+params.Encode())
}

// Connect returns the authorization URL for the operator's company
func (h *MarketplaceHandler) Connect(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	marketplace := c.Param("marketplace")
	authURL, err := h.connector.AuthorizationURL(marketplace, appintegration.OAuthState{UserID: userID, CompanyID: tenantID})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ConnectResponse{Marketplace: marketplace, AuthorizationURL: authURL})
}

// TriggerSync returns a handler queueing jobType for the store in the
// storeId query parameter. Routes with a :marketplace segment also check
// the store belongs to that marketplace.
func (h *MarketplaceHandler) TriggerSync(jobType integration.JobType) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := getTenantID(c)
		if err != nil {
			h.Unauthorized(c, "Authentication required")
			return
		}
		var q dto.StoreQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}

		handle, err := h.trigger.TriggerStoreSync(c.Request.Context(), tenantID, c.Param("marketplace"), jobType, uuid.MustParse(q.StoreID))
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Accepted(c, dto.JobResponse{JobID: handle.ID.String()})
	}
}

// EnrichShipping resolves the shipping address of an order on demand
func (h *MarketplaceHandler) EnrichShipping(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}
	var uri dto.OrderURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	res, err := h.enricher.EnrichShipping(c.Request.Context(), tenantID, uuid.MustParse(uri.ID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	o := res.Record
	h.Success(c, dto.ShippingResponse{
		OrderID:       o.ID.String(),
		ExternalID:    o.ExternalID,
		ShippingID:    o.ShippingID,
		CustomerCity:  o.CustomerCity,
		CustomerState: o.CustomerState,
		CustomerZip:   o.CustomerZip,
		UpdatedAt:     o.UpdatedAt,
	})
}

// RegisterRoutes mounts the public marketplace routes. Operator routes are
// mounted by RegisterOperatorRoutes behind authentication.
func (h *MarketplaceHandler) RegisterRoutes(rg *gin.RouterGroup, webhookMiddleware ...gin.HandlerFunc) {
	mk := rg.Group("/marketplace")
	mk.POST("/:marketplace/webhook", append(webhookMiddleware, h.Webhook)...)
	mk.GET("/:marketplace/callback", h.Callback)
}

// RegisterOperatorRoutes mounts the authenticated marketplace routes
func (h *MarketplaceHandler) RegisterOperatorRoutes(rg *gin.RouterGroup) {
	mk := rg.Group("/marketplace")
	mk.GET("/:marketplace/connect", h.Connect)
	mk.POST("/:marketplace/sync-orders", h.TriggerSync(integration.JobTypeSyncOrders))
	mk.POST("/:marketplace/sync-products", h.TriggerSync(integration.JobTypeSyncProducts))
	mk.POST("/:marketplace/sync-support", h.TriggerSync(integration.JobTypeSyncSupport))
	mk.POST("/orders/:id/enrich-shipping", h.EnrichShipping)
}
