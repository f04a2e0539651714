package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
)

var errMissingOperator = errors.New("operator identity not found in context")

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getTenantID returns the tenant of the authenticated operator
func getTenantID(c *gin.Context) (uuid.UUID, error) {
	raw := middleware.GetJWTTenantID(c)
	if raw == "" {
		return uuid.Nil, errMissingOperator
	}
	return uuid.Parse(raw)
}

// getUserID returns the authenticated operator
func getUserID(c *gin.Context) (uuid.UUID, error) {
	raw := middleware.GetJWTUserID(c)
	if raw == "" {
		return uuid.Nil, errMissingOperator
	}
	return uuid.Parse(raw)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response for queued work
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError maps integration and domain errors to HTTP responses.
// Unclassified errors are logged and reported as internal errors.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var tokenErr *integration.TokenExpiredError
	var domainErr *shared.DomainError
	switch {
	case errors.Is(err, integration.ErrStoreNotFound):
		h.ErrorWithCode(c, dto.ErrCodeNotFound, "Store not found")
	case errors.Is(err, integration.ErrOrderNotFound):
		h.ErrorWithCode(c, dto.ErrCodeNotFound, "Order not found")
	case errors.Is(err, integration.ErrMarketplaceNotSupported):
		h.ErrorWithCode(c, dto.ErrCodeMarketplaceUnsupported, "Marketplace not supported")
	case errors.Is(err, integration.ErrCapabilityUnsupported):
		h.ErrorWithCode(c, dto.ErrCodeCapabilityUnsupported, "Marketplace does not support this operation")
	case errors.Is(err, integration.ErrStoreNotSyncable), errors.As(err, &tokenErr):
		h.ErrorWithCode(c, dto.ErrCodeStoreNotConnected, "Store must be reconnected")
	case errors.Is(err, integration.ErrInvalidJobType):
		h.ErrorWithCode(c, dto.ErrCodeBadRequest, "Invalid job type")
	case errors.As(err, &domainErr):
		h.ErrorWithCode(c, dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
	default:
		logger.GetGinLogger(c).Error("Request failed", zap.Error(err))
		h.InternalError(c, "An unexpected error occurred")
	}
}
