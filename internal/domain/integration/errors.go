package integration

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Sentinel errors for the integration context
var (
	ErrStoreNotFound           = errors.New("integration: store not found")
	ErrOrderNotFound           = errors.New("integration: order not found")
	ErrProductNotFound         = errors.New("integration: product not found")
	ErrTicketNotFound          = errors.New("integration: support ticket not found")
	ErrJobNotFound             = errors.New("integration: job not found")
	ErrMarketplaceNotSupported = errors.New("integration: marketplace not supported")
	ErrCapabilityUnsupported   = errors.New("integration: capability not supported by marketplace")
	ErrInvalidExternalID       = errors.New("integration: external id is required")
	ErrInvalidSKU              = errors.New("integration: sku is required")
	ErrInvalidCredential       = errors.New("integration: invalid store credential")
	ErrInvalidJobType          = errors.New("integration: invalid job type")
	ErrInvalidJobOptions       = errors.New("integration: invalid job options")
	ErrInvalidState            = errors.New("integration: invalid oauth state")
	ErrStoreNotSyncable        = errors.New("integration: store is not connected")
	ErrStoreTenantMismatch     = errors.New("integration: store belongs to another tenant")
	ErrDuplicateKey            = errors.New("integration: natural key already exists")

	// ErrPermanent marks failures that must not be retried by the job queue
	ErrPermanent = errors.New("integration: permanent failure")
)

// ---------------------------------------------------------------------------
// Token errors
// ---------------------------------------------------------------------------

// TokenExpiredError is returned when a credential is stale and cannot be
// refreshed because no refresh token is held. The seller must reconnect.
type TokenExpiredError struct {
	StoreID uuid.UUID
}

func (e *TokenExpiredError) Error() string {
	return fmt.Sprintf("integration: token expired for store %s and no refresh token is available", e.StoreID)
}

// Is makes TokenExpiredError match ErrPermanent
func (e *TokenExpiredError) Is(target error) bool {
	return target == ErrPermanent
}

// TokenRefreshError is returned when the marketplace rejected or failed a refresh
type TokenRefreshError struct {
	StoreID uuid.UUID
	Cause   error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("integration: token refresh failed for store %s: %v", e.StoreID, e.Cause)
}

func (e *TokenRefreshError) Unwrap() error {
	return e.Cause
}

// ---------------------------------------------------------------------------
// Marketplace API errors
// ---------------------------------------------------------------------------

// MarketplaceAPIError wraps a failed marketplace call.
// StatusCode is zero when no HTTP response was received.
type MarketplaceAPIError struct {
	Marketplace Marketplace
	Operation   string
	StatusCode  int
	Body        string
	Cause       error
}

func (e *MarketplaceAPIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("integration: %s %s failed: %v", e.Marketplace, e.Operation, e.Cause)
	}
	return fmt.Sprintf("integration: %s %s returned HTTP %d: %s", e.Marketplace, e.Operation, e.StatusCode, e.Body)
}

func (e *MarketplaceAPIError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether repeating the call may succeed
func (e *MarketplaceAPIError) Retryable() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// IsNotFound reports whether the marketplace answered 404
func (e *MarketplaceAPIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether the marketplace rejected the credential
func (e *MarketplaceAPIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ---------------------------------------------------------------------------
// Mapping and reconciliation errors
// ---------------------------------------------------------------------------

// AdapterMappingError is returned when a payload lacks a required field
type AdapterMappingError struct {
	Marketplace Marketplace
	Entity      string
	Field       string
}

func (e *AdapterMappingError) Error() string {
	return fmt.Sprintf("integration: cannot map %s %s: missing or invalid %q", e.Marketplace, e.Entity, e.Field)
}

// Is makes mapping errors permanent; the same payload will never map
func (e *AdapterMappingError) Is(target error) bool {
	return target == ErrPermanent
}

// NewMappingError creates an AdapterMappingError
func NewMappingError(m Marketplace, entity, field string) error {
	return &AdapterMappingError{Marketplace: m, Entity: entity, Field: field}
}

// ReconciliationConflictError is returned when a concurrent writer kept
// winning the natural key race and the merge could not be applied
type ReconciliationConflictError struct {
	Entity string
	Key    string
	Cause  error
}

func (e *ReconciliationConflictError) Error() string {
	return fmt.Sprintf("integration: conflicting writes for %s %s: %v", e.Entity, e.Key, e.Cause)
}

func (e *ReconciliationConflictError) Unwrap() error {
	return e.Cause
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

// IsPermanent reports whether err should fail a job without further attempts
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{ErrPermanent, ErrCapabilityUnsupported, ErrMarketplaceNotSupported, ErrInvalidCredential, ErrStoreNotFound} {
		if errors.Is(err, target) {
			return true
		}
	}
	var apiErr *MarketplaceAPIError
	if errors.As(err, &apiErr) {
		return !apiErr.Retryable()
	}
	return false
}

// IsRetryable is the inverse of IsPermanent for non-nil errors
func IsRetryable(err error) bool {
	return err != nil && !IsPermanent(err)
}
