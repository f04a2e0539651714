package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// DefaultRefreshSkew refreshes tokens this long before they expire
const DefaultRefreshSkew = 5 * time.Minute

// TokenManagerConfig configures the token lifecycle
type TokenManagerConfig struct {
	RefreshSkew time.Duration
	// Now overrides the clock in tests
	Now func() time.Time
}

// TokenRefreshSummary reports a RefreshAll run
type TokenRefreshSummary struct {
	Checked   int `json:"checked"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

// TokenManager hands out valid access tokens, refreshing them when they are
// about to expire. It is the only writer of store credentials besides the
// connect flow.
type TokenManager struct {
	stores   integration.StoreRepository
	registry integration.AdapterRegistry
	metrics  *telemetry.SyncMetrics
	skew     time.Duration
	now      func() time.Time
	inflight singleflight.Group
}

// NewTokenManager creates a TokenManager
func NewTokenManager(
	stores integration.StoreRepository,
	registry integration.AdapterRegistry,
	metrics *telemetry.SyncMetrics,
	cfg TokenManagerConfig,
) *TokenManager {
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = DefaultRefreshSkew
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenManager{
		stores:   stores,
		registry: registry,
		metrics:  metrics,
		skew:     cfg.RefreshSkew,
		now:      cfg.Now,
	}
}

// EnsureFreshToken returns a usable access token for the store. When the held
// token is within the refresh skew of its expiry it is refreshed, persisted,
// and written back into store.
//
// Concurrent callers for the same store share one refresh. Across processes
// the last writer wins; both grants are valid at the marketplace.
func (m *TokenManager) EnsureFreshToken(ctx context.Context, store *integration.Store) (string, error) {
	if !store.Credential.NeedsRefresh(m.now(), m.skew) {
		return store.Credential.AccessToken, nil
	}
	if !store.Credential.CanRefresh() {
		m.markReconnectRequired(ctx, store)
		return "", &integration.TokenExpiredError{StoreID: store.ID}
	}

	snapshot := *store
	v, err, shared := m.inflight.Do(store.ID.String(), func() (any, error) {
		return m.refresh(ctx, &snapshot)
	})
	if err != nil {
		return "", err
	}
	cred := v.(integration.StoreCredential)
	if shared {
		logger.L(ctx).Debug("Joined in-flight token refresh", zap.String("store_id", store.ID.String()))
	}
	store.Credential = cred
	store.Status = integration.StoreStatusConnected
	store.Touch(m.now())
	return cred.AccessToken, nil
}

func (m *TokenManager) refresh(ctx context.Context, store *integration.Store) (integration.StoreCredential, error) {
	ctx, span := telemetry.StartSpan(ctx, "token.refresh")
	var err error
	defer func() { telemetry.EndSpan(span, err) }()

	client, err := m.registry.Client(store.Marketplace)
	if err != nil {
		return integration.StoreCredential{}, err
	}

	grant, err := client.RefreshToken(ctx, store.Credential)
	m.metrics.RecordTokenRefresh(ctx, store.Marketplace.String(), err)
	if err != nil {
		var apiErr *integration.MarketplaceAPIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			m.markReconnectRequired(ctx, store)
		}
		err = &integration.TokenRefreshError{StoreID: store.ID, Cause: err}
		return integration.StoreCredential{}, err
	}

	now := m.now()
	if err = store.ApplyGrant(grant, now); err != nil {
		err = &integration.TokenRefreshError{StoreID: store.ID, Cause: err}
		return integration.StoreCredential{}, err
	}
	if err = m.stores.UpdateCredential(ctx, store.ID, store.Credential, now); err != nil {
		err = fmt.Errorf("persist refreshed token for store %s: %w", store.ID, err)
		return integration.StoreCredential{}, err
	}

	logger.L(ctx).Info("Access token refreshed",
		zap.String("store_id", store.ID.String()),
		zap.String("marketplace", store.Marketplace.String()),
		zap.Time("expires_at", store.Credential.ExpiresAt),
	)
	return store.Credential, nil
}

func (m *TokenManager) markReconnectRequired(ctx context.Context, store *integration.Store) {
	now := m.now()
	if err := m.stores.UpdateStatus(ctx, store.ID, integration.StoreStatusReconnectRequired, now); err != nil {
		logger.L(ctx).Error("Failed to flag store for reconnect",
			zap.String("store_id", store.ID.String()), zap.Error(err))
		return
	}
	store.MarkReconnectRequired(now)
	logger.L(ctx).Warn("Store requires reconnect",
		zap.String("store_id", store.ID.String()),
		zap.String("marketplace", store.Marketplace.String()),
	)
}

// RefreshAll refreshes every connected store whose token is due. Every store
// is attempted; the returned error joins the failures. It is permanent only
// when no failure can be retried.
func (m *TokenManager) RefreshAll(ctx context.Context) (*TokenRefreshSummary, error) {
	stores, err := m.stores.FindSyncable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stores for token refresh: %w", err)
	}

	summary := &TokenRefreshSummary{}
	var retryable, permanent []error
	for i := range stores {
		store := &stores[i]
		summary.Checked++
		if !store.Credential.NeedsRefresh(m.now(), m.skew) {
			continue
		}
		if _, err := m.EnsureFreshToken(ctx, store); err != nil {
			summary.Failed++
			logger.L(ctx).Warn("Token refresh failed",
				zap.String("store_id", store.ID.String()), zap.Error(err))
			if integration.IsPermanent(err) {
				permanent = append(permanent, err)
			} else {
				retryable = append(retryable, err)
			}
			continue
		}
		summary.Refreshed++
	}

	switch {
	case len(retryable) > 0:
		return summary, fmt.Errorf("token refresh failed for %d of %d stores: %w",
			summary.Failed, summary.Checked, errors.Join(retryable...))
	case len(permanent) > 0:
		return summary, fmt.Errorf("%w: token refresh failed for %d of %d stores: %v",
			integration.ErrPermanent, summary.Failed, summary.Checked, errors.Join(permanent...))
	}
	return summary, nil
}
