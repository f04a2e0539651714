package integration

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
)

// Callback failure reasons reported to the frontend
const (
	CallbackReasonMissingCode            = "missing_code"
	CallbackReasonInvalidState           = "invalid_state"
	CallbackReasonUnsupportedMarketplace = "unsupported_marketplace"
	CallbackReasonTokenExchangeFailed    = "token_exchange_failed"
	CallbackReasonStoreSaveFailed        = "store_save_failed"
	CallbackReasonStoreOwnedElsewhere    = "store_owned_by_another_company"
)

// OAuthState identifies who started a connect flow. It round-trips through
// the marketplace as base64url encoded JSON.
type OAuthState struct {
	UserID    uuid.UUID `json:"userId"`
	CompanyID uuid.UUID `json:"companyId"`
}

// EncodeState encodes the state without padding
func EncodeState(st OAuthState) string {
	data, _ := json.Marshal(st)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeState decodes a state parameter. A value that is not encoded JSON is
// read as the bare user id older clients send, and the user doubles as the
// company.
func DecodeState(raw string) (OAuthState, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return OAuthState{}, integration.ErrInvalidState
	}
	if data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "=")); err == nil {
		var st OAuthState
		if json.Unmarshal(data, &st) == nil && st.UserID != uuid.Nil && st.CompanyID != uuid.Nil {
			return st, nil
		}
	}
	if userID, err := uuid.Parse(raw); err == nil {
		return OAuthState{UserID: userID, CompanyID: userID}, nil
	}
	return OAuthState{}, integration.ErrInvalidState
}

// CallbackError is a failed OAuth callback with the reason shown to the seller
type CallbackError struct {
	Reason string
	Err    error
}

func (e *CallbackError) Error() string {
	if e.Err == nil {
		return "oauth callback failed: " + e.Reason
	}
	return fmt.Sprintf("oauth callback failed: %s: %v", e.Reason, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// ConnectService links marketplace seller accounts to tenants
type ConnectService struct {
	registry integration.AdapterRegistry
	stores   integration.StoreRepository
	queue    scheduler.JobEnqueuer
	now      func() time.Time
}

// NewConnectService creates a ConnectService. queue may be nil, in which
// case no initial sync is scheduled after connecting.
func NewConnectService(registry integration.AdapterRegistry, stores integration.StoreRepository, queue scheduler.JobEnqueuer) *ConnectService {
	return &ConnectService{registry: registry, stores: stores, queue: queue, now: time.Now}
}

// AuthorizationURL returns where to send the seller to grant access
func (s *ConnectService) AuthorizationURL(marketplace string, st OAuthState) (string, error) {
	m, err := integration.ParseMarketplace(marketplace)
	if err != nil {
		return "", err
	}
	client, err := s.registry.Client(m)
	if err != nil {
		return "", err
	}
	return client.AuthorizationURL(EncodeState(st)), nil
}

// HandleCallback exchanges the authorization code and creates or reconnects
// the store. Every failure is a *CallbackError.
func (s *ConnectService) HandleCallback(ctx context.Context, marketplace string, params integration.CallbackParams) (*integration.Store, error) {
	m, err := integration.ParseMarketplace(marketplace)
	if err != nil {
		return nil, &CallbackError{Reason: CallbackReasonUnsupportedMarketplace, Err: err}
	}
	client, err := s.registry.Client(m)
	if err != nil {
		return nil, &CallbackError{Reason: CallbackReasonUnsupportedMarketplace, Err: err}
	}
	if strings.TrimSpace(params.Code) == "" {
		return nil, &CallbackError{Reason: CallbackReasonMissingCode}
	}
	st, err := DecodeState(params.State)
	if err != nil {
		return nil, &CallbackError{Reason: CallbackReasonInvalidState, Err: err}
	}

	grant, err := client.ExchangeCode(ctx, params)
	if err != nil {
		return nil, &CallbackError{Reason: CallbackReasonTokenExchangeFailed, Err: err}
	}
	if grant.ExternalUserID == "" {
		return nil, &CallbackError{Reason: CallbackReasonTokenExchangeFailed, Err: integration.ErrInvalidCredential}
	}

	store, err := s.upsertStore(ctx, m, st, grant)
	if errors.Is(err, integration.ErrStoreTenantMismatch) {
		logger.L(ctx).Warn("Rejected reconnect of a store owned by another tenant",
			zap.String("marketplace", m.String()),
			zap.String("external_user_id", grant.ExternalUserID),
			zap.String("tenant_id", st.CompanyID.String()),
		)
		return nil, &CallbackError{Reason: CallbackReasonStoreOwnedElsewhere, Err: err}
	}
	if err != nil {
		return nil, &CallbackError{Reason: CallbackReasonStoreSaveFailed, Err: err}
	}

	logger.L(ctx).Info("Store connected",
		zap.String("store_id", store.ID.String()),
		zap.String("marketplace", m.String()),
		zap.String("external_user_id", store.Credential.ExternalUserID),
		zap.String("tenant_id", store.TenantID.String()),
	)
	s.scheduleInitialSync(ctx, store)
	return store, nil
}

func (s *ConnectService) upsertStore(ctx context.Context, m integration.Marketplace, st OAuthState, grant *integration.TokenGrant) (*integration.Store, error) {
	now := s.now()
	store, err := s.stores.FindByExternalUser(ctx, m, grant.ExternalUserID)
	switch {
	case errors.Is(err, integration.ErrStoreNotFound):
		store, err = integration.NewStore(st.CompanyID, st.UserID, m, grant, now)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if store.TenantID != st.CompanyID {
			return nil, integration.ErrStoreTenantMismatch
		}
		if err := store.ApplyGrant(grant, now); err != nil {
			return nil, err
		}
		store.UserID = st.UserID
	}
	if err := s.stores.Save(ctx, store); err != nil {
		return nil, err
	}
	return store, nil
}

// scheduleInitialSync queues the first pull for a newly connected store.
// Failures are logged; the periodic trigger picks the store up later.
func (s *ConnectService) scheduleInitialSync(ctx context.Context, store *integration.Store) {
	if s.queue == nil {
		return
	}
	jobTypes := []integration.JobType{integration.JobTypeSyncOrders, integration.JobTypeSyncProducts}
	if store.Marketplace.SupportsSupportSync() {
		jobTypes = append(jobTypes, integration.JobTypeSyncSupport)
	}
	for _, jobType := range jobTypes {
		payload := integration.StorePayload{StoreID: store.ID}
		if _, err := s.queue.Enqueue(ctx, jobType, &store.ID, payload, integration.JobOptions{}); err != nil {
			logger.L(ctx).Warn("Failed to queue initial sync",
				zap.String("store_id", store.ID.String()),
				zap.String("job_type", jobType.String()),
				zap.Error(err),
			)
		}
	}
}
