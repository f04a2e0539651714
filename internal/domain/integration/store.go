package integration

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/shared"
)

// StoreStatus is the connection state of a marketplace store
type StoreStatus string

const (
	StoreStatusConnected         StoreStatus = "CONNECTED"
	StoreStatusReconnectRequired StoreStatus = "RECONNECT_REQUIRED"
	StoreStatusDisconnected      StoreStatus = "DISCONNECTED"
)

// IsValid returns true if the status is known
func (s StoreStatus) IsValid() bool {
	switch s {
	case StoreStatusConnected, StoreStatusReconnectRequired, StoreStatusDisconnected:
		return true
	}
	return false
}

// String returns the string representation
func (s StoreStatus) String() string {
	return string(s)
}

// StoreCredential is the OAuth credential held for a store
type StoreCredential struct {
	ExternalUserID string
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
}

// Validate checks the credential invariant: a held access token always has an expiry
func (c StoreCredential) Validate() error {
	if strings.TrimSpace(c.ExternalUserID) == "" {
		return ErrInvalidCredential
	}
	if c.AccessToken != "" && c.ExpiresAt.IsZero() {
		return ErrInvalidCredential
	}
	return nil
}

// NeedsRefresh reports whether the access token is missing or expires within skew
func (c StoreCredential) NeedsRefresh(now time.Time, skew time.Duration) bool {
	if c.AccessToken == "" {
		return true
	}
	return !now.Before(c.ExpiresAt.Add(-skew))
}

// CanRefresh reports whether a refresh token is held
func (c StoreCredential) CanRefresh() bool {
	return c.RefreshToken != ""
}

// Store is a connected marketplace seller account
type Store struct {
	shared.BaseEntity
	TenantID    uuid.UUID
	UserID      uuid.UUID
	Marketplace Marketplace
	Name        string
	Status      StoreStatus
	Credential  StoreCredential
}

// NewStore creates a connected store from a fresh token grant
func NewStore(tenantID, userID uuid.UUID, m Marketplace, grant *TokenGrant, now time.Time) (*Store, error) {
	if !m.IsValid() {
		return nil, ErrMarketplaceNotSupported
	}
	if grant == nil || grant.AccessToken == "" {
		return nil, ErrInvalidCredential
	}
	s := &Store{
		BaseEntity:  shared.NewBaseEntity(now),
		TenantID:    tenantID,
		UserID:      userID,
		Marketplace: m,
		Name:        m.DisplayName() + " " + grant.ExternalUserID,
	}
	if err := s.ApplyGrant(grant, now); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplyGrant stores a newly issued token and marks the store connected.
// A grant without a refresh token keeps the previously held one.
func (s *Store) ApplyGrant(grant *TokenGrant, now time.Time) error {
	if grant == nil || grant.AccessToken == "" {
		return ErrInvalidCredential
	}
	cred := StoreCredential{
		ExternalUserID: s.Credential.ExternalUserID,
		AccessToken:    grant.AccessToken,
		RefreshToken:   grant.RefreshToken,
		ExpiresAt:      now.Add(grant.ExpiresIn).UTC(),
	}
	if grant.ExternalUserID != "" {
		cred.ExternalUserID = grant.ExternalUserID
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = s.Credential.RefreshToken
	}
	if err := cred.Validate(); err != nil {
		return err
	}
	s.Credential = cred
	s.Status = StoreStatusConnected
	s.Touch(now)
	return nil
}

// MarkReconnectRequired flags the store for the seller to authorize again
func (s *Store) MarkReconnectRequired(now time.Time) {
	s.Status = StoreStatusReconnectRequired
	s.Touch(now)
}

// IsSyncable reports whether background sync may run for the store
func (s *Store) IsSyncable() bool {
	return s.Status == StoreStatusConnected
}

// StoreRepository persists stores.
// UpdateCredential is a last-writer-wins write of the credential columns only.
type StoreRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Store, error)
	FindByExternalUser(ctx context.Context, m Marketplace, externalUserID string) (*Store, error)
	FindSyncable(ctx context.Context) ([]Store, error)
	Save(ctx context.Context, store *Store) error
	UpdateCredential(ctx context.Context, storeID uuid.UUID, cred StoreCredential, updatedAt time.Time) error
	UpdateStatus(ctx context.Context, storeID uuid.UUID, status StoreStatus, updatedAt time.Time) error
}
