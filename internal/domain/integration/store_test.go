package integration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCredential_NeedsRefresh(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	skew := 5 * time.Minute

	tests := []struct {
		name      string
		expiresIn time.Duration
		token     string
		want      bool
	}{
		{"expires in 10 minutes", 10 * time.Minute, "tok", false},
		{"expires in 4 minutes", 4 * time.Minute, "tok", true},
		{"expires exactly at skew", 5 * time.Minute, "tok", true},
		{"already expired", -time.Hour, "tok", true},
		{"no access token", time.Hour, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := StoreCredential{AccessToken: tt.token, ExpiresAt: now.Add(tt.expiresIn)}
			assert.Equal(t, tt.want, cred.NeedsRefresh(now, skew))
		})
	}
}

func TestStoreCredential_Validate(t *testing.T) {
	assert.NoError(t, StoreCredential{ExternalUserID: "u1", AccessToken: "a", ExpiresAt: time.Now()}.Validate())
	assert.NoError(t, StoreCredential{ExternalUserID: "u1"}.Validate())
	assert.ErrorIs(t, StoreCredential{ExternalUserID: "u1", AccessToken: "a"}.Validate(), ErrInvalidCredential)
	assert.ErrorIs(t, StoreCredential{AccessToken: "a", ExpiresAt: time.Now()}.Validate(), ErrInvalidCredential)
}

func TestNewStore(t *testing.T) {
	now := time.Now()
	grant := &TokenGrant{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: 6 * time.Hour, ExternalUserID: "u1"}

	store, err := NewStore(uuid.New(), uuid.New(), MarketplaceMercadoLivre, grant, now)
	require.NoError(t, err)
	assert.Equal(t, StoreStatusConnected, store.Status)
	assert.Equal(t, "u1", store.Credential.ExternalUserID)
	assert.Equal(t, now.Add(6*time.Hour).UTC(), store.Credential.ExpiresAt)
	assert.True(t, store.IsSyncable())

	_, err = NewStore(uuid.New(), uuid.New(), "amazon", grant, now)
	assert.ErrorIs(t, err, ErrMarketplaceNotSupported)

	_, err = NewStore(uuid.New(), uuid.New(), MarketplaceShopee, &TokenGrant{}, now)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestStore_ApplyGrant(t *testing.T) {
	now := time.Now()
	store, err := NewStore(uuid.New(), uuid.New(), MarketplaceMercadoLivre,
		&TokenGrant{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: time.Hour, ExternalUserID: "u1"}, now)
	require.NoError(t, err)
	store.MarkReconnectRequired(now)
	assert.False(t, store.IsSyncable())

	t.Run("rotated refresh token replaces the old one", func(t *testing.T) {
		require.NoError(t, store.ApplyGrant(&TokenGrant{AccessToken: "A2", RefreshToken: "R2", ExpiresIn: time.Hour}, now))
		assert.Equal(t, "A2", store.Credential.AccessToken)
		assert.Equal(t, "R2", store.Credential.RefreshToken)
		assert.Equal(t, "u1", store.Credential.ExternalUserID)
		assert.Equal(t, StoreStatusConnected, store.Status)
	})

	t.Run("grant without refresh token keeps the held one", func(t *testing.T) {
		require.NoError(t, store.ApplyGrant(&TokenGrant{AccessToken: "A3", ExpiresIn: time.Hour}, now))
		assert.Equal(t, "A3", store.Credential.AccessToken)
		assert.Equal(t, "R2", store.Credential.RefreshToken)
	})

	t.Run("empty grant is rejected", func(t *testing.T) {
		assert.ErrorIs(t, store.ApplyGrant(nil, now), ErrInvalidCredential)
		assert.Equal(t, "A3", store.Credential.AccessToken)
	})
}

func TestStoreStatus_IsValid(t *testing.T) {
	assert.True(t, StoreStatusReconnectRequired.IsValid())
	assert.False(t, StoreStatus("PAUSED").IsValid())
	assert.Equal(t, "CONNECTED", StoreStatusConnected.String())
}
