package ecommerce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/config"
)

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := &config.Config{
		MercadoLivre: config.MercadoLivreConfig{Enabled: true, ClientID: "1", ClientSecret: "s"},
		Shopee:       config.ShopeeConfig{Enabled: true, PartnerID: 2, PartnerKey: "k"},
	}

	registry, err := NewRegistryFromConfig(cfg, HTTPOptions{})
	require.NoError(t, err)
	assert.Equal(t, []integration.Marketplace{integration.MarketplaceMercadoLivre, integration.MarketplaceShopee}, registry.Marketplaces())

	adapter, err := registry.Adapter(integration.MarketplaceShopee)
	require.NoError(t, err)
	assert.IsType(t, &ShopeeAdapter{}, adapter)

	client, err := registry.Client(integration.MarketplaceMercadoLivre)
	require.NoError(t, err)
	assert.Equal(t, integration.MarketplaceMercadoLivre, client.Marketplace())

	_, err = registry.Adapter("amazon")
	assert.ErrorIs(t, err, integration.ErrMarketplaceNotSupported)
}

func TestNewRegistryFromConfig_DisabledAndInvalid(t *testing.T) {
	registry, err := NewRegistryFromConfig(&config.Config{
		Shopee: config.ShopeeConfig{Enabled: true, PartnerID: 2, PartnerKey: "k"},
	}, HTTPOptions{})
	require.NoError(t, err)
	_, err = registry.Client(integration.MarketplaceMercadoLivre)
	assert.ErrorIs(t, err, integration.ErrMarketplaceNotSupported)

	_, err = NewRegistryFromConfig(&config.Config{
		MercadoLivre: config.MercadoLivreConfig{Enabled: true},
	}, HTTPOptions{})
	assert.ErrorIs(t, err, ErrMercadoLivreMissingClientID)
}

func TestRegistry_RegisterMismatch(t *testing.T) {
	client, err := NewShopeeClient(ShopeeConfig{PartnerID: 1, PartnerKey: "k"}, HTTPOptions{})
	require.NoError(t, err)
	assert.Error(t, NewRegistry().Register(NewMercadoLivreAdapter(), client))
}
