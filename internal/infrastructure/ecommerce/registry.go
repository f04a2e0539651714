package ecommerce

import (
	"fmt"
	"slices"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/config"
)

// Registry resolves marketplace adapters and clients by name
type Registry struct {
	adapters map[integration.Marketplace]integration.MarketplaceAdapter
	clients  map[integration.Marketplace]integration.MarketplaceClient
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[integration.Marketplace]integration.MarketplaceAdapter),
		clients:  make(map[integration.Marketplace]integration.MarketplaceClient),
	}
}

var _ integration.AdapterRegistry = (*Registry)(nil)

// Register adds an adapter and its client. They must agree on the marketplace.
func (r *Registry) Register(adapter integration.MarketplaceAdapter, client integration.MarketplaceClient) error {
	m := adapter.Marketplace()
	if client.Marketplace() != m {
		return fmt.Errorf("ecommerce: adapter %s registered with %s client", m, client.Marketplace())
	}
	r.adapters[m] = adapter
	r.clients[m] = client
	return nil
}

// Adapter returns the adapter for m
func (r *Registry) Adapter(m integration.Marketplace) (integration.MarketplaceAdapter, error) {
	a, ok := r.adapters[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", integration.ErrMarketplaceNotSupported, m)
	}
	return a, nil
}

// Client returns the API client for m
func (r *Registry) Client(m integration.Marketplace) (integration.MarketplaceClient, error) {
	c, ok := r.clients[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", integration.ErrMarketplaceNotSupported, m)
	}
	return c, nil
}

// Marketplaces returns the registered marketplaces in stable order
func (r *Registry) Marketplaces() []integration.Marketplace {
	out := make([]integration.Marketplace, 0, len(r.adapters))
	for m := range r.adapters {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// NewRegistryFromConfig registers every marketplace enabled in cfg.
// opts supplies the shared metrics and logger; timeouts and rate limits
// come from each marketplace's section.
func NewRegistryFromConfig(cfg *config.Config, opts HTTPOptions) (*Registry, error) {
	r := NewRegistry()

	if cfg.MercadoLivre.Enabled {
		mlOpts := opts
		mlOpts.Timeout = cfg.MercadoLivre.Timeout
		mlOpts.RequestsPerSecond = cfg.MercadoLivre.RequestsPerSecond
		client, err := NewMercadoLivreClient(MercadoLivreConfig{
			ClientID:     cfg.MercadoLivre.ClientID,
			ClientSecret: cfg.MercadoLivre.ClientSecret,
			RedirectURI:  cfg.MercadoLivre.RedirectURI,
			APIBaseURL:   cfg.MercadoLivre.APIBaseURL,
			AuthURL:      cfg.MercadoLivre.AuthURL,
		}, mlOpts)
		if err != nil {
			return nil, err
		}
		if err := r.Register(NewMercadoLivreAdapter(), client); err != nil {
			return nil, err
		}
	}

	if cfg.Shopee.Enabled {
		shopeeOpts := opts
		shopeeOpts.Timeout = cfg.Shopee.Timeout
		shopeeOpts.RequestsPerSecond = cfg.Shopee.RequestsPerSecond
		client, err := NewShopeeClient(ShopeeConfig{
			PartnerID:   cfg.Shopee.PartnerID,
			PartnerKey:  cfg.Shopee.PartnerKey,
			RedirectURI: cfg.Shopee.RedirectURI,
			APIBaseURL:  cfg.Shopee.APIBaseURL,
		}, shopeeOpts)
		if err != nil {
			return nil, err
		}
		if err := r.Register(NewShopeeAdapter(), client); err != nil {
			return nil, err
		}
	}

	return r, nil
}
