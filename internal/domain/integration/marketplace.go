package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Marketplace
// ---------------------------------------------------------------------------

// Marketplace identifies an external sales channel
type Marketplace string

const (
	MarketplaceMercadoLivre Marketplace = "mercadolivre"
	MarketplaceShopee       Marketplace = "shopee"
)

// IsValid returns true if the marketplace is supported
func (m Marketplace) IsValid() bool {
	switch m {
	case MarketplaceMercadoLivre, MarketplaceShopee:
		return true
	}
	return false
}

// String returns the string representation
func (m Marketplace) String() string {
	return string(m)
}

// DisplayName returns a human readable marketplace name
func (m Marketplace) DisplayName() string {
	switch m {
	case MarketplaceMercadoLivre:
		return "Mercado Livre"
	case MarketplaceShopee:
		return "Shopee"
	}
	return string(m)
}

// SupportsSupportSync reports whether the marketplace API exposes buyer
// questions and messages
func (m Marketplace) SupportsSupportSync() bool {
	return m == MarketplaceMercadoLivre
}

// ParseMarketplace normalizes a marketplace name taken from a URL or config
func ParseMarketplace(s string) (Marketplace, error) {
	m := Marketplace(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", ErrMarketplaceNotSupported
	}
	return m, nil
}

// AllMarketplaces returns every supported marketplace
func AllMarketplaces() []Marketplace {
	return []Marketplace{MarketplaceMercadoLivre, MarketplaceShopee}
}

// ---------------------------------------------------------------------------
// Payload
// ---------------------------------------------------------------------------

// Payload is an opaque marketplace resource as returned by its API.
// Only adapters look inside it.
type Payload map[string]any

// Equal compares two payloads by their canonical JSON encoding, so that
// json.Number and float64 representations of the same value compare equal.
func (p Payload) Equal(other Payload) bool {
	if len(p) == 0 && len(other) == 0 {
		return true
	}
	a, errA := json.Marshal(p)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// DecodePayload decodes a JSON object keeping numbers as json.Number.
// Marketplace identifiers exceed float64 precision.
func DecodePayload(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// PageRequest addresses one page of a marketplace listing.
// Offset based marketplaces use Offset; cursor based ones use Cursor.
type PageRequest struct {
	Offset int
	Limit  int
	Cursor string
}

// Page is one page of raw marketplace resources
type Page struct {
	Items []Payload
	// Fetched is how many listing entries the page consumed. It exceeds
	// len(Items) when some listed resources could not be retrieved.
	Fetched    int
	Total      int
	HasMore    bool
	NextCursor string
}

// Consumed returns the number of listing entries the page advanced over
func (p *Page) Consumed() int {
	return max(p.Fetched, len(p.Items))
}

// TokenGrant is the result of an OAuth code exchange or refresh
type TokenGrant struct {
	AccessToken    string
	RefreshToken   string
	ExpiresIn      time.Duration
	ExternalUserID string
}

// CallbackParams carries the query parameters of an OAuth redirect
type CallbackParams struct {
	Code   string
	State  string
	ShopID string
}

// ShippingInfo is the address data resolved from a shipment resource
type ShippingInfo struct {
	City  string
	State string
	Zip   string
}

// MarketplaceClient is the port to a marketplace HTTP API.
// Responses are returned unmapped; adapters turn them into drafts.
type MarketplaceClient interface {
	Marketplace() Marketplace
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, params CallbackParams) (*TokenGrant, error)
	RefreshToken(ctx context.Context, cred StoreCredential) (*TokenGrant, error)

	FetchOrder(ctx context.Context, cred StoreCredential, externalID string) (Payload, error)
	ListOrders(ctx context.Context, cred StoreCredential, page PageRequest) (*Page, error)
	FetchProduct(ctx context.Context, cred StoreCredential, externalID string) (Payload, error)
	ListProducts(ctx context.Context, cred StoreCredential, page PageRequest) (*Page, error)
	FetchSupportItem(ctx context.Context, cred StoreCredential, kind SupportKind, externalID string) (Payload, error)
	ListSupportItems(ctx context.Context, cred StoreCredential, page PageRequest) (*Page, error)
	FetchShipment(ctx context.Context, cred StoreCredential, shippingID string) (Payload, error)
}

// MarketplaceAdapter maps raw marketplace payloads into canonical drafts.
// Implementations are pure: no I/O and no clock.
type MarketplaceAdapter interface {
	Marketplace() Marketplace
	MapOrder(p Payload) (*OrderDraft, error)
	MapProduct(p Payload) (*ProductDraft, error)
	MapSupportItem(p Payload) (*SupportTicketDraft, error)
	MapShipment(p Payload) (*ShippingInfo, error)
	ParseNotification(body []byte) (*Notification, error)
}

// AdapterRegistry resolves adapters and clients by marketplace name
type AdapterRegistry interface {
	Adapter(m Marketplace) (MarketplaceAdapter, error)
	Client(m Marketplace) (MarketplaceClient, error)
	Marketplaces() []Marketplace
}

// PlaceholderEmail builds the synthetic customer email used when a
// marketplace hides the buyer's address
func PlaceholderEmail(m Marketplace, externalID string) string {
	return string(m) + "-" + externalID + "@marketplace.com"
}

// ExtractStateCode reduces an ISO 3166-2 subdivision code to the local state code.
// "BR-SP" becomes "SP"; values without a country prefix are returned unchanged.
func ExtractStateCode(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.LastIndex(code, "-"); i >= 0 {
		return code[i+1:]
	}
	return code
}
