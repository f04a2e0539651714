package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ordersync/backend/internal/domain/integration"
)

const (
	// MercadoLivreProductionAPIURL is the production API endpoint
	MercadoLivreProductionAPIURL = "https://api.mercadolibre.com"
	// MercadoLivreAuthURL is the Brazilian authorization page
	MercadoLivreAuthURL = "https://auth.mercadolivre.com.br/authorization"

	// mercadoLivreMultigetLimit is the maximum ids per /items multiget
	mercadoLivreMultigetLimit = 20
)

// Errors for Mercado Livre configuration
var (
	ErrMercadoLivreMissingClientID     = errors.New("mercadolivre: client id is required")
	ErrMercadoLivreMissingClientSecret = errors.New("mercadolivre: client secret is required")
)

// MercadoLivreConfig holds the application credentials registered with Mercado Livre
type MercadoLivreConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIBaseURL   string
	AuthURL      string
}

// Validate checks required fields and fills endpoint defaults
func (c *MercadoLivreConfig) Validate() error {
	if c.ClientID == "" {
		return ErrMercadoLivreMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrMercadoLivreMissingClientSecret
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = MercadoLivreProductionAPIURL
	}
	if c.AuthURL == "" {
		c.AuthURL = MercadoLivreAuthURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	return nil
}

// MercadoLivreClient implements integration.MarketplaceClient for the Mercado Livre REST API
type MercadoLivreClient struct {
	config MercadoLivreConfig
	api    *apiClient
}

// NewMercadoLivreClient creates a client with the given configuration
func NewMercadoLivreClient(config MercadoLivreConfig, opts HTTPOptions) (*MercadoLivreClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &MercadoLivreClient{
		config: config,
		api:    newAPIClient(integration.MarketplaceMercadoLivre, opts),
	}, nil
}

var _ integration.MarketplaceClient = (*MercadoLivreClient)(nil)

// Marketplace returns the marketplace this client talks to
func (c *MercadoLivreClient) Marketplace() integration.Marketplace {
	return integration.MarketplaceMercadoLivre
}

// AuthorizationURL returns the seller consent page carrying state
func (c *MercadoLivreClient) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.config.ClientID)
	q.Set("redirect_uri", c.config.RedirectURI)
	if state != "" {
		q.Set("state", state)
	}
	return c.config.AuthURL + "?" + q.Encode()
}

// mercadoLivreToken is the /oauth/token response
type mercadoLivreToken struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	Scope        string      `json:"scope"`
	UserID       json.Number `json:"user_id"`
	RefreshToken string      `json:"refresh_token"`
}

// ExchangeCode trades an authorization code for the seller's first token pair
func (c *MercadoLivreClient) ExchangeCode(ctx context.Context, params integration.CallbackParams) (*integration.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", params.Code)
	form.Set("redirect_uri", c.config.RedirectURI)
	return c.requestToken(ctx, "ExchangeCode", form)
}

// RefreshToken rotates the credential's token pair
func (c *MercadoLivreClient) RefreshToken(ctx context.Context, cred integration.StoreCredential) (*integration.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	grant, err := c.requestToken(ctx, "RefreshToken", form)
	if err != nil {
		return nil, err
	}
	if grant.ExternalUserID == "" {
		grant.ExternalUserID = cred.ExternalUserID
	}
	return grant, nil
}

func (c *MercadoLivreClient) requestToken(ctx context.Context, operation string, form url.Values) (*integration.TokenGrant, error) {
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIBaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("mercadolivre: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.api.do(ctx, operation, req)
	if err != nil {
		return nil, err
	}

	var token mercadoLivreToken
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&token); err != nil || token.AccessToken == "" {
		return nil, fmt.Errorf("%w: mercadolivre %s: token response without access_token", integration.ErrPermanent, operation)
	}

	return &integration.TokenGrant{
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		ExpiresIn:      time.Duration(token.ExpiresIn) * time.Second,
		ExternalUserID: token.UserID.String(),
	}, nil
}

// get performs an authenticated GET and decodes the JSON object response
func (c *MercadoLivreClient) get(ctx context.Context, operation string, cred integration.StoreCredential, path string, query url.Values) (integration.Payload, error) {
	body, err := c.getRaw(ctx, operation, cred, path, query)
	if err != nil {
		return nil, err
	}
	return c.api.decodePayload(operation, body)
}

func (c *MercadoLivreClient) getRaw(ctx context.Context, operation string, cred integration.StoreCredential, path string, query url.Values) ([]byte, error) {
	target := c.config.APIBaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("mercadolivre: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")
	return c.api.do(ctx, operation, req)
}

// FetchOrder returns one order
func (c *MercadoLivreClient) FetchOrder(ctx context.Context, cred integration.StoreCredential, externalID string) (integration.Payload, error) {
	return c.get(ctx, "FetchOrder", cred, "/orders/"+url.PathEscape(externalID), nil)
}

// ListOrders returns a page of the seller's most recent orders
func (c *MercadoLivreClient) ListOrders(ctx context.Context, cred integration.StoreCredential, page integration.PageRequest) (*integration.Page, error) {
	q := url.Values{}
	q.Set("seller", cred.ExternalUserID)
	q.Set("sort", "date_desc")
	q.Set("offset", strconv.Itoa(page.Offset))
	q.Set("limit", strconv.Itoa(page.Limit))

	resp, err := c.get(ctx, "ListOrders", cred, "/orders/search", q)
	if err != nil {
		return nil, err
	}
	return offsetPage(objectsAt(resp, "results"), resp, page), nil
}

// FetchProduct returns one listing
func (c *MercadoLivreClient) FetchProduct(ctx context.Context, cred integration.StoreCredential, externalID string) (integration.Payload, error) {
	return c.get(ctx, "FetchProduct", cred, "/items/"+url.PathEscape(externalID), nil)
}

// ListProducts returns a page of the seller's listings. The search endpoint
// only yields ids, so listings are resolved with the /items multiget.
func (c *MercadoLivreClient) ListProducts(ctx context.Context, cred integration.StoreCredential, page integration.PageRequest) (*integration.Page, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(page.Offset))
	q.Set("limit", strconv.Itoa(page.Limit))

	resp, err := c.get(ctx, "ListProducts", cred, "/users/"+url.PathEscape(cred.ExternalUserID)+"/items/search", q)
	if err != nil {
		return nil, err
	}

	ids := stringsAt(resp, "results")
	items := make([]integration.Payload, 0, len(ids))
	for start := 0; start < len(ids); start += mercadoLivreMultigetLimit {
		end := min(start+mercadoLivreMultigetLimit, len(ids))
		batch, err := c.multigetItems(ctx, cred, ids[start:end])
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}

	result := offsetPage(items, resp, page)
	// a listing that failed in the multiget must not end pagination early
	result.Fetched = len(ids)
	result.HasMore = page.Offset+len(ids) < result.Total
	return result, nil
}

func (c *MercadoLivreClient) multigetItems(ctx context.Context, cred integration.StoreCredential, ids []string) ([]integration.Payload, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	body, err := c.getRaw(ctx, "ListProducts", cred, "/items", q)
	if err != nil {
		return nil, err
	}

	var entries []struct {
		Code int             `json:"code"`
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("%w: mercadolivre items multiget: %v", integration.ErrPermanent, err)
	}

	items := make([]integration.Payload, 0, len(entries))
	for _, entry := range entries {
		if entry.Code != http.StatusOK {
			continue
		}
		if p, err := integration.DecodePayload(entry.Body); err == nil {
			items = append(items, p)
		}
	}
	return items, nil
}

// FetchSupportItem returns a pre-sale question, or the post-sale message
// thread a message belongs to
func (c *MercadoLivreClient) FetchSupportItem(ctx context.Context, cred integration.StoreCredential, kind integration.SupportKind, externalID string) (integration.Payload, error) {
	if kind != integration.SupportKindMessage {
		q := url.Values{}
		q.Set("api_version", "4")
		return c.get(ctx, "FetchQuestion", cred, "/questions/"+url.PathEscape(externalID), q)
	}

	q := url.Values{}
	q.Set("tag", "post_sale")
	resp, err := c.get(ctx, "FetchMessage", cred, "/messages/"+url.PathEscape(externalID), q)
	if err != nil {
		return nil, err
	}
	// the endpoint wraps the message in {"messages": [...]}
	if messages := objectsAt(resp, "messages"); len(messages) > 0 {
		return messages[0], nil
	}
	return resp, nil
}

// ListSupportItems returns a page of the seller's questions, newest first
func (c *MercadoLivreClient) ListSupportItems(ctx context.Context, cred integration.StoreCredential, page integration.PageRequest) (*integration.Page, error) {
	q := url.Values{}
	q.Set("seller_id", cred.ExternalUserID)
	q.Set("api_version", "4")
	q.Set("sort_fields", "date_created")
	q.Set("sort_types", "DESC")
	q.Set("offset", strconv.Itoa(page.Offset))
	q.Set("limit", strconv.Itoa(page.Limit))

	resp, err := c.get(ctx, "ListQuestions", cred, "/questions/search", q)
	if err != nil {
		return nil, err
	}

	questions := objectsAt(resp, "questions")
	total, ok := intAt(resp, "total")
	if !ok {
		total = page.Offset + len(questions)
	}
	return &integration.Page{
		Items:   questions,
		Total:   total,
		HasMore: page.Offset+len(questions) < total,
	}, nil
}

// FetchShipment returns the shipment an order ships with
func (c *MercadoLivreClient) FetchShipment(ctx context.Context, cred integration.StoreCredential, shippingID string) (integration.Payload, error) {
	return c.get(ctx, "FetchShipment", cred, "/shipments/"+url.PathEscape(shippingID), nil)
}

// offsetPage builds a page from a response carrying {paging: {total}}
func offsetPage(items []integration.Payload, resp integration.Payload, page integration.PageRequest) *integration.Page {
	total, ok := intAt(resp, "paging", "total")
	if !ok {
		total = page.Offset + len(items)
	}
	return &integration.Page{
		Items:   items,
		Total:   total,
		HasMore: page.Offset+len(items) < total,
	}
}
