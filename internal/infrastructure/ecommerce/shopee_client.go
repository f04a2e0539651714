package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ordersync/backend/internal/domain/integration"
)

const (
	// shopeeOrderWindow is the widest create_time range get_order_list accepts
	shopeeOrderWindow = 15 * 24 * time.Hour
	// shopeeMaxPageSize is the largest page Shopee list endpoints return
	shopeeMaxPageSize = 100
	// shopeeDetailBatch is the maximum ids per detail call
	shopeeDetailBatch = 50
)

// ShopeeClient implements integration.MarketplaceClient for Shopee Open Platform v2.
// Support conversations and shipment lookups are not offered through this API
// and report integration.ErrCapabilityUnsupported.
type ShopeeClient struct {
	config ShopeeConfig
	api    *apiClient
	now    func() time.Time
}

// NewShopeeClient creates a client with the given configuration
func NewShopeeClient(config ShopeeConfig, opts HTTPOptions) (*ShopeeClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ShopeeClient{
		config: config,
		api:    newAPIClient(integration.MarketplaceShopee, opts),
		now:    time.Now,
	}, nil
}

var _ integration.MarketplaceClient = (*ShopeeClient)(nil)

// Marketplace returns the marketplace this client talks to
func (c *ShopeeClient) Marketplace() integration.Marketplace {
	return integration.MarketplaceShopee
}

// signedURL builds the common query every v2 call carries
func (c *ShopeeClient) signedURL(path string, cred *integration.StoreCredential, query url.Values) string {
	ts := c.now().Unix()
	if query == nil {
		query = url.Values{}
	}
	token, shopID := "", ""
	if cred != nil {
		token, shopID = cred.AccessToken, cred.ExternalUserID
		query.Set("access_token", token)
		query.Set("shop_id", shopID)
	}
	query.Set("partner_id", strconv.FormatInt(c.config.PartnerID, 10))
	query.Set("timestamp", strconv.FormatInt(ts, 10))
	query.Set("sign", c.config.Sign(path, ts, token, shopID))
	return c.config.APIBaseURL + path + "?" + query.Encode()
}

// AuthorizationURL returns the shop authorization page. Shopee does not echo
// a state parameter, so state travels inside the redirect URL.
func (c *ShopeeClient) AuthorizationURL(state string) string {
	redirect := c.config.RedirectURI
	if state != "" {
		sep := "?"
		if strings.Contains(redirect, "?") {
			sep = "&"
		}
		redirect += sep + "state=" + url.QueryEscape(state)
	}
	q := url.Values{}
	q.Set("redirect", redirect)
	return c.signedURL("/api/v2/shop/auth_partner", nil, q)
}

// ExchangeCode trades the code and shop_id of the redirect for a token pair
func (c *ShopeeClient) ExchangeCode(ctx context.Context, params integration.CallbackParams) (*integration.TokenGrant, error) {
	shopID, err := strconv.ParseInt(params.ShopID, 10, 64)
	if err != nil || shopID <= 0 {
		return nil, fmt.Errorf("%w: shopee callback without shop_id", integration.ErrInvalidCredential)
	}
	body := map[string]any{
		"code":       params.Code,
		"shop_id":    shopID,
		"partner_id": c.config.PartnerID,
	}
	return c.requestToken(ctx, "ExchangeCode", "/api/v2/auth/token/get", body, params.ShopID)
}

// RefreshToken rotates the credential's token pair
func (c *ShopeeClient) RefreshToken(ctx context.Context, cred integration.StoreCredential) (*integration.TokenGrant, error) {
	shopID, err := strconv.ParseInt(cred.ExternalUserID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: shopee shop id %q", integration.ErrInvalidCredential, cred.ExternalUserID)
	}
	body := map[string]any{
		"refresh_token": cred.RefreshToken,
		"shop_id":       shopID,
		"partner_id":    c.config.PartnerID,
	}
	return c.requestToken(ctx, "RefreshToken", "/api/v2/auth/access_token/get", body, cred.ExternalUserID)
}

func (c *ShopeeClient) requestToken(ctx context.Context, operation, path string, payload map[string]any, shopID string) (*integration.TokenGrant, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("shopee: failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.signedURL(path, nil, nil), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("shopee: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.send(ctx, operation, req)
	if err != nil {
		return nil, err
	}

	access := stringAt(resp, "access_token")
	if access == "" {
		return nil, fmt.Errorf("%w: shopee %s: token response without access_token", integration.ErrPermanent, operation)
	}
	expireIn, _ := intAt(resp, "expire_in")
	return &integration.TokenGrant{
		AccessToken:    access,
		RefreshToken:   stringAt(resp, "refresh_token"),
		ExpiresIn:      time.Duration(expireIn) * time.Second,
		ExternalUserID: firstNonEmpty(stringAt(resp, "shop_id"), shopID),
	}, nil
}

// send performs the request and turns an "error" field in a 2xx body into
// a MarketplaceAPIError
func (c *ShopeeClient) send(ctx context.Context, operation string, req *http.Request) (integration.Payload, error) {
	body, err := c.api.do(ctx, operation, req)
	if err != nil {
		return nil, err
	}
	resp, err := c.api.decodePayload(operation, body)
	if err != nil {
		return nil, err
	}
	if code := stringAt(resp, "error"); code != "" {
		return nil, c.api.apiError(operation, shopeeErrorStatus(code), body, nil)
	}
	return resp, nil
}

func (c *ShopeeClient) get(ctx context.Context, operation string, cred integration.StoreCredential, path string, query url.Values) (integration.Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.signedURL(path, &cred, query), nil)
	if err != nil {
		return nil, fmt.Errorf("shopee: failed to create request: %w", err)
	}
	return c.send(ctx, operation, req)
}

// shopeeErrorStatus maps Shopee error codes onto HTTP semantics so retry
// classification works the same for both marketplaces
func shopeeErrorStatus(code string) int {
	switch {
	case code == "error_auth", code == "invalid_access_token", strings.Contains(code, "token"):
		return http.StatusUnauthorized
	case code == "error_not_found", strings.HasSuffix(code, "not_exist"):
		return http.StatusNotFound
	case code == "error_busy", code == "error_too_many_request", strings.Contains(code, "rate_limit"):
		return http.StatusTooManyRequests
	case code == "error_server", code == "error_inner", code == "error_network":
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// FetchOrder returns one order by order_sn
func (c *ShopeeClient) FetchOrder(ctx context.Context, cred integration.StoreCredential, externalID string) (integration.Payload, error) {
	orders, err := c.orderDetails(ctx, cred, []string{externalID})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, c.api.apiError("FetchOrder", http.StatusNotFound, nil, nil)
	}
	return orders[0], nil
}

// ListOrders returns a page of orders created within the last 15 days.
// Paging follows Shopee's cursor.
func (c *ShopeeClient) ListOrders(ctx context.Context, cred integration.StoreCredential, page integration.PageRequest) (*integration.Page, error) {
	now := c.now()
	q := url.Values{}
	q.Set("time_range_field", "create_time")
	q.Set("time_from", strconv.FormatInt(now.Add(-shopeeOrderWindow).Unix(), 10))
	q.Set("time_to", strconv.FormatInt(now.Unix(), 10))
	q.Set("page_size", strconv.Itoa(min(max(page.Limit, 1), shopeeMaxPageSize)))
	q.Set("cursor", page.Cursor)

	resp, err := c.get(ctx, "ListOrders", cred, "/api/v2/order/get_order_list", q)
	if err != nil {
		return nil, err
	}

	listed := objectsAt(resp, "response", "order_list")
	var ids []string
	for _, o := range listed {
		if sn := stringAt(o, "order_sn"); sn != "" {
			ids = append(ids, sn)
		}
	}
	orders, err := c.orderDetails(ctx, cred, ids)
	if err != nil {
		return nil, err
	}

	more := lookup(resp, "response", "more") == true
	return &integration.Page{
		Items:      orders,
		Fetched:    len(listed),
		Total:      page.Offset + len(listed),
		HasMore:    more,
		NextCursor: stringAt(resp, "response", "next_cursor"),
	}, nil
}

func (c *ShopeeClient) orderDetails(ctx context.Context, cred integration.StoreCredential, ids []string) ([]integration.Payload, error) {
	orders := make([]integration.Payload, 0, len(ids))
	for start := 0; start < len(ids); start += shopeeDetailBatch {
		end := min(start+shopeeDetailBatch, len(ids))
		q := url.Values{}
		q.Set("order_sn_list", strings.Join(ids[start:end], ","))
		q.Set("response_optional_fields", "buyer_user_id,buyer_username,recipient_address,item_list,total_amount,pay_time")
		resp, err := c.get(ctx, "FetchOrder", cred, "/api/v2/order/get_order_detail", q)
		if err != nil {
			return nil, err
		}
		orders = append(orders, objectsAt(resp, "response", "order_list")...)
	}
	return orders, nil
}

// FetchProduct returns one item's base info
func (c *ShopeeClient) FetchProduct(ctx context.Context, cred integration.StoreCredential, externalID string) (integration.Payload, error) {
	items, err := c.itemDetails(ctx, cred, []string{externalID})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, c.api.apiError("FetchProduct", http.StatusNotFound, nil, nil)
	}
	return items[0], nil
}

// ListProducts returns a page of the shop's listed and unlisted items
func (c *ShopeeClient) ListProducts(ctx context.Context, cred integration.StoreCredential, page integration.PageRequest) (*integration.Page, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(page.Offset))
	q.Set("page_size", strconv.Itoa(min(max(page.Limit, 1), shopeeMaxPageSize)))
	q.Add("item_status", "NORMAL")
	q.Add("item_status", "UNLIST")

	resp, err := c.get(ctx, "ListProducts", cred, "/api/v2/product/get_item_list", q)
	if err != nil {
		return nil, err
	}

	listed := objectsAt(resp, "response", "item")
	var ids []string
	for _, it := range listed {
		if id := stringAt(it, "item_id"); id != "" {
			ids = append(ids, id)
		}
	}
	items, err := c.itemDetails(ctx, cred, ids)
	if err != nil {
		return nil, err
	}

	total, ok := intAt(resp, "response", "total_count")
	if !ok {
		total = page.Offset + len(listed)
	}
	return &integration.Page{
		Items:   items,
		Fetched: len(listed),
		Total:   total,
		HasMore: lookup(resp, "response", "has_next_page") == true,
	}, nil
}

func (c *ShopeeClient) itemDetails(ctx context.Context, cred integration.StoreCredential, ids []string) ([]integration.Payload, error) {
	items := make([]integration.Payload, 0, len(ids))
	for start := 0; start < len(ids); start += shopeeDetailBatch {
		end := min(start+shopeeDetailBatch, len(ids))
		q := url.Values{}
		q.Set("item_id_list", strings.Join(ids[start:end], ","))
		resp, err := c.get(ctx, "FetchProduct", cred, "/api/v2/product/get_item_base_info", q)
		if err != nil {
			return nil, err
		}
		items = append(items, objectsAt(resp, "response", "item_list")...)
	}
	return items, nil
}

// FetchSupportItem is not offered by the Shopee partner API
func (c *ShopeeClient) FetchSupportItem(context.Context, integration.StoreCredential, integration.SupportKind, string) (integration.Payload, error) {
	return nil, fmt.Errorf("shopee support items: %w", integration.ErrCapabilityUnsupported)
}

// ListSupportItems is not offered by the Shopee partner API
func (c *ShopeeClient) ListSupportItems(context.Context, integration.StoreCredential, integration.PageRequest) (*integration.Page, error) {
	return nil, fmt.Errorf("shopee support items: %w", integration.ErrCapabilityUnsupported)
}

// FetchShipment is not needed: Shopee order details carry recipient_address
func (c *ShopeeClient) FetchShipment(context.Context, integration.StoreCredential, string) (integration.Payload, error) {
	return nil, fmt.Errorf("shopee shipments: %w", integration.ErrCapabilityUnsupported)
}
