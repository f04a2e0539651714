package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/backend/internal/domain/integration"
)

func newTestMercadoLivreClient(t *testing.T, handler http.HandlerFunc) *MercadoLivreClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewMercadoLivreClient(MercadoLivreConfig{
		ClientID:     "123456",
		ClientSecret: "secret",
		RedirectURI:  "https://oms.example.com/api/v1/integrations/mercadolivre/callback",
		APIBaseURL:   server.URL,
	}, HTTPOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

var testCredential = integration.StoreCredential{
	ExternalUserID: "123456789",
	AccessToken:    "APP_USR-token",
	RefreshToken:   "TG-refresh",
	ExpiresAt:      time.Now().Add(6 * time.Hour),
}

func TestMercadoLivreConfig_Validate(t *testing.T) {
	cfg := MercadoLivreConfig{ClientID: "1", ClientSecret: "s"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, MercadoLivreProductionAPIURL, cfg.APIBaseURL)
	assert.Equal(t, MercadoLivreAuthURL, cfg.AuthURL)

	assert.ErrorIs(t, (&MercadoLivreConfig{ClientSecret: "s"}).Validate(), ErrMercadoLivreMissingClientID)
	assert.ErrorIs(t, (&MercadoLivreConfig{ClientID: "1"}).Validate(), ErrMercadoLivreMissingClientSecret)
}

func TestMercadoLivreClient_AuthorizationURL(t *testing.T) {
	client := newTestMercadoLivreClient(t, func(w http.ResponseWriter, r *http.Request) {})

	u, err := url.Parse(client.AuthorizationURL("eyJ1c2VySWQiOiJ1MSJ9"))
	require.NoError(t, err)
	assert.Equal(t, "auth.mercadolivre.com.br", u.Host)
	assert.Equal(t, "code", u.Query().Get("response_type"))
	assert.Equal(t, "123456", u.Query().Get("client_id"))
	assert.Equal(t, "eyJ1c2VySWQiOiJ1MSJ9", u.Query().Get("state"))
}

func TestMercadoLivreClient_Tokens(t *testing.T) {
	t.Run("exchange code", func(t *testing.T) {
		client := newTestMercadoLivreClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/oauth/token", r.URL.Path)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
			assert.Equal(t, "TG-code", r.PostForm.Get("code"))
			assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
			fmt.Fprint(w, `{"access_token":"APP_USR-new","token_type":"Bearer","expires_in":21600,"user_id":123456789,"refresh_token":"TG-new"}`)
		})

		grant, err := client.ExchangeCode(context.Background(), integration.CallbackParams{Code: "TG-code"})
		require.NoError(t, err)
		assert.Equal(t, "APP_USR-new", grant.AccessToken)
		assert.Equal(t, "TG-new", grant.RefreshToken)
		assert.Equal(t, 6*time.Hour, grant.ExpiresIn)
		assert.Equal(t, "123456789", grant.ExternalUserID)
	})

	t.Run("refresh rejected", func(t *testing.T) {
		client := newTestMercadoLivreClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant","message":"Error validating grant"}`)
		})

		_, err := client.RefreshToken(context.Background(), testCredential)
		var apiErr *integration.MarketplaceAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Contains(t, apiErr.Body, "invalid_grant")
		assert.True(t, integration.IsPermanent(err))
	})

	t.Run("response without token", func(t *testing.T) {
		client := newTestMercadoLivreClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{}`)
		})
		_, err := client.RefreshToken(context.Background(), testCredential)
		assert.ErrorIs(t, err, integration.ErrPermanent)
	})
}

func TestMercadoLivreClient_ListOrders(t *testing.T) {
	client := newTestMercadoLivreClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/search", r.URL.Path)
		assert.Equal(t, "Bearer APP_USR-token", r.Header.Get("Authorization"))
		assert.Equal(t, "123456789", r.URL.Query().Get("seller"))
		assert.Equal(t, "50", r.URL.Query().Get("offset"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"results":[{"id":1},{"id":2}],"paging":{"total":120,"offset":50,"limit":50}}`)
	})

	page, err := client.ListOrders(context.Background(), testCredential, integration.PageRequest{Offset: 50, Limit: 50})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 120, page.Total)
	assert.True(t, page.HasMore)
}

func TestMercadoLivreClient_ListProducts(t *testing.T) {
	client := newTestMercadoLivreClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/123456789/items/search":
			fmt.Fprint(w, `{"results":["MLB1","MLB2","MLB3"],"paging":{"total":3}}`)
		case "/items":
			assert.Equal(t, "MLB1,MLB2,MLB3", r.URL.Query().Get("ids"))
			fmt.Fprint(w, `[
				{"code":200,"body":{"id":"MLB1","status":"active"}},
				{"code":404,"body":{"message":"not found"}},
				{"code":200,"body":{"id":"MLB3","status":"paused"}}
			]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	page, err := client.ListProducts(context.Background(), testCredential, integration.PageRequest{Limit: 50})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "MLB3", stringAt(page.Items[1], "id"))
	assert.False(t, page.HasMore)
}

func TestMercadoLivreClient_ListProductsCountsUnfetchedListings(t *testing.T) {
	client := newTestMercadoLivreClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/123456789/items/search":
			assert.Equal(t, "0", r.URL.Query().Get("offset"))
			fmt.Fprint(w, `{"results":["MLB1","MLB2","MLB3"],"paging":{"total":9}}`)
		case "/items":
			fmt.Fprint(w, `[
				{"code":200,"body":{"id":"MLB1"}},
				{"code":404,"body":{"message":"not found"}},
				{"code":200,"body":{"id":"MLB3"}}
			]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	page, err := client.ListProducts(context.Background(), testCredential, integration.PageRequest{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Fetched)
	assert.Equal(t, 3, page.Consumed())
	assert.Equal(t, 9, page.Total)
	assert.True(t, page.HasMore)
}

func TestMercadoLivreClient_FetchSupportItem(t *testing.T) {
	client := newTestMercadoLivreClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/questions/"):
			assert.Equal(t, "4", r.URL.Query().Get("api_version"))
			fmt.Fprint(w, `{"id":987654,"status":"UNANSWERED","text":"Tem azul?"}`)
		case strings.HasPrefix(r.URL.Path, "/messages/"):
			assert.Equal(t, "post_sale", r.URL.Query().Get("tag"))
			fmt.Fprint(w, `{"messages":[{"id":"abc","message_resources":[{"id":"99","name":"packs"}]}]}`)
		}
	})

	q, err := client.FetchSupportItem(context.Background(), testCredential, integration.SupportKindQuestion, "987654")
	require.NoError(t, err)
	assert.Equal(t, "987654", stringAt(q, "id"))

	m, err := client.FetchSupportItem(context.Background(), testCredential, integration.SupportKindMessage, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", stringAt(m, "id"))
}

func TestMercadoLivreClient_Errors(t *testing.T) {
	t.Run("not found is permanent", func(t *testing.T) {
		client := newTestMercadoLivreClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		_, err := client.FetchOrder(context.Background(), testCredential, "1")
		var apiErr *integration.MarketplaceAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.True(t, apiErr.IsNotFound())
		assert.Equal(t, "FetchOrder", apiErr.Operation)
		assert.False(t, integration.IsRetryable(err))
	})

	t.Run("server error is retryable", func(t *testing.T) {
		client := newTestMercadoLivreClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, strings.Repeat("x", 2*maxErrorBody))
		})
		_, err := client.FetchShipment(context.Background(), testCredential, "1")
		var apiErr *integration.MarketplaceAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Len(t, apiErr.Body, maxErrorBody)
		assert.True(t, integration.IsRetryable(err))
	})

	t.Run("cancelled context", func(t *testing.T) {
		client := newTestMercadoLivreClient(t, func(w http.ResponseWriter, r *http.Request) {})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := client.FetchProduct(ctx, testCredential, "MLB1")
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
