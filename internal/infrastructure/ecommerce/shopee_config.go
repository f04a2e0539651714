package ecommerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

const (
	// ShopeeProductionAPIURL is the production Open Platform endpoint
	ShopeeProductionAPIURL = "https://partner.shopeemobile.com"
	// ShopeeSandboxAPIURL is the test Open Platform endpoint
	ShopeeSandboxAPIURL = "https://partner.test-stable.shopeemobile.com"
)

// Errors for Shopee configuration
var (
	ErrShopeeConfigMissingPartnerID  = errors.New("shopee: partner id is required")
	ErrShopeeConfigMissingPartnerKey = errors.New("shopee: partner key is required")
)

// ShopeeConfig holds the partner credentials registered with Shopee Open Platform
type ShopeeConfig struct {
	PartnerID   int64
	PartnerKey  string
	RedirectURI string
	APIBaseURL  string
}

// Validate checks required fields and fills the endpoint default
func (c *ShopeeConfig) Validate() error {
	if c.PartnerID <= 0 {
		return ErrShopeeConfigMissingPartnerID
	}
	if c.PartnerKey == "" {
		return ErrShopeeConfigMissingPartnerKey
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = ShopeeProductionAPIURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	return nil
}

// Sign computes the v2 request signature:
// HMAC-SHA256(partner_key, partner_id + path + timestamp [+ access_token + shop_id]).
// Public and auth endpoints pass an empty token and shop id.
func (c *ShopeeConfig) Sign(path string, timestamp int64, accessToken, shopID string) string {
	var builder strings.Builder
	builder.WriteString(strconv.FormatInt(c.PartnerID, 10))
	builder.WriteString(path)
	builder.WriteString(strconv.FormatInt(timestamp, 10))
	builder.WriteString(accessToken)
	builder.WriteString(shopID)

	h := hmac.New(sha256.New, []byte(c.PartnerKey))
	h.Write([]byte(builder.String()))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyPush checks the Authorization header Shopee sends with push
// notifications: HMAC-SHA256(partner_key, callback_url + "|" + body).
func (c *ShopeeConfig) VerifyPush(callbackURL string, body []byte, signature string) bool {
	h := hmac.New(sha256.New, []byte(c.PartnerKey))
	h.Write([]byte(callbackURL + "|"))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
