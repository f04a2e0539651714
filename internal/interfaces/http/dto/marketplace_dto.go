package dto

import "time"

// StoreQuery selects the store an operator request acts on
type StoreQuery struct {
	StoreID string `form:"storeId" binding:"required,uuid"`
}

// OrderURI addresses one canonical order
type OrderURI struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// CallbackQuery holds the OAuth redirect parameters
type CallbackQuery struct {
	Code   string `form:"code"`
	State  string `form:"state"`
	ShopID string `form:"shop_id"`
}

// JobResponse identifies a queued job
type JobResponse struct {
	JobID string `json:"jobId"`
}

// WebhookAck acknowledges a marketplace notification
type WebhookAck struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

// ConnectResponse carries where to send the seller to authorize
type ConnectResponse struct {
	Marketplace      string `json:"marketplace"`
	AuthorizationURL string `json:"authorizationUrl"`
}

// QueueStatsResponse counts jobs by state
type QueueStatsResponse struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// ShippingResponse is an order after shipping enrichment
type ShippingResponse struct {
	OrderID       string    `json:"orderId"`
	ExternalID    string    `json:"externalId"`
	ShippingID    string    `json:"shippingId,omitempty"`
	CustomerCity  string    `json:"customerCity,omitempty"`
	CustomerState string    `json:"customerState,omitempty"`
	CustomerZip   string    `json:"customerZip,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
