package ecommerce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ordersync/backend/internal/domain/integration"
)

// Shopee push codes that refer to an order
const (
	shopeePushOrderStatus   = 3
	shopeePushTrackingNo    = 4
	shopeeOrderTopic        = "orders"
	shopeeUnknownTopicStyle = "push_%d"
)

// ShopeeAdapter maps Shopee Open Platform resources into canonical drafts
type ShopeeAdapter struct{}

// NewShopeeAdapter creates a Shopee adapter
func NewShopeeAdapter() *ShopeeAdapter {
	return &ShopeeAdapter{}
}

var _ integration.MarketplaceAdapter = (*ShopeeAdapter)(nil)

// Marketplace returns the marketplace this adapter maps
func (a *ShopeeAdapter) Marketplace() integration.Marketplace {
	return integration.MarketplaceShopee
}

// MapOrder maps one entry of get_order_detail's order_list
func (a *ShopeeAdapter) MapOrder(p integration.Payload) (*integration.OrderDraft, error) {
	externalID := stringAt(p, "order_sn")
	if externalID == "" {
		return nil, integration.NewMappingError(a.Marketplace(), "order", "order_sn")
	}

	addr := objectAt(p, "recipient_address")
	draft := &integration.OrderDraft{
		Marketplace:   a.Marketplace(),
		ExternalID:    externalID,
		Status:        MapShopeeOrderStatus(stringAt(p, "order_status")),
		Total:         decimalAt(p, "total_amount"),
		Currency:      stringAt(p, "currency"),
		CustomerName:  firstNonEmpty(stringAt(addr, "name"), stringAt(p, "buyer_username")),
		CustomerEmail: integration.PlaceholderEmail(a.Marketplace(), externalID),
		CustomerPhone: stringAt(addr, "phone"),
		CustomerCity:  stringAt(addr, "city"),
		CustomerState: integration.ExtractStateCode(stringAt(addr, "state")),
		CustomerZip:   stringAt(addr, "zipcode"),
		PlacedAt:      unixAt(p, "create_time"),
		RawPayload:    p,
	}
	if packages := objectsAt(p, "package_list"); len(packages) > 0 {
		draft.ShippingID = stringAt(packages[0], "package_number")
	}

	for _, line := range objectsAt(p, "item_list") {
		quantity, _ := intAt(line, "model_quantity_purchased")
		price := decimalAt(line, "model_discounted_price")
		if price.IsZero() {
			price = decimalAt(line, "model_original_price")
		}
		draft.Items = append(draft.Items, integration.OrderItem{
			ExternalItemID: stringAt(line, "item_id"),
			SKU:            firstNonEmpty(stringAt(line, "model_sku"), stringAt(line, "item_sku")),
			Title:          stringAt(line, "item_name"),
			Quantity:       quantity,
			UnitPrice:      price,
		})
	}

	return draft, nil
}

// MapProduct maps one entry of get_item_base_info's item_list
func (a *ShopeeAdapter) MapProduct(p integration.Payload) (*integration.ProductDraft, error) {
	externalID := stringAt(p, "item_id")
	if externalID == "" {
		return nil, integration.NewMappingError(a.Marketplace(), "product", "item_id")
	}

	sku := stringAt(p, "item_sku")
	if sku == "" {
		sku = placeholderSKU(a.Marketplace(), externalID)
	}

	draft := &integration.ProductDraft{
		Marketplace: a.Marketplace(),
		ExternalID:  externalID,
		SKU:         sku,
		Name:        stringAt(p, "item_name"),
		Description: stringAt(p, "description"),
		Status:      MapShopeeItemStatus(stringAt(p, "item_status")),
		Stock:       intPtrAt(p, "stock_info_v2", "summary_info", "total_available_stock"),
		RawPayload:  p,
	}
	if prices := objectsAt(p, "price_info"); len(prices) > 0 {
		draft.Price = decimalAt(prices[0], "current_price")
		draft.Currency = stringAt(prices[0], "currency")
	}
	if images := stringsAt(p, "image", "image_url_list"); len(images) > 0 {
		draft.ImageURL = images[0]
	}
	return draft, nil
}

// MapSupportItem is not supported for Shopee
func (a *ShopeeAdapter) MapSupportItem(integration.Payload) (*integration.SupportTicketDraft, error) {
	return nil, fmt.Errorf("shopee support items: %w", integration.ErrCapabilityUnsupported)
}

// MapShipment reads the recipient address embedded in an order detail
func (a *ShopeeAdapter) MapShipment(p integration.Payload) (*integration.ShippingInfo, error) {
	addr := objectAt(p, "recipient_address")
	if addr == nil {
		return nil, integration.NewMappingError(a.Marketplace(), "shipment", "recipient_address")
	}
	return &integration.ShippingInfo{
		City:  stringAt(addr, "city"),
		State: integration.ExtractStateCode(stringAt(addr, "state")),
		Zip:   stringAt(addr, "zipcode"),
	}, nil
}

// shopeePush is the body of a Shopee push notification
type shopeePush struct {
	ShopID    json.Number `json:"shop_id"`
	Code      int         `json:"code"`
	Timestamp int64       `json:"timestamp"`
	Data      struct {
		OrderSN    string `json:"ordersn"`
		Status     string `json:"status"`
		UpdateTime int64  `json:"update_time"`
	} `json:"data"`
}

// ParseNotification normalizes a Shopee push. Order status and tracking
// pushes become "orders" notifications addressed by order_sn; other push
// codes keep a topic that classifies as unknown.
func (a *ShopeeAdapter) ParseNotification(body []byte) (*integration.Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var push shopeePush
	if err := dec.Decode(&push); err != nil {
		return nil, fmt.Errorf("%w: shopee push: %v", integration.ErrPermanent, err)
	}

	n := &integration.Notification{
		Topic:  fmt.Sprintf(shopeeUnknownTopicStyle, push.Code),
		UserID: push.ShopID.String(),
		SentAt: unixAt(integration.Payload{"ts": push.Timestamp}, "ts"),
	}
	if push.Code == shopeePushOrderStatus || push.Code == shopeePushTrackingNo {
		n.Topic = shopeeOrderTopic
		n.Resource = push.Data.OrderSN
	}
	if n.Resource != "" && push.Timestamp > 0 {
		// one id per state change, so redeliveries of the same push dedupe
		n.ID = strings.Join([]string{n.UserID, n.Resource, push.Data.Status, fmt.Sprint(push.Timestamp)}, ":")
	}
	return n, nil
}

// MapShopeeOrderStatus maps a Shopee order_status
func MapShopeeOrderStatus(status string) integration.OrderStatus {
	switch strings.ToUpper(status) {
	case "UNPAID":
		return integration.OrderStatusPending
	case "READY_TO_SHIP", "PROCESSED":
		return integration.OrderStatusPaid
	case "SHIPPED", "TO_CONFIRM_RECEIVE":
		return integration.OrderStatusShipped
	case "COMPLETED":
		return integration.OrderStatusDelivered
	case "CANCELLED", "IN_CANCEL":
		return integration.OrderStatusCancelled
	case "TO_RETURN":
		return integration.OrderStatusRefunded
	default:
		return ""
	}
}

// MapShopeeItemStatus maps a Shopee item_status
func MapShopeeItemStatus(status string) integration.ProductStatus {
	switch strings.ToUpper(status) {
	case "NORMAL":
		return integration.ProductStatusActive
	case "UNLIST", "BANNED", "REVIEWING":
		return integration.ProductStatusPaused
	case "SELLER_DELETE", "SHOPEE_DELETE", "DELETED":
		return integration.ProductStatusDeleted
	default:
		return ""
	}
}
