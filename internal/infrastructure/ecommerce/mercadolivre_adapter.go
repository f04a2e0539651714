package ecommerce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ordersync/backend/internal/domain/integration"
)

// MercadoLivreAdapter maps Mercado Livre API resources into canonical drafts
type MercadoLivreAdapter struct{}

// NewMercadoLivreAdapter creates a Mercado Livre adapter
func NewMercadoLivreAdapter() *MercadoLivreAdapter {
	return &MercadoLivreAdapter{}
}

var _ integration.MarketplaceAdapter = (*MercadoLivreAdapter)(nil)

// Marketplace returns the marketplace this adapter maps
func (a *MercadoLivreAdapter) Marketplace() integration.Marketplace {
	return integration.MarketplaceMercadoLivre
}

// MapOrder maps an /orders/{id} resource
func (a *MercadoLivreAdapter) MapOrder(p integration.Payload) (*integration.OrderDraft, error) {
	externalID := stringAt(p, "id")
	if externalID == "" {
		return nil, integration.NewMappingError(a.Marketplace(), "order", "id")
	}

	buyer := objectAt(p, "buyer")
	email := stringAt(buyer, "email")
	if email == "" {
		email = integration.PlaceholderEmail(a.Marketplace(), externalID)
	}

	name := strings.TrimSpace(stringAt(buyer, "first_name") + " " + stringAt(buyer, "last_name"))

	draft := &integration.OrderDraft{
		Marketplace:      a.Marketplace(),
		ExternalID:       externalID,
		PackID:           stringAt(p, "pack_id"),
		ShippingID:       stringAt(p, "shipping", "id"),
		Status:           MapMercadoLivreOrderStatus(stringAt(p, "status")),
		Total:            decimalAt(p, "total_amount"),
		Currency:         stringAt(p, "currency_id"),
		CustomerName:     firstNonEmpty(name, stringAt(buyer, "nickname")),
		CustomerEmail:    email,
		CustomerPhone:    stringAt(buyer, "phone", "area_code") + stringAt(buyer, "phone", "number"),
		CustomerDocument: firstNonEmpty(stringAt(buyer, "billing_info", "doc_number"), stringAt(p, "buyer_billing_info", "doc_number")),
		PlacedAt:         timeAt(p, "date_created"),
		RawPayload:       p,
	}

	for _, line := range objectsAt(p, "order_items") {
		quantity, _ := intAt(line, "quantity")
		draft.Items = append(draft.Items, integration.OrderItem{
			ExternalItemID: stringAt(line, "item", "id"),
			SKU:            stringAt(line, "item", "seller_sku"),
			Title:          stringAt(line, "item", "title"),
			Quantity:       quantity,
			UnitPrice:      decimalAt(line, "unit_price"),
		})
	}

	return draft, nil
}

// MapProduct maps an /items/{id} resource
func (a *MercadoLivreAdapter) MapProduct(p integration.Payload) (*integration.ProductDraft, error) {
	externalID := stringAt(p, "id")
	if externalID == "" {
		return nil, integration.NewMappingError(a.Marketplace(), "product", "id")
	}

	sku := firstNonEmpty(stringAt(p, "seller_custom_field"), mercadoLivreSKUAttribute(p))
	if sku == "" {
		sku = placeholderSKU(a.Marketplace(), externalID)
	}

	image := stringAt(p, "thumbnail")
	if pictures := objectsAt(p, "pictures"); len(pictures) > 0 {
		image = firstNonEmpty(stringAt(pictures[0], "secure_url"), stringAt(pictures[0], "url"), image)
	}

	return &integration.ProductDraft{
		Marketplace: a.Marketplace(),
		ExternalID:  externalID,
		SKU:         sku,
		Name:        stringAt(p, "title"),
		Price:       decimalAt(p, "price"),
		Currency:    stringAt(p, "currency_id"),
		Stock:       intPtrAt(p, "available_quantity"),
		Status:      MapMercadoLivreItemStatus(stringAt(p, "status"), stringsAt(p, "sub_status")),
		Permalink:   stringAt(p, "permalink"),
		ImageURL:    image,
		RawPayload:  p,
	}, nil
}

func mercadoLivreSKUAttribute(p integration.Payload) string {
	for _, attr := range objectsAt(p, "attributes") {
		if stringAt(attr, "id") == "SELLER_SKU" {
			return stringAt(attr, "value_name")
		}
	}
	return ""
}

// MapSupportItem maps either a question or a post-sale message.
// Messages are recognized by their message_resources block.
func (a *MercadoLivreAdapter) MapSupportItem(p integration.Payload) (*integration.SupportTicketDraft, error) {
	if _, isMessage := lookup(p, "message_resources").([]any); isMessage {
		return a.mapMessage(p)
	}
	return a.mapQuestion(p)
}

func (a *MercadoLivreAdapter) mapQuestion(p integration.Payload) (*integration.SupportTicketDraft, error) {
	externalID := stringAt(p, "id")
	if externalID == "" {
		return nil, integration.NewMappingError(a.Marketplace(), "question", "id")
	}

	status := MapMercadoLivreQuestionStatus(stringAt(p, "status"))
	var canAnswer *bool
	if status != "" {
		v := status == integration.SupportStatusUnanswered
		canAnswer = &v
	}

	return &integration.SupportTicketDraft{
		Marketplace:    a.Marketplace(),
		Kind:           integration.SupportKindQuestion,
		ExternalID:     externalID,
		ItemExternalID: stringAt(p, "item_id"),
		BuyerID:        firstNonEmpty(stringAt(p, "from", "id"), stringAt(p, "from")),
		BuyerName:      stringAt(p, "from", "nickname"),
		Text:           stringAt(p, "text"),
		AnswerText:     stringAt(p, "answer", "text"),
		Status:         status,
		CanAnswer:      canAnswer,
		QuestionDate:   timeAt(p, "date_created"),
		AnsweredAt:     timeAt(p, "answer", "date_created"),
		RawPayload:     p,
	}, nil
}

func (a *MercadoLivreAdapter) mapMessage(p integration.Payload) (*integration.SupportTicketDraft, error) {
	var packID, orderID string
	for _, res := range objectsAt(p, "message_resources") {
		switch stringAt(res, "name") {
		case "packs":
			packID = stringAt(res, "id")
		case "orders":
			orderID = stringAt(res, "id")
		}
	}
	// orders without a pack are addressed by their own id
	packID = firstNonEmpty(packID, orderID)
	if packID == "" {
		return nil, integration.NewMappingError(a.Marketplace(), "message", "message_resources")
	}

	return &integration.SupportTicketDraft{
		Marketplace:     a.Marketplace(),
		Kind:            integration.SupportKindMessage,
		ExternalID:      stringAt(p, "id"),
		PackID:          packID,
		OrderExternalID: orderID,
		BuyerID:         stringAt(p, "from", "user_id"),
		BuyerName:       stringAt(p, "from", "name"),
		Text:            firstNonEmpty(stringAt(p, "text", "plain"), stringAt(p, "text")),
		Status:          integration.SupportStatusUnanswered,
		QuestionDate:    firstTime(timeAt(p, "message_date", "created"), timeAt(p, "date_created")),
		RawPayload:      p,
	}, nil
}

// MapShipment maps a /shipments/{id} resource
func (a *MercadoLivreAdapter) MapShipment(p integration.Payload) (*integration.ShippingInfo, error) {
	addr := objectAt(p, "receiver_address")
	if addr == nil {
		return nil, integration.NewMappingError(a.Marketplace(), "shipment", "receiver_address")
	}
	return &integration.ShippingInfo{
		City:  stringAt(addr, "city", "name"),
		State: integration.ExtractStateCode(firstNonEmpty(stringAt(addr, "state", "id"), stringAt(addr, "state", "name"))),
		Zip:   stringAt(addr, "zip_code"),
	}, nil
}

// mercadoLivreNotification is the JSON body Mercado Livre posts to the callback URL
type mercadoLivreNotification struct {
	ID            string      `json:"_id"`
	Resource      string      `json:"resource"`
	UserID        json.Number `json:"user_id"`
	Topic         string      `json:"topic"`
	ApplicationID json.Number `json:"application_id"`
	Attempts      int         `json:"attempts"`
	Sent          string      `json:"sent"`
}

// ParseNotification decodes a Mercado Livre notification body
func (a *MercadoLivreAdapter) ParseNotification(body []byte) (*integration.Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw mercadoLivreNotification
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: mercadolivre notification: %v", integration.ErrPermanent, err)
	}

	return &integration.Notification{
		ID:            raw.ID,
		Topic:         strings.TrimSpace(raw.Topic),
		Resource:      strings.TrimSpace(raw.Resource),
		UserID:        raw.UserID.String(),
		ApplicationID: raw.ApplicationID.String(),
		Attempts:      raw.Attempts,
		SentAt:        timeAt(integration.Payload{"sent": raw.Sent}, "sent"),
	}, nil
}

// MapMercadoLivreOrderStatus maps a Mercado Livre order status
func MapMercadoLivreOrderStatus(status string) integration.OrderStatus {
	switch strings.ToLower(status) {
	case "confirmed", "payment_required", "payment_in_process":
		return integration.OrderStatusPending
	case "paid", "partially_paid":
		return integration.OrderStatusPaid
	case "shipped":
		return integration.OrderStatusShipped
	case "delivered":
		return integration.OrderStatusDelivered
	case "cancelled", "invalid":
		return integration.OrderStatusCancelled
	case "partially_refunded":
		return integration.OrderStatusRefunded
	default:
		return ""
	}
}

// MapMercadoLivreItemStatus maps a listing status. Closed listings with a
// "deleted" sub status were removed by the seller.
func MapMercadoLivreItemStatus(status string, subStatus []string) integration.ProductStatus {
	switch strings.ToLower(status) {
	case "active":
		return integration.ProductStatusActive
	case "paused", "under_review", "inactive":
		return integration.ProductStatusPaused
	case "closed":
		for _, s := range subStatus {
			if strings.EqualFold(s, "deleted") {
				return integration.ProductStatusDeleted
			}
		}
		return integration.ProductStatusClosed
	default:
		return ""
	}
}

// MapMercadoLivreQuestionStatus maps a question status
func MapMercadoLivreQuestionStatus(status string) integration.SupportStatus {
	switch strings.ToUpper(status) {
	case "UNANSWERED":
		return integration.SupportStatusUnanswered
	case "ANSWERED":
		return integration.SupportStatusAnswered
	case "CLOSED_UNANSWERED", "UNDER_REVIEW", "BANNED", "DELETED", "DISABLED":
		return integration.SupportStatusClosed
	default:
		return ""
	}
}

func firstTime(values ...*time.Time) *time.Time {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
