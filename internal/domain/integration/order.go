package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeOrder is the aggregate type for order events
const AggregateTypeOrder = "Order"

// OrderStatus is the canonical order status
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// IsValid returns true if the status is known
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation
func (s OrderStatus) String() string {
	return string(s)
}

// IsFinal returns true if no further transitions are expected
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// OrderItem is a line of an order
type OrderItem struct {
	ExternalItemID string          `json:"external_item_id"`
	SKU            string          `json:"sku,omitempty"`
	Title          string          `json:"title"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

func itemsEqual(a, b []OrderItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ExternalItemID != b[i].ExternalItemID ||
			a[i].SKU != b[i].SKU ||
			a[i].Title != b[i].Title ||
			a[i].Quantity != b[i].Quantity ||
			!a[i].UnitPrice.Equal(b[i].UnitPrice) {
			return false
		}
	}
	return true
}

// OrderDraft is the canonical shape an adapter produces from a marketplace order.
// Empty fields mean "unknown" and never overwrite stored values.
type OrderDraft struct {
	Marketplace      Marketplace
	ExternalID       string
	PackID           string
	ShippingID       string
	Status           OrderStatus
	Total            decimal.Decimal
	Currency         string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	CustomerDocument string
	CustomerCity     string
	CustomerState    string
	CustomerZip      string
	Items            []OrderItem
	PlacedAt         *time.Time
	RawPayload       Payload
}

// Validate checks the draft carries its natural key
func (d *OrderDraft) Validate() error {
	if !d.Marketplace.IsValid() {
		return ErrMarketplaceNotSupported
	}
	if d.ExternalID == "" {
		return ErrInvalidExternalID
	}
	return nil
}

// ApplyShipping fills address fields from a resolved shipment
func (d *OrderDraft) ApplyShipping(info *ShippingInfo) {
	if info == nil {
		return
	}
	d.CustomerCity = info.City
	d.CustomerState = ExtractStateCode(info.State)
	d.CustomerZip = info.Zip
}

// Order is the canonical local order, unique by (Marketplace, ExternalID)
type Order struct {
	shared.BaseEntity
	TenantID         uuid.UUID
	StoreID          uuid.UUID
	Marketplace      Marketplace
	ExternalID       string
	PackID           string
	ShippingID       string
	Status           OrderStatus
	Total            decimal.Decimal
	Currency         string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	CustomerDocument string
	CustomerCity     string
	CustomerState    string
	CustomerZip      string
	Items            []OrderItem
	PlacedAt         *time.Time
	RawPayload       Payload
}

// NewOrderFromDraft creates an order and returns every field the draft populated
func NewOrderFromDraft(tenantID, storeID uuid.UUID, d *OrderDraft, now time.Time) (*Order, FieldChanges, error) {
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}
	o := &Order{
		BaseEntity:  shared.NewBaseEntity(now),
		TenantID:    tenantID,
		StoreID:     storeID,
		Marketplace: d.Marketplace,
		ExternalID:  d.ExternalID,
		Total:       decimal.Zero,
	}
	changes := o.Merge(d, now)
	if o.Status == "" {
		o.Status = OrderStatusPending
		changes["status"] = string(OrderStatusPending)
	}
	return o, changes, nil
}

// Merge applies the draft and returns the fields it changed.
// The raw payload is always replaced but is not reported as a change.
func (o *Order) Merge(d *OrderDraft, now time.Time) FieldChanges {
	changes := FieldChanges{}
	mergeString(changes, "packId", &o.PackID, d.PackID)
	mergeString(changes, "shippingId", &o.ShippingID, d.ShippingID)
	if d.Status.IsValid() && d.Status != o.Status {
		o.Status = d.Status
		changes["status"] = string(d.Status)
	}
	mergeDecimal(changes, "total", &o.Total, d.Total)
	mergeString(changes, "currency", &o.Currency, d.Currency)
	mergeString(changes, "customerName", &o.CustomerName, d.CustomerName)
	mergeString(changes, "customerEmail", &o.CustomerEmail, d.CustomerEmail)
	mergeString(changes, "customerPhone", &o.CustomerPhone, d.CustomerPhone)
	mergeString(changes, "customerDocument", &o.CustomerDocument, d.CustomerDocument)
	mergeString(changes, "customerCity", &o.CustomerCity, d.CustomerCity)
	mergeString(changes, "customerState", &o.CustomerState, d.CustomerState)
	mergeString(changes, "customerZip", &o.CustomerZip, d.CustomerZip)
	if len(d.Items) > 0 && !itemsEqual(o.Items, d.Items) {
		o.Items = append([]OrderItem(nil), d.Items...)
		changes["items"] = o.Items
	}
	mergeTime(changes, "placedAt", &o.PlacedAt, d.PlacedAt)
	if len(d.RawPayload) > 0 {
		o.RawPayload = d.RawPayload
	}
	if changes.Changed() {
		o.Touch(now)
	}
	return changes
}

// NeedsShippingEnrichment reports whether the address can still be resolved from a shipment
func (o *Order) NeedsShippingEnrichment() bool {
	return o.ShippingID != "" && (o.CustomerCity == "" || o.CustomerState == "" || o.CustomerZip == "")
}

// OrderRepository persists orders
type OrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByExternalID(ctx context.Context, m Marketplace, externalID string) (*Order, error)
	// Create returns ErrDuplicateKey when the natural key is taken
	Create(ctx context.Context, order *Order) error
	Update(ctx context.Context, order *Order) error
}
