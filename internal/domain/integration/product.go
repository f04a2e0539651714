package integration

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeProduct is the aggregate type for product events
const AggregateTypeProduct = "Product"

// ProductStatus is the canonical listing status
type ProductStatus string

const (
	ProductStatusActive ProductStatus = "ACTIVE"
	ProductStatusPaused ProductStatus = "PAUSED"
	ProductStatusClosed ProductStatus = "CLOSED"
	// ProductStatusDeleted marks a listing removed on the marketplace.
	// The local record is kept; deletion is left to the catalog.
	ProductStatusDeleted ProductStatus = "DELETED"
)

// IsValid returns true if the status is known
func (s ProductStatus) IsValid() bool {
	switch s {
	case ProductStatusActive, ProductStatusPaused, ProductStatusClosed, ProductStatusDeleted:
		return true
	}
	return false
}

// String returns the string representation
func (s ProductStatus) String() string {
	return string(s)
}

// ProductDraft is the canonical shape an adapter produces from a marketplace listing
type ProductDraft struct {
	Marketplace Marketplace
	ExternalID  string
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	Currency    string
	// Stock is nil when the marketplace did not report it; zero means sold out
	Stock      *int
	Status     ProductStatus
	Permalink  string
	ImageURL   string
	RawPayload Payload
}

// Validate checks the draft carries its natural key
func (d *ProductDraft) Validate() error {
	if !d.Marketplace.IsValid() {
		return ErrMarketplaceNotSupported
	}
	if strings.TrimSpace(d.SKU) == "" {
		return ErrInvalidSKU
	}
	return nil
}

// Product is the canonical local product, unique by (TenantID, SKU)
type Product struct {
	shared.BaseEntity
	TenantID    uuid.UUID
	StoreID     uuid.UUID
	Marketplace Marketplace
	ExternalID  string
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	Currency    string
	Stock       int
	Status      ProductStatus
	Permalink   string
	ImageURL    string
	RawPayload  Payload
}

// NewProductFromDraft creates a product and returns every field the draft populated
func NewProductFromDraft(tenantID, storeID uuid.UUID, d *ProductDraft, now time.Time) (*Product, FieldChanges, error) {
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}
	p := &Product{
		BaseEntity:  shared.NewBaseEntity(now),
		TenantID:    tenantID,
		StoreID:     storeID,
		Marketplace: d.Marketplace,
		SKU:         strings.TrimSpace(d.SKU),
		Price:       decimal.Zero,
	}
	changes := p.Merge(d, now)
	if p.Status == "" {
		p.Status = ProductStatusActive
		changes["status"] = string(ProductStatusActive)
	}
	return p, changes, nil
}

// Merge applies the draft and returns the fields it changed
func (p *Product) Merge(d *ProductDraft, now time.Time) FieldChanges {
	changes := FieldChanges{}
	mergeString(changes, "externalId", &p.ExternalID, d.ExternalID)
	mergeString(changes, "name", &p.Name, d.Name)
	mergeString(changes, "description", &p.Description, d.Description)
	mergeDecimal(changes, "price", &p.Price, d.Price)
	mergeString(changes, "currency", &p.Currency, d.Currency)
	mergeInt(changes, "stock", &p.Stock, d.Stock)
	if d.Status.IsValid() && d.Status != p.Status {
		p.Status = d.Status
		changes["status"] = string(d.Status)
	}
	mergeString(changes, "permalink", &p.Permalink, d.Permalink)
	mergeString(changes, "imageUrl", &p.ImageURL, d.ImageURL)
	if len(d.RawPayload) > 0 {
		p.RawPayload = d.RawPayload
	}
	if changes.Changed() {
		p.Touch(now)
	}
	return changes
}

// BecameDeleted reports whether a merge moved the product into DELETED
func (p *Product) BecameDeleted(changes FieldChanges) bool {
	status, ok := changes["status"]
	return ok && status == string(ProductStatusDeleted)
}

// ProductRepository persists products
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*Product, error)
	// Create returns ErrDuplicateKey when the natural key is taken
	Create(ctx context.Context, product *Product) error
	Update(ctx context.Context, product *Product) error
}
