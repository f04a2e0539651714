package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// StoreModel is the persistence model for a connected marketplace account
type StoreModel struct {
	BaseModel
	TenantID       uuid.UUID               `gorm:"type:uuid;not null;index"`
	UserID         uuid.UUID               `gorm:"type:uuid;not null"`
	Marketplace    integration.Marketplace `gorm:"type:varchar(20);not null;uniqueIndex:idx_store_marketplace_user,priority:1"`
	ExternalUserID string                  `gorm:"type:varchar(64);not null;uniqueIndex:idx_store_marketplace_user,priority:2"`
	Name           string                  `gorm:"type:varchar(200)"`
	Status         integration.StoreStatus `gorm:"type:varchar(30);not null;index"`
	AccessToken    string                  `gorm:"type:text;not null"`
	RefreshToken   string                  `gorm:"type:text"`
	ExpiresAt      time.Time               `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StoreModel) TableName() string {
	return "marketplace_stores"
}

// ToDomain converts the model to a domain Store
func (m *StoreModel) ToDomain() *integration.Store {
	return &integration.Store{
		BaseEntity:  m.BaseModel.ToDomain(),
		TenantID:    m.TenantID,
		UserID:      m.UserID,
		Marketplace: m.Marketplace,
		Name:        m.Name,
		Status:      m.Status,
		Credential: integration.StoreCredential{
			ExternalUserID: m.ExternalUserID,
			AccessToken:    m.AccessToken,
			RefreshToken:   m.RefreshToken,
			ExpiresAt:      m.ExpiresAt,
		},
	}
}

// StoreModelFromDomain converts a domain Store to its model
func StoreModelFromDomain(s *integration.Store) *StoreModel {
	m := &StoreModel{
		TenantID:       s.TenantID,
		UserID:         s.UserID,
		Marketplace:    s.Marketplace,
		ExternalUserID: s.Credential.ExternalUserID,
		Name:           s.Name,
		Status:         s.Status,
		AccessToken:    s.Credential.AccessToken,
		RefreshToken:   s.Credential.RefreshToken,
		ExpiresAt:      s.Credential.ExpiresAt.UTC(),
	}
	m.FromDomainBaseEntity(s.BaseEntity)
	return m
}

// ---------------------------------------------------------------------------
// Order
// ---------------------------------------------------------------------------

// OrderModel is the persistence model for a canonical order
type OrderModel struct {
	TenantModel
	Marketplace      integration.Marketplace                     `gorm:"type:varchar(20);not null;uniqueIndex:idx_order_marketplace_external,priority:1"`
	ExternalID       string                                      `gorm:"type:varchar(64);not null;uniqueIndex:idx_order_marketplace_external,priority:2"`
	PackID           string                                      `gorm:"type:varchar(64);index"`
	ShippingID       string                                      `gorm:"type:varchar(64)"`
	Status           integration.OrderStatus                     `gorm:"type:varchar(20);not null;index"`
	Total            decimal.Decimal                             `gorm:"type:decimal(18,4);not null"`
	Currency         string                                      `gorm:"type:varchar(3)"`
	CustomerName     string                                      `gorm:"type:varchar(200)"`
	CustomerEmail    string                                      `gorm:"type:varchar(200)"`
	CustomerPhone    string                                      `gorm:"type:varchar(50)"`
	CustomerDocument string                                      `gorm:"type:varchar(50)"`
	CustomerCity     string                                      `gorm:"type:varchar(100)"`
	CustomerState    string                                      `gorm:"type:varchar(10)"`
	CustomerZip      string                                      `gorm:"type:varchar(20)"`
	Items            datatypes.JSONType[[]integration.OrderItem] `gorm:"type:jsonb"`
	PlacedAt         *time.Time
	RawPayload       datatypes.JSON `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "marketplace_orders"
}

// ToDomain converts the model to a domain Order
func (m *OrderModel) ToDomain() *integration.Order {
	return &integration.Order{
		BaseEntity:       m.BaseModel.ToDomain(),
		TenantID:         m.TenantID,
		StoreID:          m.StoreID,
		Marketplace:      m.Marketplace,
		ExternalID:       m.ExternalID,
		PackID:           m.PackID,
		ShippingID:       m.ShippingID,
		Status:           m.Status,
		Total:            m.Total,
		Currency:         m.Currency,
		CustomerName:     m.CustomerName,
		CustomerEmail:    m.CustomerEmail,
		CustomerPhone:    m.CustomerPhone,
		CustomerDocument: m.CustomerDocument,
		CustomerCity:     m.CustomerCity,
		CustomerState:    m.CustomerState,
		CustomerZip:      m.CustomerZip,
		Items:            m.Items.Data(),
		PlacedAt:         m.PlacedAt,
		RawPayload:       decodePayload(m.RawPayload),
	}
}

// OrderModelFromDomain converts a domain Order to its model
func OrderModelFromDomain(o *integration.Order) *OrderModel {
	m := &OrderModel{
		Marketplace:      o.Marketplace,
		ExternalID:       o.ExternalID,
		PackID:           o.PackID,
		ShippingID:       o.ShippingID,
		Status:           o.Status,
		Total:            o.Total,
		Currency:         o.Currency,
		CustomerName:     o.CustomerName,
		CustomerEmail:    o.CustomerEmail,
		CustomerPhone:    o.CustomerPhone,
		CustomerDocument: o.CustomerDocument,
		CustomerCity:     o.CustomerCity,
		CustomerState:    o.CustomerState,
		CustomerZip:      o.CustomerZip,
		Items:            datatypes.NewJSONType(o.Items),
		PlacedAt:         utcPtr(o.PlacedAt),
		RawPayload:       encodePayload(o.RawPayload),
	}
	m.FromDomainBaseEntity(o.BaseEntity)
	m.TenantID = o.TenantID
	m.StoreID = o.StoreID
	return m
}

// ---------------------------------------------------------------------------
// Product
// ---------------------------------------------------------------------------

// ProductModel is the persistence model for a canonical product
type ProductModel struct {
	BaseModel
	TenantID    uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex:idx_product_tenant_sku,priority:1"`
	StoreID     uuid.UUID                 `gorm:"type:uuid;not null;index"`
	Marketplace integration.Marketplace   `gorm:"type:varchar(20);not null"`
	ExternalID  string                    `gorm:"type:varchar(64);index"`
	SKU         string                    `gorm:"column:sku;type:varchar(100);not null;uniqueIndex:idx_product_tenant_sku,priority:2"`
	Name        string                    `gorm:"type:varchar(500)"`
	Description string                    `gorm:"type:text"`
	Price       decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	Currency    string                    `gorm:"type:varchar(3)"`
	Stock       int                       `gorm:"not null;default:0"`
	Status      integration.ProductStatus `gorm:"type:varchar(20);not null"`
	Permalink   string                    `gorm:"type:varchar(500)"`
	ImageURL    string                    `gorm:"column:image_url;type:varchar(500)"`
	RawPayload  datatypes.JSON            `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "marketplace_products"
}

// ToDomain converts the model to a domain Product
func (m *ProductModel) ToDomain() *integration.Product {
	return &integration.Product{
		BaseEntity:  m.BaseModel.ToDomain(),
		TenantID:    m.TenantID,
		StoreID:     m.StoreID,
		Marketplace: m.Marketplace,
		ExternalID:  m.ExternalID,
		SKU:         m.SKU,
		Name:        m.Name,
		Description: m.Description,
		Price:       m.Price,
		Currency:    m.Currency,
		Stock:       m.Stock,
		Status:      m.Status,
		Permalink:   m.Permalink,
		ImageURL:    m.ImageURL,
		RawPayload:  decodePayload(m.RawPayload),
	}
}

// ProductModelFromDomain converts a domain Product to its model
func ProductModelFromDomain(p *integration.Product) *ProductModel {
	m := &ProductModel{
		Marketplace: p.Marketplace,
		ExternalID:  p.ExternalID,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Currency:    p.Currency,
		Stock:       p.Stock,
		Status:      p.Status,
		Permalink:   p.Permalink,
		ImageURL:    p.ImageURL,
		RawPayload:  encodePayload(p.RawPayload),
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	m.TenantID = p.TenantID
	m.StoreID = p.StoreID
	return m
}

// ---------------------------------------------------------------------------
// Support ticket
// ---------------------------------------------------------------------------

// SupportTicketModel is the persistence model for a question or message thread.
// Questions are unique by external id, message threads by pack id.
type SupportTicketModel struct {
	TenantModel
	Marketplace     integration.Marketplace   `gorm:"type:varchar(20);not null;index:idx_support_marketplace_external,priority:1;index:idx_support_marketplace_pack,priority:1"`
	Kind            integration.SupportKind   `gorm:"type:varchar(20);not null"`
	ExternalID      string                    `gorm:"type:varchar(64);index:idx_support_marketplace_external,priority:2"`
	PackID          string                    `gorm:"type:varchar(64);index:idx_support_marketplace_pack,priority:2"`
	ItemExternalID  string                    `gorm:"type:varchar(64)"`
	OrderExternalID string                    `gorm:"type:varchar(64)"`
	BuyerID         string                    `gorm:"type:varchar(64)"`
	BuyerName       string                    `gorm:"type:varchar(200)"`
	Text            string                    `gorm:"type:text"`
	AnswerText      string                    `gorm:"type:text"`
	Status          integration.SupportStatus `gorm:"type:varchar(20);not null"`
	CanAnswer       bool                      `gorm:"not null;default:false"`
	QuestionDate    time.Time                 `gorm:"not null;index"`
	AnsweredAt      *time.Time
	RawPayload      datatypes.JSON `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (SupportTicketModel) TableName() string {
	return "marketplace_support_tickets"
}

// ToDomain converts the model to a domain SupportTicket
func (m *SupportTicketModel) ToDomain() *integration.SupportTicket {
	return &integration.SupportTicket{
		BaseEntity:      m.BaseModel.ToDomain(),
		TenantID:        m.TenantID,
		StoreID:         m.StoreID,
		Marketplace:     m.Marketplace,
		Kind:            m.Kind,
		ExternalID:      m.ExternalID,
		PackID:          m.PackID,
		ItemExternalID:  m.ItemExternalID,
		OrderExternalID: m.OrderExternalID,
		BuyerID:         m.BuyerID,
		BuyerName:       m.BuyerName,
		Text:            m.Text,
		AnswerText:      m.AnswerText,
		Status:          m.Status,
		CanAnswer:       m.CanAnswer,
		QuestionDate:    m.QuestionDate,
		AnsweredAt:      m.AnsweredAt,
		RawPayload:      decodePayload(m.RawPayload),
	}
}

// SupportTicketModelFromDomain converts a domain SupportTicket to its model
func SupportTicketModelFromDomain(t *integration.SupportTicket) *SupportTicketModel {
	m := &SupportTicketModel{
		Marketplace:     t.Marketplace,
		Kind:            t.Kind,
		ExternalID:      t.ExternalID,
		PackID:          t.PackID,
		ItemExternalID:  t.ItemExternalID,
		OrderExternalID: t.OrderExternalID,
		BuyerID:         t.BuyerID,
		BuyerName:       t.BuyerName,
		Text:            t.Text,
		AnswerText:      t.AnswerText,
		Status:          t.Status,
		CanAnswer:       t.CanAnswer,
		QuestionDate:    t.QuestionDate.UTC(),
		AnsweredAt:      utcPtr(t.AnsweredAt),
		RawPayload:      encodePayload(t.RawPayload),
	}
	m.FromDomainBaseEntity(t.BaseEntity)
	m.TenantID = t.TenantID
	m.StoreID = t.StoreID
	return m
}

func encodePayload(p integration.Payload) datatypes.JSON {
	if len(p) == 0 {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func decodePayload(raw datatypes.JSON) integration.Payload {
	if len(raw) == 0 {
		return nil
	}
	p, err := integration.DecodePayload(raw)
	if err != nil {
		return nil
	}
	return p
}
