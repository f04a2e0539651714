package persistence

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormProductRepository implements integration.ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

var _ integration.ProductRepository = (*GormProductRepository)(nil)

// FindByID finds a product by its ID
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, integration.ErrProductNotFound)
	}
	return model.ToDomain(), nil
}

// FindBySKU finds a tenant's product by SKU
func (r *GormProductRepository) FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*integration.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sku = ?", tenantID, strings.TrimSpace(sku)).
		First(&model).Error; err != nil {
		return nil, translateError(err, integration.ErrProductNotFound)
	}
	return model.ToDomain(), nil
}

// Create inserts a new product
func (r *GormProductRepository) Create(ctx context.Context, product *integration.Product) error {
	model := models.ProductModelFromDomain(product)
	return translateError(r.db.WithContext(ctx).Create(model).Error, integration.ErrProductNotFound)
}

// Update writes every column of an existing product
func (r *GormProductRepository) Update(ctx context.Context, product *integration.Product) error {
	model := models.ProductModelFromDomain(product)
	result := r.db.WithContext(ctx).Select("*").Omit("created_at").Updates(model)
	if result.Error != nil {
		return translateError(result.Error, integration.ErrProductNotFound)
	}
	if result.RowsAffected == 0 {
		return integration.ErrProductNotFound
	}
	return nil
}
