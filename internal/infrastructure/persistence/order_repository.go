package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormOrderRepository implements integration.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

var _ integration.OrderRepository = (*GormOrderRepository)(nil)

// FindByID finds an order by its ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, integration.ErrOrderNotFound)
	}
	return model.ToDomain(), nil
}

// FindByExternalID finds an order by its marketplace natural key
func (r *GormOrderRepository) FindByExternalID(ctx context.Context, m integration.Marketplace, externalID string) (*integration.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).
		Where("marketplace = ? AND external_id = ?", m, externalID).
		First(&model).Error; err != nil {
		return nil, translateError(err, integration.ErrOrderNotFound)
	}
	return model.ToDomain(), nil
}

// Create inserts a new order
func (r *GormOrderRepository) Create(ctx context.Context, order *integration.Order) error {
	model := models.OrderModelFromDomain(order)
	return translateError(r.db.WithContext(ctx).Create(model).Error, integration.ErrOrderNotFound)
}

// Update writes every column of an existing order
func (r *GormOrderRepository) Update(ctx context.Context, order *integration.Order) error {
	model := models.OrderModelFromDomain(order)
	result := r.db.WithContext(ctx).Select("*").Omit("created_at").Updates(model)
	if result.Error != nil {
		return translateError(result.Error, integration.ErrOrderNotFound)
	}
	if result.RowsAffected == 0 {
		return integration.ErrOrderNotFound
	}
	return nil
}
