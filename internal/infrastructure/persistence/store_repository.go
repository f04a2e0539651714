package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormStoreRepository implements integration.StoreRepository using GORM
type GormStoreRepository struct {
	db *gorm.DB
}

// NewGormStoreRepository creates a new GormStoreRepository
func NewGormStoreRepository(db *gorm.DB) *GormStoreRepository {
	return &GormStoreRepository{db: db}
}

var _ integration.StoreRepository = (*GormStoreRepository)(nil)

// FindByID finds a store by its ID
func (r *GormStoreRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Store, error) {
	var model models.StoreModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, integration.ErrStoreNotFound)
	}
	return model.ToDomain(), nil
}

// FindByExternalUser finds the store connected for a marketplace account
func (r *GormStoreRepository) FindByExternalUser(ctx context.Context, m integration.Marketplace, externalUserID string) (*integration.Store, error) {
	var model models.StoreModel
	if err := r.db.WithContext(ctx).
		Where("marketplace = ? AND external_user_id = ?", m, externalUserID).
		First(&model).Error; err != nil {
		return nil, translateError(err, integration.ErrStoreNotFound)
	}
	return model.ToDomain(), nil
}

// FindSyncable returns every connected store, oldest first
func (r *GormStoreRepository) FindSyncable(ctx context.Context) ([]integration.Store, error) {
	var storeModels []models.StoreModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", integration.StoreStatusConnected).
		Order("created_at ASC").
		Find(&storeModels).Error; err != nil {
		return nil, err
	}

	stores := make([]integration.Store, len(storeModels))
	for i := range storeModels {
		stores[i] = *storeModels[i].ToDomain()
	}
	return stores, nil
}

// Save inserts or fully updates a store
func (r *GormStoreRepository) Save(ctx context.Context, store *integration.Store) error {
	model := models.StoreModelFromDomain(store)
	return translateError(r.db.WithContext(ctx).Save(model).Error, integration.ErrStoreNotFound)
}

// UpdateCredential writes only the token columns, so a concurrent status
// change is not overwritten
func (r *GormStoreRepository) UpdateCredential(ctx context.Context, storeID uuid.UUID, cred integration.StoreCredential, updatedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.StoreModel{}).
		Where("id = ?", storeID).
		Updates(map[string]any{
			"access_token":  cred.AccessToken,
			"refresh_token": cred.RefreshToken,
			"expires_at":    cred.ExpiresAt.UTC(),
			"status":        integration.StoreStatusConnected,
			"updated_at":    updatedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrStoreNotFound
	}
	return nil
}

// UpdateStatus changes a store's connection status
func (r *GormStoreRepository) UpdateStatus(ctx context.Context, storeID uuid.UUID, status integration.StoreStatus, updatedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.StoreModel{}).
		Where("id = ?", storeID).
		Updates(map[string]any{"status": status, "updated_at": updatedAt.UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrStoreNotFound
	}
	return nil
}
