package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSupportTicketRepository implements integration.SupportTicketRepository using GORM
type GormSupportTicketRepository struct {
	db *gorm.DB
}

// NewGormSupportTicketRepository creates a new GormSupportTicketRepository
func NewGormSupportTicketRepository(db *gorm.DB) *GormSupportTicketRepository {
	return &GormSupportTicketRepository{db: db}
}

var _ integration.SupportTicketRepository = (*GormSupportTicketRepository)(nil)

// FindByQuestion finds a question ticket by its external id
func (r *GormSupportTicketRepository) FindByQuestion(ctx context.Context, m integration.Marketplace, externalID string) (*integration.SupportTicket, error) {
	return r.findOne(ctx, "marketplace = ? AND kind = ? AND external_id = ?", m, integration.SupportKindQuestion, externalID)
}

// FindByPack finds the message thread of a pack
func (r *GormSupportTicketRepository) FindByPack(ctx context.Context, m integration.Marketplace, packID string) (*integration.SupportTicket, error) {
	return r.findOne(ctx, "marketplace = ? AND kind = ? AND pack_id = ?", m, integration.SupportKindMessage, packID)
}

func (r *GormSupportTicketRepository) findOne(ctx context.Context, query string, args ...any) (*integration.SupportTicket, error) {
	var model models.SupportTicketModel
	if err := r.db.WithContext(ctx).Where(query, args...).Order("created_at ASC").First(&model).Error; err != nil {
		return nil, translateError(err, integration.ErrTicketNotFound)
	}
	return model.ToDomain(), nil
}

// Create inserts a new ticket
func (r *GormSupportTicketRepository) Create(ctx context.Context, ticket *integration.SupportTicket) error {
	model := models.SupportTicketModelFromDomain(ticket)
	return translateError(r.db.WithContext(ctx).Create(model).Error, integration.ErrTicketNotFound)
}

// Update writes every column of an existing ticket
func (r *GormSupportTicketRepository) Update(ctx context.Context, ticket *integration.SupportTicket) error {
	model := models.SupportTicketModelFromDomain(ticket)
	result := r.db.WithContext(ctx).Select("*").Omit("created_at").Updates(model)
	if result.Error != nil {
		return translateError(result.Error, integration.ErrTicketNotFound)
	}
	if result.RowsAffected == 0 {
		return integration.ErrTicketNotFound
	}
	return nil
}

// DeleteStale removes a store's tickets untouched since cutoff
func (r *GormSupportTicketRepository) DeleteStale(ctx context.Context, storeID uuid.UUID, cutoff time.Time) (int64, error) {
	cutoff = cutoff.UTC()
	result := r.db.WithContext(ctx).
		Where("store_id = ? AND question_date < ? AND updated_at < ?", storeID, cutoff, cutoff).
		Delete(&models.SupportTicketModel{})
	return result.RowsAffected, result.Error
}
