package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncJobRepository implements integration.SyncJobRepository using GORM.
// Claim is a conditional UPDATE, so several workers or processes can poll
// the same table without handing a job out twice.
type GormSyncJobRepository struct {
	db *gorm.DB
}

// NewGormSyncJobRepository creates a new GormSyncJobRepository
func NewGormSyncJobRepository(db *gorm.DB) *GormSyncJobRepository {
	return &GormSyncJobRepository{db: db}
}

var _ integration.SyncJobRepository = (*GormSyncJobRepository)(nil)

var pendingStatuses = []integration.JobStatus{
	integration.JobStatusWaiting,
	integration.JobStatusDelayed,
	integration.JobStatusActive,
}

// Create inserts a new job
func (r *GormSyncJobRepository) Create(ctx context.Context, job *integration.SyncJob) error {
	return translateError(r.db.WithContext(ctx).Create(models.SyncJobModelFromDomain(job)).Error, integration.ErrJobNotFound)
}

// FindByID finds a job by its ID
func (r *GormSyncJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncJob, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, integration.ErrJobNotFound)
	}
	return model.ToDomain(), nil
}

// FindDue returns due jobs of a type, oldest run time first
func (r *GormSyncJobRepository) FindDue(ctx context.Context, jobType integration.JobType, now time.Time, limit int) ([]integration.SyncJob, error) {
	var jobModels []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("type = ? AND status IN ? AND run_at <= ?", jobType,
			[]integration.JobStatus{integration.JobStatusWaiting, integration.JobStatusDelayed}, now.UTC()).
		Order("run_at ASC, created_at ASC").
		Limit(limit).
		Find(&jobModels).Error; err != nil {
		return nil, err
	}

	jobs := make([]integration.SyncJob, len(jobModels))
	for i := range jobModels {
		jobs[i] = *jobModels[i].ToDomain()
	}
	return jobs, nil
}

// Claim moves a waiting or delayed job to ACTIVE and counts the attempt.
// On success the in-memory job reflects the claimed state.
func (r *GormSyncJobRepository) Claim(ctx context.Context, job *integration.SyncJob, now time.Time) (bool, error) {
	now = now.UTC()
	result := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("id = ? AND status IN ?", job.ID,
			[]integration.JobStatus{integration.JobStatusWaiting, integration.JobStatusDelayed}).
		Updates(map[string]any{
			"status":     integration.JobStatusActive,
			"attempts":   gorm.Expr("attempts + 1"),
			"started_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	job.Start(now)
	return true, nil
}

// Update writes the mutable job columns
func (r *GormSyncJobRepository) Update(ctx context.Context, job *integration.SyncJob) error {
	model := models.SyncJobModelFromDomain(job)
	result := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":      model.Status,
			"attempts":    model.Attempts,
			"run_at":      model.RunAt,
			"last_error":  model.LastError,
			"started_at":  model.StartedAt,
			"finished_at": model.FinishedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrJobNotFound
	}
	return nil
}

// Delete removes a job
func (r *GormSyncJobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.SyncJobModel{}, "id = ?", id).Error
}

// ExistsPending reports whether an unfinished job of the type exists for the store
func (r *GormSyncJobRepository) ExistsPending(ctx context.Context, jobType integration.JobType, storeID *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("type = ? AND status IN ?", jobType, pendingStatuses)
	if storeID != nil {
		query = query.Where("store_id = ?", *storeID)
	} else {
		query = query.Where("store_id IS NULL")
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// RequeueStale returns jobs whose worker went away to WAITING. An ACTIVE
// job is stale once its attempt started before startedBefore.
func (r *GormSyncJobRepository) RequeueStale(ctx context.Context, startedBefore, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("status = ? AND (started_at IS NULL OR started_at < ?)", integration.JobStatusActive, startedBefore.UTC()).
		Updates(map[string]any{"status": integration.JobStatusWaiting, "run_at": now.UTC()})
	return result.RowsAffected, result.Error
}

// Stats counts jobs by status
func (r *GormSyncJobRepository) Stats(ctx context.Context) (*integration.QueueStats, error) {
	var rows []struct {
		Status integration.JobStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &integration.QueueStats{}
	for _, row := range rows {
		switch row.Status {
		case integration.JobStatusWaiting:
			stats.Waiting = row.Count
		case integration.JobStatusActive:
			stats.Active = row.Count
		case integration.JobStatusCompleted:
			stats.Completed = row.Count
		case integration.JobStatusFailed:
			stats.Failed = row.Count
		case integration.JobStatusDelayed:
			stats.Delayed = row.Count
		}
	}
	return stats, nil
}
