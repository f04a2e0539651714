package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"gorm.io/datatypes"
)

// SyncJobModel is the persistence model for a queue job.
// Due jobs are polled by (type, status, run_at).
type SyncJobModel struct {
	ID               uuid.UUID               `gorm:"type:uuid;primary_key"`
	Type             integration.JobType     `gorm:"type:varchar(40);not null;index:idx_sync_job_due,priority:1"`
	StoreID          *uuid.UUID              `gorm:"type:uuid;index"`
	Payload          datatypes.JSON          `gorm:"type:jsonb"`
	Status           integration.JobStatus   `gorm:"type:varchar(20);not null;index:idx_sync_job_due,priority:2"`
	Attempts         int                     `gorm:"not null;default:0"`
	MaxAttempts      int                     `gorm:"not null"`
	BackoffType      integration.BackoffType `gorm:"type:varchar(20);not null"`
	BackoffDelayMS   int64                   `gorm:"column:backoff_delay_ms;not null"`
	RemoveOnComplete bool                    `gorm:"not null"`
	RemoveOnFail     bool                    `gorm:"not null"`
	RunAt            time.Time               `gorm:"not null;index:idx_sync_job_due,priority:3"`
	LastError        string                  `gorm:"type:text"`
	CreatedAt        time.Time               `gorm:"not null"`
	StartedAt        *time.Time
	FinishedAt       *time.Time
}

// TableName returns the table name for GORM
func (SyncJobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the model to a domain SyncJob
func (m *SyncJobModel) ToDomain() *integration.SyncJob {
	var payload []byte
	if len(m.Payload) > 0 {
		payload = []byte(m.Payload)
	}
	return &integration.SyncJob{
		ID:          m.ID,
		Type:        m.Type,
		StoreID:     m.StoreID,
		Payload:     payload,
		Status:      m.Status,
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		Backoff: integration.BackoffPolicy{
			Type:  m.BackoffType,
			Delay: time.Duration(m.BackoffDelayMS) * time.Millisecond,
		},
		RemoveOnComplete: m.RemoveOnComplete,
		RemoveOnFail:     m.RemoveOnFail,
		RunAt:            m.RunAt,
		LastError:        m.LastError,
		CreatedAt:        m.CreatedAt,
		StartedAt:        m.StartedAt,
		FinishedAt:       m.FinishedAt,
	}
}

// SyncJobModelFromDomain converts a domain SyncJob to its model
func SyncJobModelFromDomain(j *integration.SyncJob) *SyncJobModel {
	var payload datatypes.JSON
	if len(j.Payload) > 0 {
		payload = datatypes.JSON(j.Payload)
	}
	return &SyncJobModel{
		ID:               j.ID,
		Type:             j.Type,
		StoreID:          j.StoreID,
		Payload:          payload,
		Status:           j.Status,
		Attempts:         j.Attempts,
		MaxAttempts:      j.MaxAttempts,
		BackoffType:      j.Backoff.Type,
		BackoffDelayMS:   j.Backoff.Delay.Milliseconds(),
		RemoveOnComplete: j.RemoveOnComplete,
		RemoveOnFail:     j.RemoveOnFail,
		RunAt:            j.RunAt.UTC(),
		LastError:        j.LastError,
		CreatedAt:        j.CreatedAt.UTC(),
		StartedAt:        utcPtr(j.StartedAt),
		FinishedAt:       utcPtr(j.FinishedAt),
	}
}

// AllModels lists every model for AutoMigrate in tests and sqlite setups
func AllModels() []any {
	return []any{
		&StoreModel{},
		&OrderModel{},
		&ProductModel{},
		&SupportTicketModel{},
		&SyncJobModel{},
	}
}
