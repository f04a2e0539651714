package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxBackoffDelay caps the delay between two attempts of a job
const MaxBackoffDelay = 30 * time.Minute

// ---------------------------------------------------------------------------
// Job types
// ---------------------------------------------------------------------------

// JobType names a kind of background work
type JobType string

const (
	JobTypeSyncOrders          JobType = "sync-orders"
	JobTypeSyncProducts        JobType = "sync-products"
	JobTypeSyncSupport         JobType = "sync-support"
	JobTypeRefreshTokens       JobType = "refresh-tokens"
	JobTypeWebhookNotification JobType = "webhook-notification"
)

// IsValid returns true if the job type is known
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeSyncOrders, JobTypeSyncProducts, JobTypeSyncSupport,
		JobTypeRefreshTokens, JobTypeWebhookNotification:
		return true
	}
	return false
}

// String returns the string representation
func (t JobType) String() string {
	return string(t)
}

// JobStatus is the queue state of a job
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "WAITING"
	JobStatusDelayed   JobStatus = "DELAYED"
	JobStatusActive    JobStatus = "ACTIVE"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// IsTerminal returns true if the job will not run again
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// BackoffType selects how the retry delay grows
type BackoffType string

const (
	BackoffExponential BackoffType = "exponential"
	BackoffFixed       BackoffType = "fixed"
)

// BackoffPolicy describes the delay before a retry
type BackoffPolicy struct {
	Type  BackoffType   `json:"type"`
	Delay time.Duration `json:"delay"`
}

// DelayFor returns the delay before the retry that follows the given attempt (1-based)
func (b BackoffPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Delay
	if b.Type != BackoffFixed {
		// delay * 2^(attempt-1), guarded against shift overflow
		for i := 1; i < attempt && delay < MaxBackoffDelay; i++ {
			delay *= 2
		}
	}
	if delay > MaxBackoffDelay {
		delay = MaxBackoffDelay
	}
	return delay
}

// JobOptions control retries and retention of an enqueued job
type JobOptions struct {
	Attempts         int
	Backoff          BackoffPolicy
	RemoveOnComplete bool
	RemoveOnFail     bool
	// Delay postpones the first attempt
	Delay time.Duration
}

// DefaultJobOptions returns the queue defaults: three attempts with
// exponential backoff from 30s, completed jobs removed, failed jobs kept
func DefaultJobOptions() JobOptions {
	return JobOptions{
		Attempts:         3,
		Backoff:          BackoffPolicy{Type: BackoffExponential, Delay: 30 * time.Second},
		RemoveOnComplete: true,
		RemoveOnFail:     false,
	}
}

// Validate checks the options
func (o JobOptions) Validate() error {
	if o.Attempts < 1 || o.Backoff.Delay < 0 || o.Delay < 0 {
		return ErrInvalidJobOptions
	}
	if o.Backoff.Type != BackoffExponential && o.Backoff.Type != BackoffFixed {
		return ErrInvalidJobOptions
	}
	return nil
}

// ---------------------------------------------------------------------------
// SyncJob
// ---------------------------------------------------------------------------

// SyncJob is a durable unit of background work.
// A job is consumed by exactly one worker at a time.
type SyncJob struct {
	ID               uuid.UUID
	Type             JobType
	StoreID          *uuid.UUID
	Payload          []byte
	Status           JobStatus
	Attempts         int
	MaxAttempts      int
	Backoff          BackoffPolicy
	RemoveOnComplete bool
	RemoveOnFail     bool
	RunAt            time.Time
	LastError        string
	CreatedAt        time.Time
	StartedAt        *time.Time
	FinishedAt       *time.Time
}

// NewSyncJob creates a waiting job, or a delayed one when opts.Delay is set
func NewSyncJob(jobType JobType, storeID *uuid.UUID, payload []byte, opts JobOptions, now time.Time) (*SyncJob, error) {
	if !jobType.IsValid() {
		return nil, ErrInvalidJobType
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	status := JobStatusWaiting
	if opts.Delay > 0 {
		status = JobStatusDelayed
	}
	return &SyncJob{
		ID:               uuid.New(),
		Type:             jobType,
		StoreID:          storeID,
		Payload:          payload,
		Status:           status,
		MaxAttempts:      opts.Attempts,
		Backoff:          opts.Backoff,
		RemoveOnComplete: opts.RemoveOnComplete,
		RemoveOnFail:     opts.RemoveOnFail,
		RunAt:            now.Add(opts.Delay),
		CreatedAt:        now,
	}, nil
}

// IsDue reports whether a waiting or delayed job may be claimed at now
func (j *SyncJob) IsDue(now time.Time) bool {
	return (j.Status == JobStatusWaiting || j.Status == JobStatusDelayed) && !now.Before(j.RunAt)
}

// Start marks the job as active and counts the attempt
func (j *SyncJob) Start(now time.Time) {
	j.Status = JobStatusActive
	j.Attempts++
	j.StartedAt = &now
}

// Complete marks the job as done
func (j *SyncJob) Complete(now time.Time) {
	j.Status = JobStatusCompleted
	j.FinishedAt = &now
	j.LastError = ""
}

// Fail records a failed attempt. Retryable failures with attempts left are
// rescheduled with backoff; the return value reports whether that happened.
func (j *SyncJob) Fail(err error, now time.Time) bool {
	if err != nil {
		j.LastError = err.Error()
	}
	if IsRetryable(err) && j.Attempts < j.MaxAttempts {
		j.Status = JobStatusDelayed
		j.RunAt = now.Add(j.Backoff.DelayFor(j.Attempts))
		return true
	}
	j.Status = JobStatusFailed
	j.FinishedAt = &now
	return false
}

// Requeue returns an orphaned active job to the waiting state
func (j *SyncJob) Requeue(now time.Time) {
	j.Status = JobStatusWaiting
	j.RunAt = now
}

// ---------------------------------------------------------------------------
// Payloads
// ---------------------------------------------------------------------------

// StorePayload addresses the store a sync job works on
type StorePayload struct {
	StoreID uuid.UUID `json:"storeId"`
}

// WebhookPayload carries an accepted notification to its job
type WebhookPayload struct {
	Marketplace  Marketplace  `json:"marketplace"`
	Notification Notification `json:"notification"`
}

// DecodeJobPayload decodes a job payload into v
func DecodeJobPayload(job *SyncJob, v any) error {
	if len(job.Payload) == 0 {
		return fmt.Errorf("%w: %s job without payload", ErrPermanent, job.Type)
	}
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return fmt.Errorf("%w: %s job payload: %v", ErrPermanent, job.Type, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Repository and stats
// ---------------------------------------------------------------------------

// QueueStats counts jobs by status
type QueueStats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// SyncJobRepository persists queue jobs
type SyncJobRepository interface {
	Create(ctx context.Context, job *SyncJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncJob, error)
	// FindDue returns up to limit due jobs of a type, oldest first
	FindDue(ctx context.Context, jobType JobType, now time.Time, limit int) ([]SyncJob, error)
	// Claim atomically moves a due job to ACTIVE. It returns false when
	// another worker claimed the job first.
	Claim(ctx context.Context, job *SyncJob, now time.Time) (bool, error)
	Update(ctx context.Context, job *SyncJob) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ExistsPending reports whether a job of the type for the store is
	// waiting, delayed or active
	ExistsPending(ctx context.Context, jobType JobType, storeID *uuid.UUID) (bool, error)
	// RequeueStale returns ACTIVE jobs started before startedBefore to
	// WAITING. Jobs other workers are still running are left alone.
	RequeueStale(ctx context.Context, startedBefore, now time.Time) (int64, error)
	Stats(ctx context.Context) (*QueueStats, error)
}
