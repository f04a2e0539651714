package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// JobHandler processes one job attempt. A returned error is recorded against
// the attempt and classified with integration.IsRetryable.
type JobHandler func(ctx context.Context, job *integration.SyncJob) error

// JobHandle identifies an enqueued job
type JobHandle struct {
	ID   uuid.UUID           `json:"jobId"`
	Type integration.JobType `json:"type"`
}

// JobQueueConfig holds queue configuration
type JobQueueConfig struct {
	// PollInterval is how often idle workers look for due jobs
	PollInterval time.Duration
	// JobTimeout bounds a single attempt
	JobTimeout time.Duration
	// StaleAfter is how long an ACTIVE job may run before it is assumed
	// orphaned and requeued. Defaults to JobTimeout plus a grace period.
	StaleAfter time.Duration
	// DefaultOptions apply when Enqueue is called with zero options
	DefaultOptions integration.JobOptions
}

// DefaultJobQueueConfig returns default queue configuration
func DefaultJobQueueConfig() JobQueueConfig {
	return JobQueueConfig{
		PollInterval:   time.Second,
		JobTimeout:     10 * time.Minute,
		DefaultOptions: integration.DefaultJobOptions(),
	}
}

const (
	// staleGrace leaves a timed out handler time to return before its
	// job is taken back
	staleGrace        = time.Minute
	defaultStaleAfter = time.Hour
)

type registration struct {
	handler     JobHandler
	concurrency int
	slots       chan struct{}
	wake        chan struct{}
}

// JobQueue is a durable job queue backed by SyncJobRepository. Each job
// type is served by its own poller with bounded concurrency; jobs are
// claimed with a conditional update so one job never runs twice at once.
type JobQueue struct {
	config  JobQueueConfig
	repo    integration.SyncJobRepository
	metrics *telemetry.SyncMetrics
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	handlers  map[integration.JobType]*registration
	cancel    context.CancelFunc
	pollers   sync.WaitGroup
	running   sync.WaitGroup
	isRunning bool
}

// NewJobQueue creates a job queue
func NewJobQueue(config JobQueueConfig, repo integration.SyncJobRepository, metrics *telemetry.SyncMetrics, logger *zap.Logger) *JobQueue {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaultStaleAfter
		if config.JobTimeout > 0 {
			config.StaleAfter = config.JobTimeout + staleGrace
		}
	}
	if config.DefaultOptions.Attempts == 0 {
		config.DefaultOptions = integration.DefaultJobOptions()
	}
	return &JobQueue{
		config:   config,
		repo:     repo,
		metrics:  metrics,
		logger:   logger.Named("queue"),
		now:      time.Now,
		handlers: make(map[integration.JobType]*registration),
	}
}

// DefaultOptions returns the options used for zero-valued Enqueue options
func (q *JobQueue) DefaultOptions() integration.JobOptions {
	return q.config.DefaultOptions
}

// Register installs the handler for a job type. It must be called before Start.
func (q *JobQueue) Register(jobType integration.JobType, concurrency int, handler JobHandler) error {
	if !jobType.IsValid() {
		return integration.ErrInvalidJobType
	}
	if concurrency < 1 {
		concurrency = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return ErrSchedulerRunning
	}
	q.handlers[jobType] = &registration{
		handler:     handler,
		concurrency: concurrency,
		slots:       make(chan struct{}, concurrency),
		wake:        make(chan struct{}, 1),
	}
	return nil
}

// Enqueue persists a job. payload is encoded as JSON; a zero opts selects
// the queue defaults.
func (q *JobQueue) Enqueue(ctx context.Context, jobType integration.JobType, storeID *uuid.UUID, payload any, opts integration.JobOptions) (*JobHandle, error) {
	if opts == (integration.JobOptions{}) {
		opts = q.config.DefaultOptions
	}

	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("queue: encode %s payload: %w", jobType, err)
		}
	}

	job, err := integration.NewSyncJob(jobType, storeID, data, opts, q.now())
	if err != nil {
		return nil, err
	}
	if err := q.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("queue: enqueue %s: %w", jobType, err)
	}

	logger.L(ctx).Debug("Job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(jobType)),
		zap.Int("attempts", opts.Attempts),
	)

	q.mu.Lock()
	if reg, ok := q.handlers[jobType]; ok && opts.Delay == 0 {
		select {
		case reg.wake <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()

	return &JobHandle{ID: job.ID, Type: jobType}, nil
}

// ExistsPending reports whether a job of the type is queued or running for the store
func (q *JobQueue) ExistsPending(ctx context.Context, jobType integration.JobType, storeID *uuid.UUID) (bool, error) {
	return q.repo.ExistsPending(ctx, jobType, storeID)
}

// Stats returns job counts by status
func (q *JobQueue) Stats(ctx context.Context) (*integration.QueueStats, error) {
	return q.repo.Stats(ctx)
}

// Start requeues jobs orphaned by a dead worker and starts one poller per
// registered job type. Jobs still within their lease are left to the
// worker running them.
func (q *JobQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = true
	q.mu.Unlock()

	if err := q.requeueStale(ctx); err != nil {
		q.mu.Lock()
		q.isRunning = false
		q.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for jobType, reg := range q.handlers {
		q.pollers.Add(1)
		go q.poll(ctx, jobType, reg)
	}
	q.pollers.Add(1)
	go q.reap(ctx)

	q.logger.Info("Job queue started",
		zap.Int("job_types", len(q.handlers)),
		zap.Duration("poll_interval", q.config.PollInterval),
	)
	return nil
}

// Stop stops polling and waits for running jobs to finish. Running jobs
// are not cancelled; ctx bounds how long Stop waits for them.
func (q *JobQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}

	done := make(chan struct{})
	go func() {
		q.pollers.Wait()
		q.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Job queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.logger.Warn("Job queue stop timed out; active jobs will be requeued once their lease expires")
		return ctx.Err()
	}
}

func (q *JobQueue) requeueStale(ctx context.Context) error {
	now := q.now()
	requeued, err := q.repo.RequeueStale(ctx, now.Add(-q.config.StaleAfter), now)
	if err != nil {
		return fmt.Errorf("queue: requeue orphaned jobs: %w", err)
	}
	if requeued > 0 {
		q.logger.Warn("Requeued jobs whose worker stopped responding",
			zap.Int64("count", requeued),
			zap.Duration("stale_after", q.config.StaleAfter),
		)
	}
	return nil
}

// reap periodically takes back jobs orphaned by workers that died while
// this process keeps running
func (q *JobQueue) reap(ctx context.Context) {
	defer q.pollers.Done()

	ticker := time.NewTicker(q.config.StaleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.requeueStale(ctx); err != nil && ctx.Err() == nil {
				q.logger.Error("Failed to requeue stale jobs", zap.Error(err))
			}
		}
	}
}

// poll claims due jobs of one type while worker slots are free
func (q *JobQueue) poll(ctx context.Context, jobType integration.JobType, reg *registration) {
	defer q.pollers.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		q.dispatch(ctx, jobType, reg)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-reg.wake:
		}
	}
}

func (q *JobQueue) dispatch(ctx context.Context, jobType integration.JobType, reg *registration) {
	free := reg.concurrency - len(reg.slots)
	if free <= 0 || ctx.Err() != nil {
		return
	}

	jobs, err := q.repo.FindDue(ctx, jobType, q.now(), free)
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Error("Failed to load due jobs", zap.String("job_type", string(jobType)), zap.Error(err))
		}
		return
	}

	for i := range jobs {
		job := jobs[i]
		claimed, err := q.repo.Claim(ctx, &job, q.now())
		if err != nil {
			q.logger.Error("Failed to claim job", zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		reg.slots <- struct{}{}
		q.running.Add(1)
		go func() {
			defer func() {
				<-reg.slots
				q.running.Done()
				// a freed slot may have due jobs waiting
				select {
				case reg.wake <- struct{}{}:
				default:
				}
			}()
			q.process(context.WithoutCancel(ctx), &job, reg.handler)
		}()
	}
}

// process runs one claimed attempt and records its outcome
func (q *JobQueue) process(ctx context.Context, job *integration.SyncJob, handler JobHandler) {
	ctx, log := logger.WithJobID(ctx, q.logger, job.ID.String(), string(job.Type))
	ctx, span := telemetry.StartSpan(ctx, "queue."+string(job.Type),
		attribute.String("job.id", job.ID.String()),
		attribute.Int("job.attempt", job.Attempts),
	)
	start := q.now()

	err := q.invoke(ctx, job, handler)
	telemetry.EndSpan(span, err)

	now := q.now()
	status := integration.JobStatusCompleted
	remove := false
	if err == nil {
		job.Complete(now)
		remove = job.RemoveOnComplete
		log.Info("Job completed", zap.Int("attempt", job.Attempts), zap.Duration("duration", now.Sub(start)))
	} else if job.Fail(err, now) {
		status = integration.JobStatusDelayed
		log.Warn("Job attempt failed, retrying",
			zap.Int("attempt", job.Attempts),
			zap.Int("max_attempts", job.MaxAttempts),
			zap.Time("run_at", job.RunAt),
			zap.Error(err),
		)
	} else {
		status = integration.JobStatusFailed
		remove = job.RemoveOnFail
		log.Error("Job failed", zap.Int("attempt", job.Attempts), zap.Error(err))
	}
	q.metrics.RecordJob(ctx, string(job.Type), string(status), now.Sub(start))

	if remove {
		err = q.repo.Delete(ctx, job.ID)
	} else {
		err = q.repo.Update(ctx, job)
	}
	if err != nil {
		log.Error("Failed to record job outcome", zap.String("status", string(status)), zap.Error(err))
	}
}

// invoke calls the handler with the attempt timeout and turns a panic into
// a failed attempt
func (q *JobQueue) invoke(ctx context.Context, job *integration.SyncJob, handler JobHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error("Job handler panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("queue: %s handler panicked: %v", job.Type, r)
		}
	}()

	if q.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.config.JobTimeout)
		defer cancel()
	}

	telemetry.WithJobLabels(ctx, string(job.Type), "", func(ctx context.Context) {
		err = handler(ctx, job)
	})
	return err
}
