package scheduler

import "errors"

var (
	// ErrSchedulerRunning is returned when registering a handler on a started queue
	ErrSchedulerRunning = errors.New("scheduler: queue already running")

	// ErrQueueDisabled is returned when a job is enqueued while the queue is disabled
	ErrQueueDisabled = errors.New("scheduler: queue is disabled")
)
