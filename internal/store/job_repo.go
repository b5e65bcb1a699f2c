package store

import (
	"context"
	"errors"
	"time"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// DefaultMaxAttempts bounds how often a failing job is retried.
const DefaultMaxAttempts = 3

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Job is a unit of deferred work, such as a reminder, that survives restarts.
type Job struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	RunAt       time.Time  `json:"run_at"`
	PayloadJSON string     `json:"payload_json"`
	Status      JobStatus  `json:"status"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error,omitempty"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
	DedupeKey   string     `json:"dedupe_key,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Terminal reports whether the job will never run again.
func (j Job) Terminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed || j.Status == JobStatusCanceled
}

// JobRepo persists durable jobs.
type JobRepo interface {
	// EnqueueJob inserts a new job. If dedupeKey is non-empty and a
	// non-terminal job with that key exists, its id is returned instead.
	EnqueueJob(ctx context.Context, kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error)

	// ClaimDueJobs marks up to limit queued jobs with run_at <= now as
	// running and returns them.
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error)

	// CompleteJob marks a job as done.
	CompleteJob(ctx context.Context, id string) error

	// FailJob records errMsg and requeues the job at nextRunAt, or marks it
	// failed once its attempts are used up.
	FailJob(ctx context.Context, id string, errMsg string, nextRunAt time.Time) error

	// CancelJob marks a non-terminal job as canceled.
	CancelJob(ctx context.Context, id string) error

	// RequeueStaleRunningJobs returns jobs locked before staleBefore to the
	// queue, recovering work interrupted by a crash.
	RequeueStaleRunningJobs(ctx context.Context, staleBefore time.Time) (int, error)

	// GetJob retrieves a job by id, or ErrJobNotFound.
	GetJob(ctx context.Context, id string) (*Job, error)
}
