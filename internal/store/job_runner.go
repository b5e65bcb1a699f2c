package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job runner defaults
const (
	DefaultPollInterval   = 10 * time.Second
	DefaultStaleThreshold = 5 * time.Minute
	DefaultClaimLimit     = 10
)

// JobHandler executes a job's payload.
type JobHandler func(ctx context.Context, payload string) error

// RunnerOpts holds configuration options for a JobRunner.
type RunnerOpts struct {
	PollInterval   time.Duration
	StaleThreshold time.Duration
	ClaimLimit     int
}

// RunnerOption defines a configuration option for a JobRunner.
type RunnerOption func(*RunnerOpts)

// WithPollInterval sets how often due jobs are claimed.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(o *RunnerOpts) {
		o.PollInterval = d
	}
}

// WithStaleThreshold sets how long a running job may stay locked before it
// is considered abandoned.
func WithStaleThreshold(d time.Duration) RunnerOption {
	return func(o *RunnerOpts) {
		o.StaleThreshold = d
	}
}

// JobRunner periodically claims due jobs and dispatches them to handlers by kind.
type JobRunner struct {
	repo     JobRepo
	handlers map[string]JobHandler
	mu       sync.RWMutex
	opts     RunnerOpts
}

// NewJobRunner creates a new JobRunner.
func NewJobRunner(repo JobRepo, opts ...RunnerOption) *JobRunner {
	o := RunnerOpts{
		PollInterval:   DefaultPollInterval,
		StaleThreshold: DefaultStaleThreshold,
		ClaimLimit:     DefaultClaimLimit,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ClaimLimit <= 0 {
		o.ClaimLimit = DefaultClaimLimit
	}
	return &JobRunner{
		repo:     repo,
		handlers: make(map[string]JobHandler),
		opts:     o,
	}
}

// RegisterHandler registers a handler for a job kind.
func (r *JobRunner) RegisterHandler(kind string, handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
	slog.Debug("JobRunner.RegisterHandler", "kind", kind)
}

// RecoverStaleJobs requeues jobs that were running when the process died.
// Call it once at startup.
func (r *JobRunner) RecoverStaleJobs(ctx context.Context) error {
	n, err := r.repo.RequeueStaleRunningJobs(ctx, time.Now().UTC().Add(-r.opts.StaleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("JobRunner.RecoverStaleJobs: requeued stale jobs", "count", n)
	}
	return nil
}

// Run polls for due jobs until ctx is done.
func (r *JobRunner) Run(ctx context.Context) error {
	slog.Info("JobRunner.Run: starting job runner", "pollInterval", r.opts.PollInterval)

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("JobRunner.Run: stopping")
			return nil
		case <-ticker.C:
			r.Poll(ctx)
		}
	}
}

// Poll runs every job due now. It returns the number of jobs claimed.
func (r *JobRunner) Poll(ctx context.Context) int {
	now := time.Now().UTC()
	jobs, err := r.repo.ClaimDueJobs(ctx, now, r.opts.ClaimLimit)
	if err != nil {
		slog.Error("JobRunner.Poll: claim failed", "error", err)
		return 0
	}

	for _, job := range jobs {
		r.mu.RLock()
		handler, ok := r.handlers[job.Kind]
		r.mu.RUnlock()

		if !ok {
			slog.Warn("JobRunner.Poll: no handler for job kind", "kind", job.Kind, "id", job.ID)
			if err := r.repo.FailJob(ctx, job.ID, "no handler registered for kind: "+job.Kind, now.Add(time.Minute)); err != nil {
				slog.Error("JobRunner.Poll: fail job error", "id", job.ID, "error", err)
			}
			continue
		}

		slog.Debug("JobRunner.Poll: executing job", "id", job.ID, "kind", job.Kind, "attempt", job.Attempt)
		if err := handler(ctx, job.PayloadJSON); err != nil {
			slog.Error("JobRunner.Poll: job execution failed", "id", job.ID, "kind", job.Kind, "error", err)
			// 30s, 60s, 120s, ...
			backoff := time.Duration(30*(1<<job.Attempt)) * time.Second
			if err := r.repo.FailJob(ctx, job.ID, err.Error(), now.Add(backoff)); err != nil {
				slog.Error("JobRunner.Poll: fail job error", "id", job.ID, "error", err)
			}
			continue
		}
		if err := r.repo.CompleteJob(ctx, job.ID); err != nil {
			slog.Error("JobRunner.Poll: complete job error", "id", job.ID, "error", err)
		}
		slog.Debug("JobRunner.Poll: job completed", "id", job.ID, "kind", job.Kind)
	}
	return len(jobs)
}
