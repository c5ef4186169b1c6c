// Package registry tracks every job of the process and owns the goroutines running them.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/transcribe-service/internal/domain"
)

// Runner executes one job to completion
type Runner interface {
	Run(ctx context.Context, job *domain.Job)
	Finish(ctx context.Context, job *domain.Job, status domain.JobStatus, cause error)
}

// Config holds registry limits
type Config struct {
	// MaxActiveJobs caps non-terminal jobs; 0 means unlimited
	MaxActiveJobs int
	// Retention is how long terminal jobs stay visible; 0 keeps them until evicted
	Retention     time.Duration
	SweepInterval time.Duration
	Options       domain.JobOptions
}

// Filter narrows List results
type Filter struct {
	Status domain.JobStatus
}

// Registry maps job ids to jobs. The map has its own lock; each job guards its own state.
type Registry struct {
	runner Runner
	config Config
	logger *slog.Logger
	newID  func() string

	mu   sync.RWMutex
	jobs map[string]*domain.Job

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New creates a registry. Jobs run under a context that Shutdown cancels.
func New(runner Runner, config Config, logger *slog.Logger) *Registry {
	ctx, stop := context.WithCancel(context.Background())
	return &Registry{
		runner: runner,
		config: config,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
		jobs:   make(map[string]*domain.Job),
		ctx:    ctx,
		stop:   stop,
	}
}

// Create registers a job and starts it on its own goroutine. It never waits for the job.
func (r *Registry) Create(ctx context.Context, req domain.JobRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", fmt.Errorf("registry is shut down")
	}
	if r.config.MaxActiveJobs > 0 && r.activeLocked() >= r.config.MaxActiveJobs {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: limit is %d", domain.ErrTooManyJobs, r.config.MaxActiveJobs)
	}

	id := r.newID()
	for _, exists := r.jobs[id]; exists; _, exists = r.jobs[id] {
		id = r.newID()
	}
	job := domain.NewJob(id, req, r.config.Options)
	r.jobs[id] = job
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info("Job created",
		slog.String("job_id", id),
		slog.String("locator", req.Locator),
	)

	go r.run(job)
	return id, nil
}

// run is the task wrapper around the runner: it recovers panics and always ends the job
func (r *Registry) run(job *domain.Job) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Job panicked",
				slog.String("job_id", job.ID()),
				slog.Any("panic", rec),
			)
			if job.Status() == domain.JobStatusQueued {
				_ = job.Start()
			}
			if !job.Status().IsTerminal() {
				r.runner.Finish(r.ctx, job, domain.JobStatusFailed, fmt.Errorf("internal error: %v", rec))
			}
		}
	}()

	r.runner.Run(r.ctx, job)
}

// Get returns a consistent snapshot of the job
func (r *Registry) Get(id string) (domain.Snapshot, error) {
	job, err := r.lookup(id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return job.Snapshot(), nil
}

// List returns snapshots ordered by creation time
func (r *Registry) List(filter Filter) []domain.Snapshot {
	r.mu.RLock()
	jobs := make([]*domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	r.mu.RUnlock()

	out := make([]domain.Snapshot, 0, len(jobs))
	for _, job := range jobs {
		snap := job.Snapshot()
		if filter.Status != "" && snap.Status != filter.Status {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// RequestCancel flags the job for cancellation at its next segment boundary
func (r *Registry) RequestCancel(id string) (domain.CancelOutcome, error) {
	job, err := r.lookup(id)
	if err != nil {
		return "", err
	}

	outcome := job.RequestCancel()
	r.logger.Info("Job cancellation requested",
		slog.String("job_id", id),
		slog.String("outcome", string(outcome)),
	)
	return outcome, nil
}

// Wait blocks until the job is terminal or ctx ends
func (r *Registry) Wait(ctx context.Context, id string) (domain.Snapshot, error) {
	job, err := r.lookup(id)
	if err != nil {
		return domain.Snapshot{}, err
	}

	select {
	case <-job.Done():
		return job.Snapshot(), nil
	case <-ctx.Done():
		return job.Snapshot(), ctx.Err()
	}
}

// Evict forgets a terminal job
func (r *Registry) Evict(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if !job.Status().IsTerminal() {
		return fmt.Errorf("%w: %s", domain.ErrJobActive, id)
	}
	delete(r.jobs, id)
	return nil
}

// Sweep evicts terminal jobs that finished before now minus the retention period
func (r *Registry) Sweep(now time.Time) int {
	if r.config.Retention <= 0 {
		return 0
	}
	cutoff := now.Add(-r.config.Retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, job := range r.jobs {
		finished := job.FinishedAt()
		if finished.IsZero() || finished.After(cutoff) {
			continue
		}
		delete(r.jobs, id)
		evicted++
	}
	return evicted
}

// StartJanitor sweeps expired jobs every SweepInterval until ctx ends
func (r *Registry) StartJanitor(ctx context.Context) {
	if r.config.Retention <= 0 {
		return
	}
	interval := r.config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("Janitor not started, registry is shut down")
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.ctx.Done():
				return
			case now := <-ticker.C:
				if n := r.Sweep(now); n > 0 {
					r.logger.Info("Expired jobs evicted", slog.Int("count", n))
				}
			}
		}
	}()
}

// Shutdown stops accepting jobs, cancels the running ones and waits for their cleanup
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("All jobs stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for jobs to stop: %w", ctx.Err())
	}
}

// Active returns the number of non-terminal jobs
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked()
}

func (r *Registry) activeLocked() int {
	n := 0
	for _, job := range r.jobs {
		if !job.Status().IsTerminal() {
			n++
		}
	}
	return n
}

func (r *Registry) lookup(id string) (*domain.Job, error) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return job, nil
}
