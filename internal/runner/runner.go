// Package runner drives one job through acquire, segment, transcribe and aggregate.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/transcribe-service/internal/domain"
	"github.com/cuongbtq/transcribe-service/internal/events"
	"github.com/cuongbtq/transcribe-service/internal/segment"
	"github.com/cuongbtq/transcribe-service/internal/transcribe"
)

// Resolver turns a locator into a local source the runner owns
type Resolver interface {
	Resolve(ctx context.Context, locator string) (domain.Resource, error)
}

// Planner lays out the segments of a source
type Planner interface {
	Plan(ctx context.Context, source domain.Resource, maxDuration time.Duration) (*segment.Plan, error)
}

// Transcriber turns one segment into text
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (string, error)
}

// Config holds the runner limits. Zero timeouts disable the matching deadline.
type Config struct {
	MaxSegmentDuration time.Duration
	AcquireTimeout     time.Duration
	SegmentTimeout     time.Duration
	TranscribeTimeout  time.Duration
}

// Runner executes jobs. It is safe to run many jobs concurrently;
// the segments of one job are always processed in order.
type Runner struct {
	resolver    Resolver
	planner     Planner
	transcriber Transcriber
	publisher   events.Publisher
	config      Config
	logger      *slog.Logger
}

// New creates a runner. A nil publisher drops events.
func New(resolver Resolver, planner Planner, transcriber Transcriber, publisher events.Publisher, config Config, logger *slog.Logger) *Runner {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if config.MaxSegmentDuration <= 0 {
		config.MaxSegmentDuration = segment.DefaultMaxDuration
	}
	return &Runner{
		resolver:    resolver,
		planner:     planner,
		transcriber: transcriber,
		publisher:   publisher,
		config:      config,
		logger:      logger,
	}
}

// Run processes job until it reaches a terminal status.
// Cancellation is read from the job's token at segment boundaries only;
// ctx is reserved for shutdown and bounds every external call.
func (r *Runner) Run(ctx context.Context, job *domain.Job) {
	logger := r.logger.With(slog.String("job_id", job.ID()))

	if err := job.Start(); err != nil {
		logger.Error("Failed to start job", slog.Any("error", err))
		return
	}
	logger.Info("Job started",
		slog.String("locator", job.Request().Locator),
		slog.String("language", job.Request().Language),
	)
	r.publish(ctx, events.TypeProcessing, job, logger)

	status, cause := r.execute(ctx, job, logger)
	r.Finish(ctx, job, status, cause)
}

// Finish moves job to a terminal status, logs the outcome and publishes the terminal event.
// Cleanup problems are logged; they never replace cause.
func (r *Runner) Finish(ctx context.Context, job *domain.Job, status domain.JobStatus, cause error) {
	logger := r.logger.With(slog.String("job_id", job.ID()))

	if err := job.Finish(status, cause); err != nil {
		logger.Warn("Job cleanup reported errors", slog.Any("error", err))
	}

	snap := job.Snapshot()
	switch snap.Status {
	case domain.JobStatusDone:
		logger.Info("Job completed successfully",
			slog.Int("segments", snap.TotalSegments),
			slog.Int("transcript_chars", len(snap.Transcript)),
		)
	case domain.JobStatusCancelled:
		logger.Info("Job cancelled",
			slog.Int("completed_segments", snap.CurrentSegment),
			slog.Int("total_segments", snap.TotalSegments),
		)
	case domain.JobStatusFailed:
		logger.Error("Job failed",
			slog.String("stage", domain.Stage(cause)),
			slog.String("error", snap.ErrorDetail),
			slog.Int("completed_segments", snap.CurrentSegment),
		)
	}

	if t, ok := events.TypeForStatus(snap.Status); ok {
		r.publishSnapshot(context.WithoutCancel(ctx), t, snap, logger)
	}
}

func (r *Runner) execute(ctx context.Context, job *domain.Job, logger *slog.Logger) (domain.JobStatus, error) {
	token := job.CancelToken()
	req := job.Request()

	if token.Requested() {
		return domain.JobStatusCancelled, nil
	}

	source, err := r.acquire(ctx, req.Locator)
	if err != nil {
		return domain.JobStatusFailed, err
	}
	job.Track(source)
	defer func() {
		if err := job.Release(source); err != nil {
			logger.Warn("Failed to release source", slog.Any("error", err))
		}
	}()

	plan, err := r.plan(ctx, source)
	if err != nil {
		return domain.JobStatusFailed, err
	}
	job.SetTotalSegments(plan.Len())
	logger.Info("Source segmented",
		slog.Duration("duration", plan.Duration()),
		slog.Int("segments", plan.Len()),
	)
	r.publish(ctx, events.TypeProgress, job, logger)

	cursor := plan.Cursor()
	for cursor.Position() < plan.Len() {
		// Boundary check; once the last segment has started the job completes.
		if token.Requested() {
			return domain.JobStatusCancelled, nil
		}
		if err := ctx.Err(); err != nil {
			return domain.JobStatusFailed, fmt.Errorf("job interrupted: %w", err)
		}

		if err := r.processSegment(ctx, job, cursor, logger); err != nil {
			return domain.JobStatusFailed, err
		}
		r.publish(ctx, events.TypeProgress, job, logger)
	}

	return domain.JobStatusDone, nil
}

func (r *Runner) processSegment(ctx context.Context, job *domain.Job, cursor *segment.Cursor, logger *slog.Logger) error {
	seg, ok, err := r.next(ctx, cursor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("segment %d missing from plan", cursor.Position())
	}
	job.Track(seg.Handle)

	req := job.Request()
	text, err := r.transcribe(ctx, transcribe.Request{
		Audio:    seg.Handle,
		Language: req.Language,
		Model:    req.Model,
		Segment:  seg.Index,
	})

	if releaseErr := job.Release(seg.Handle); releaseErr != nil {
		logger.Warn("Failed to release segment",
			slog.Int("segment", seg.Index),
			slog.Any("error", releaseErr),
		)
	}
	if err != nil {
		return err
	}

	if err := job.AppendSegment(seg.Index, text); err != nil {
		return fmt.Errorf("append segment %d: %w", seg.Index, err)
	}

	logger.Debug("Segment appended",
		slog.Int("segment", seg.Index),
		slog.Duration("start", seg.Range.Start),
		slog.Duration("length", seg.Range.Length),
	)
	return nil
}

// TranscribeSource runs the segment and transcribe stages for a single source
// without a job. It takes ownership of source and releases it before returning.
// The result is the trimmed concatenation of the segment texts.
func (r *Runner) TranscribeSource(ctx context.Context, source domain.Resource, language, model string) (text string, err error) {
	defer func() {
		if releaseErr := source.Release(); releaseErr != nil {
			r.logger.Warn("Failed to release source",
				slog.String("path", source.Path()),
				slog.Any("error", releaseErr),
			)
		}
	}()

	plan, err := r.plan(ctx, source)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	cursor := plan.Cursor()
	for {
		seg, ok, err := r.next(ctx, cursor)
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}

		part, err := r.transcribe(ctx, transcribe.Request{
			Audio:    seg.Handle,
			Language: language,
			Model:    model,
			Segment:  seg.Index,
		})
		if releaseErr := seg.Handle.Release(); releaseErr != nil {
			r.logger.Warn("Failed to release segment",
				slog.Int("segment", seg.Index),
				slog.Any("error", releaseErr),
			)
		}
		if err != nil {
			return "", err
		}

		sb.WriteString(strings.TrimSpace(part))
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String()), nil
}

func (r *Runner) acquire(ctx context.Context, locator string) (domain.Resource, error) {
	ctx, cancel := withTimeout(ctx, r.config.AcquireTimeout)
	defer cancel()

	source, err := r.resolver.Resolve(ctx, locator)
	if err != nil {
		var acqErr *domain.AcquisitionError
		if errors.As(err, &acqErr) {
			return nil, err
		}
		return nil, &domain.AcquisitionError{Locator: locator, Err: err}
	}
	return source, nil
}

func (r *Runner) plan(ctx context.Context, source domain.Resource) (*segment.Plan, error) {
	ctx, cancel := withTimeout(ctx, r.config.SegmentTimeout)
	defer cancel()

	return r.planner.Plan(ctx, source, r.config.MaxSegmentDuration)
}

func (r *Runner) next(ctx context.Context, cursor *segment.Cursor) (segment.Segment, bool, error) {
	ctx, cancel := withTimeout(ctx, r.config.SegmentTimeout)
	defer cancel()

	return cursor.Next(ctx)
}

func (r *Runner) transcribe(ctx context.Context, req transcribe.Request) (string, error) {
	ctx, cancel := withTimeout(ctx, r.config.TranscribeTimeout)
	defer cancel()

	return r.transcriber.Transcribe(ctx, req)
}

func (r *Runner) publish(ctx context.Context, t events.Type, job *domain.Job, logger *slog.Logger) {
	r.publishSnapshot(ctx, t, job.Snapshot(), logger)
}

func (r *Runner) publishSnapshot(ctx context.Context, t events.Type, snap domain.Snapshot, logger *slog.Logger) {
	if err := r.publisher.Publish(ctx, events.FromSnapshot(t, snap)); err != nil {
		logger.Warn("Failed to publish job event",
			slog.String("type", string(t)),
			slog.Any("error", err),
		)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
