package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Resource is an external handle (file, temp dir) the job must release before it ends
type Resource interface {
	Path() string
	Release() error
}

// JobRequest holds the caller supplied parameters of a job
type JobRequest struct {
	Locator  string
	Language string
	Model    string
}

// JobOptions holds registry wide policy applied to every job
type JobOptions struct {
	// KeepPartialOnFailure preserves the transcript accumulated before a failure.
	// Off by default: a failed job reports no transcript.
	KeepPartialOnFailure bool
}

// CancelOutcome describes how a cancellation request was handled
type CancelOutcome string

const (
	CancelAccepted         CancelOutcome = "accepted"
	CancelAlreadyRequested CancelOutcome = "already_requested"
	CancelAlreadyTerminal  CancelOutcome = "already_terminal"
)

// Snapshot is a point-in-time copy of the observable job fields
type Snapshot struct {
	ID              string
	Locator         string
	Language        string
	Model           string
	Status          JobStatus
	Transcript      string
	CurrentSegment  int
	TotalSegments   int
	CancelRequested bool
	ErrorDetail     string
	OwnedResources  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FinishedAt      time.Time
}

// Job is one tracked unit of transcription work.
// Only the runner assigned to the job mutates it, except for cancellation
// which any caller may request. All fields are guarded by mu.
type Job struct {
	id      string
	request JobRequest
	opts    JobOptions
	cancel  *CancelToken
	done    chan struct{}
	now     func() time.Time

	mu             sync.RWMutex
	status         JobStatus
	transcript     strings.Builder
	currentSegment int
	totalSegments  int
	errorDetail    string
	owned          map[string]Resource
	createdAt      time.Time
	updatedAt      time.Time
	finishedAt     time.Time
}

// NewJob creates a job in QUEUED state
func NewJob(id string, req JobRequest, opts JobOptions) *Job {
	now := time.Now().UTC()
	return &Job{
		id:        id,
		request:   req,
		opts:      opts,
		cancel:    NewCancelToken(),
		done:      make(chan struct{}),
		now:       func() time.Time { return time.Now().UTC() },
		status:    JobStatusQueued,
		owned:     make(map[string]Resource),
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the job identifier
func (j *Job) ID() string { return j.id }

// Request returns the parameters the job was created with
func (j *Job) Request() JobRequest { return j.request }

// CancelToken returns the token the runner polls at segment boundaries
func (j *Job) CancelToken() *CancelToken { return j.cancel }

// Done is closed once the job reaches a terminal status
func (j *Job) Done() <-chan struct{} { return j.done }

// Status returns the current status
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Snapshot returns a consistent copy of the observable fields
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return Snapshot{
		ID:              j.id,
		Locator:         j.request.Locator,
		Language:        j.request.Language,
		Model:           j.request.Model,
		Status:          j.status,
		Transcript:      j.transcript.String(),
		CurrentSegment:  j.currentSegment,
		TotalSegments:   j.totalSegments,
		CancelRequested: j.cancel.Requested(),
		ErrorDetail:     j.errorDetail,
		OwnedResources:  len(j.owned),
		CreatedAt:       j.createdAt,
		UpdatedAt:       j.updatedAt,
		FinishedAt:      j.finishedAt,
	}
}

// RequestCancel flags the job for cancellation.
// It is idempotent and a reported no-op on terminal jobs.
func (j *Job) RequestCancel() CancelOutcome {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status.IsTerminal() {
		return CancelAlreadyTerminal
	}
	if !j.cancel.Cancel() {
		return CancelAlreadyRequested
	}
	j.updatedAt = j.now()
	return CancelAccepted
}

// Start moves the job from QUEUED to PROCESSING
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(JobStatusProcessing)
}

// Track records a resource the job now owns
func (j *Job) Track(r Resource) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.owned[r.Path()] = r
}

// Release releases an owned resource and forgets it, even if the release fails
func (j *Job) Release(r Resource) error {
	j.mu.Lock()
	delete(j.owned, r.Path())
	j.mu.Unlock()

	if err := r.Release(); err != nil {
		return fmt.Errorf("release %s: %w", r.Path(), err)
	}
	return nil
}

// SetTotalSegments records the segmentation result
func (j *Job) SetTotalSegments(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.totalSegments = n
	j.updatedAt = j.now()
}

// AppendSegment appends one transcribed segment and advances progress
func (j *Job) AppendSegment(index int, text string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != JobStatusProcessing {
		return fmt.Errorf("%w: append while %s", ErrInvalidTransition, j.status)
	}
	if index != j.currentSegment {
		return fmt.Errorf("segment %d out of order, expected %d", index, j.currentSegment)
	}
	if index >= j.totalSegments {
		return fmt.Errorf("segment %d beyond total %d", index, j.totalSegments)
	}

	j.transcript.WriteString(strings.TrimSpace(text))
	j.transcript.WriteString("\n")
	j.currentSegment = index + 1
	j.updatedAt = j.now()
	return nil
}

// Finish releases every resource still owned and then moves the job to a terminal status.
// cause is recorded as the error detail when status is FAILED. The returned error
// reports cleanup or transition problems; it never replaces cause.
func (j *Job) Finish(status JobStatus, cause error) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}

	j.mu.Lock()
	leftovers := make([]Resource, 0, len(j.owned))
	for _, r := range j.owned {
		leftovers = append(leftovers, r)
	}
	j.mu.Unlock()

	var errs []error
	for _, r := range leftovers {
		if err := j.Release(r); err != nil {
			errs = append(errs, err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(status); err != nil {
		errs = append(errs, err)
		return errors.Join(errs...)
	}

	if status == JobStatusFailed {
		detail := "unknown error"
		if cause != nil {
			detail = cause.Error()
		}
		j.errorDetail = detail
		if !j.opts.KeepPartialOnFailure {
			j.transcript.Reset()
		}
	}
	j.finishedAt = j.updatedAt
	close(j.done)

	return errors.Join(errs...)
}

// FinishedAt returns when the job reached a terminal status, zero otherwise
func (j *Job) FinishedAt() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.finishedAt
}

func (j *Job) transitionLocked(to JobStatus) error {
	if !canTransition(j.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.status, to)
	}
	j.status = to
	j.updatedAt = j.now()
	return nil
}
