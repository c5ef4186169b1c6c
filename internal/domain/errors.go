package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job id is unknown to the registry
	ErrJobNotFound = errors.New("job not found")

	// ErrJobActive is returned when an operation needs a terminal job
	ErrJobActive = errors.New("job is still active")

	// ErrTooManyJobs is returned when the registry refuses new work
	ErrTooManyJobs = errors.New("too many active jobs")

	// ErrCancellationMisuse is reserved for invalid use of the cancel token.
	// Cancelling a job is never an error by itself.
	ErrCancellationMisuse = errors.New("invalid cancellation request")

	// ErrInvalidTransition is returned when the state machine rejects a move
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// AcquisitionError reports that the source media could not be fetched or read
type AcquisitionError struct {
	Locator string
	Err     error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %q: %v", e.Locator, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// SegmentationError reports that the source duration could not be determined or split
type SegmentationError struct {
	Reason string
	Err    error
}

func (e *SegmentationError) Error() string {
	if e.Err == nil {
		return "segmentation: " + e.Reason
	}
	return fmt.Sprintf("segmentation: %s: %v", e.Reason, e.Err)
}

func (e *SegmentationError) Unwrap() error {
	return e.Err
}

// TranscriptionError wraps an engine failure for one segment
type TranscriptionError struct {
	Segment int
	Err     error
}

func (e *TranscriptionError) Error() string {
	if e.Segment < 0 {
		return fmt.Sprintf("transcription: %v", e.Err)
	}
	return fmt.Sprintf("transcription of segment %d: %v", e.Segment, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// Stage names the pipeline stage an error belongs to, for logs and events
func Stage(err error) string {
	var acqErr *AcquisitionError
	var segErr *SegmentationError
	var trErr *TranscriptionError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &acqErr):
		return "acquisition"
	case errors.As(err, &segErr):
		return "segmentation"
	case errors.As(err, &trErr):
		return "transcription"
	default:
		return "internal"
	}
}
