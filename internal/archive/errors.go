package archive

import "errors"

// ErrInvalidEvent is returned for messages that can never be archived
var ErrInvalidEvent = errors.New("invalid job event")

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// shouldRequeue reports whether a failed delivery is worth another attempt
func shouldRequeue(err error) bool {
	if errors.Is(err, ErrInvalidEvent) {
		return false
	}
	var retryable *RetryableError
	return errors.As(err, &retryable)
}
