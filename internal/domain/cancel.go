package domain

import (
	"sync"
	"sync/atomic"
)

// CancelToken carries a cooperative cancellation request to a job runner.
// The runner only looks at it between segments, so a request takes effect
// within one segment's transcription latency.
type CancelToken struct {
	requested atomic.Bool
	once      sync.Once
	ch        chan struct{}
}

// NewCancelToken returns a token that has not been cancelled
func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Cancel sets the token and reports whether this call was the one that set it
func (t *CancelToken) Cancel() bool {
	first := false
	t.once.Do(func() {
		first = true
		t.requested.Store(true)
		close(t.ch)
	})
	return first
}

// Requested reports whether cancellation was requested
func (t *CancelToken) Requested() bool {
	return t.requested.Load()
}

// Signal is closed when cancellation is requested
func (t *CancelToken) Signal() <-chan struct{} {
	return t.ch
}
