package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/transcribe-service/internal/domain"
)

// scriptedRunner mimics the pipeline: it waits on acquire before touching segments,
// then waits on step to reach each segment boundary where it checks the cancel token.
type scriptedRunner struct {
	segments []string
	acquire  chan struct{}
	step     chan struct{}
	panicMsg string
}

func newScriptedRunner(segments ...string) *scriptedRunner {
	return &scriptedRunner{
		segments: segments,
		acquire:  make(chan struct{}),
		step:     make(chan struct{}),
	}
}

// open lets every job run without pausing
func (s *scriptedRunner) open() {
	close(s.acquire)
	close(s.step)
}

func (s *scriptedRunner) Run(ctx context.Context, job *domain.Job) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if err := job.Start(); err != nil {
		return
	}

	select {
	case <-s.acquire:
	case <-ctx.Done():
		s.Finish(ctx, job, domain.JobStatusFailed, ctx.Err())
		return
	}

	job.SetTotalSegments(len(s.segments))
	for i, text := range s.segments {
		select {
		case <-s.step:
		case <-ctx.Done():
			s.Finish(ctx, job, domain.JobStatusFailed, ctx.Err())
			return
		}
		if job.CancelToken().Requested() {
			s.Finish(ctx, job, domain.JobStatusCancelled, nil)
			return
		}
		if err := job.AppendSegment(i, text); err != nil {
			s.Finish(ctx, job, domain.JobStatusFailed, err)
			return
		}
	}
	s.Finish(ctx, job, domain.JobStatusDone, nil)
}

func (s *scriptedRunner) Finish(ctx context.Context, job *domain.Job, status domain.JobStatus, cause error) {
	_ = job.Finish(status, cause)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitDone(t *testing.T, r *Registry, id string) domain.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := r.Wait(ctx, id)
	require.NoError(t, err)
	return snap
}

func TestRegistry_CreateAndPoll(t *testing.T) {
	runner := newScriptedRunner("hello", "world")
	r := New(runner, Config{}, discardLogger())

	id, err := r.Create(context.Background(), domain.JobRequest{Locator: "https://example.com/a"})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "job ids are UUIDs")

	snap, err := r.Get(id)
	require.NoError(t, err)
	assert.Contains(t, []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusProcessing}, snap.Status)

	runner.open()
	final := waitDone(t, r, id)
	assert.Equal(t, domain.JobStatusDone, final.Status)
	assert.Equal(t, "hello\nworld\n", final.Transcript)
	assert.Equal(t, 2, final.CurrentSegment)
}

func TestRegistry_UnknownID(t *testing.T) {
	r := New(newScriptedRunner(), Config{}, discardLogger())

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	_, err = r.RequestCancel("missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	assert.ErrorIs(t, r.Evict("missing"), domain.ErrJobNotFound)

	_, err = r.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestRegistry_CancelBeforeFirstSegment(t *testing.T) {
	runner := newScriptedRunner("never")
	r := New(runner, Config{}, discardLogger())

	id, err := r.Create(context.Background(), domain.JobRequest{Locator: "x"})
	require.NoError(t, err)

	outcome, err := r.RequestCancel(id)
	require.NoError(t, err)
	assert.Equal(t, domain.CancelAccepted, outcome)

	runner.open()
	snap := waitDone(t, r, id)
	assert.Equal(t, domain.JobStatusCancelled, snap.Status)
	assert.Equal(t, "", snap.Transcript)
}

func TestRegistry_CancelMidRun(t *testing.T) {
	runner := newScriptedRunner("one", "two", "three")
	r := New(runner, Config{}, discardLogger())

	id, err := r.Create(context.Background(), domain.JobRequest{Locator: "x"})
	require.NoError(t, err)
	close(runner.acquire)

	runner.step <- struct{}{}
	require.Eventually(t, func() bool {
		snap, _ := r.Get(id)
		return snap.CurrentSegment == 1
	}, time.Second, 5*time.Millisecond)

	_, err = r.RequestCancel(id)
	require.NoError(t, err)
	runner.step <- struct{}{}

	snap := waitDone(t, r, id)
	assert.Equal(t, domain.JobStatusCancelled, snap.Status)
	assert.Equal(t, "one\n", snap.Transcript)
}

func TestRegistry_CancelIsIdempotent(t *testing.T) {
	runner := newScriptedRunner("a")
	r := New(runner, Config{}, discardLogger())

	id, err := r.Create(context.Background(), domain.JobRequest{Locator: "x"})
	require.NoError(t, err)

	first, err := r.RequestCancel(id)
	require.NoError(t, err)
	second, err := r.RequestCancel(id)
	require.NoError(t, err)

	assert.Equal(t, domain.CancelAccepted, first)
	assert.Equal(t, domain.CancelAlreadyRequested, second)

	runner.open()
	snap := waitDone(t, r, id)
	assert.Equal(t, domain.JobStatusCancelled, snap.Status)

	third, err := r.RequestCancel(id)
	require.NoError(t, err)
	assert.Equal(t, domain.CancelAlreadyTerminal, third)
	assert.Equal(t, domain.JobStatusCancelled, snap.Status)
}

func TestRegistry_MaxActiveJobs(t *testing.T) {
	runner := newScriptedRunner("a")
	r := New(runner, Config{MaxActiveJobs: 2}, discardLogger())

	first, err := r.Create(context.Background(), domain.JobRequest{Locator: "1"})
	require.NoError(t, err)
	_, err = r.Create(context.Background(), domain.JobRequest{Locator: "2"})
	require.NoError(t, err)

	_, err = r.Create(context.Background(), domain.JobRequest{Locator: "3"})
	assert.ErrorIs(t, err, domain.ErrTooManyJobs)

	runner.open()
	waitDone(t, r, first)
	require.Eventually(t, func() bool { return r.Active() < 2 }, time.Second, 5*time.Millisecond)

	_, err = r.Create(context.Background(), domain.JobRequest{Locator: "4"})
	assert.NoError(t, err)
}

func TestRegistry_Evict(t *testing.T) {
	runner := newScriptedRunner("a")
	r := New(runner, Config{}, discardLogger())

	id, err := r.Create(context.Background(), domain.JobRequest{Locator: "x"})
	require.NoError(t, err)

	assert.ErrorIs(t, r.Evict(id), domain.ErrJobActive)

	runner.open()
	waitDone(t, r, id)

	require.NoError(t, r.Evict(id))
	_, err = r.Get(id)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestRegistry_Sweep(t *testing.T) {
	runner := newScriptedRunner("a")
	runner.open()
	r := New(runner, Config{Retention: time.Hour}, discardLogger())

	id, err := r.Create(context.Background(), domain.JobRequest{Locator: "x"})
	require.NoError(t, err)
	snap := waitDone(t, r, id)

	assert.Zero(t, r.Sweep(snap.FinishedAt.Add(30*time.Minute)))
	_, err = r.Get(id)
	require.NoError(t, err)

	assert.Equal(t, 1, r.Sweep(snap.FinishedAt.Add(2*time.Hour)))
	_, err = r.Get(id)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestRegistry_PanicFailsJob(t *testing.T) {
	runner := newScriptedRunner()
	runner.panicMsg = "decoder exploded"
	r := New(runner, Config{}, discardLogger())

	id, err := r.Create(context.Background(), domain.JobRequest{Locator: "x"})
	require.NoError(t, err)

	snap := waitDone(t, r, id)
	assert.Equal(t, domain.JobStatusFailed, snap.Status)
	assert.Contains(t, snap.ErrorDetail, "decoder exploded")
}

func TestRegistry_ListFilter(t *testing.T) {
	runner := newScriptedRunner("a")
	r := New(runner, Config{}, discardLogger())

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := r.Create(context.Background(), domain.JobRequest{Locator: fmt.Sprintf("src-%d", i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := r.RequestCancel(ids[0])
	require.NoError(t, err)

	runner.open()
	for _, id := range ids {
		waitDone(t, r, id)
	}

	assert.Len(t, r.List(Filter{}), 3)
	cancelled := r.List(Filter{Status: domain.JobStatusCancelled})
	require.Len(t, cancelled, 1)
	assert.Equal(t, ids[0], cancelled[0].ID)
	assert.Len(t, r.List(Filter{Status: domain.JobStatusDone}), 2)
}

func TestRegistry_Shutdown(t *testing.T) {
	runner := newScriptedRunner("a")
	r := New(runner, Config{}, discardLogger())

	id, err := r.Create(context.Background(), domain.JobRequest{Locator: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	snap, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, snap.Status)
	assert.Contains(t, snap.ErrorDetail, "context canceled")

	_, err = r.Create(context.Background(), domain.JobRequest{Locator: "y"})
	assert.Error(t, err)
}

func TestRegistry_StartJanitorAfterShutdown(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	r := New(newScriptedRunner(), Config{Retention: time.Hour, SweepInterval: time.Millisecond}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	assert.NotPanics(t, func() { r.StartJanitor(context.Background()) })
	assert.Contains(t, logs.String(), "Janitor not started")
	require.NoError(t, r.Shutdown(ctx))
}

func TestRegistry_StartJanitorRacingShutdown(t *testing.T) {
	for i := 0; i < 50; i++ {
		r := New(newScriptedRunner(), Config{Retention: time.Hour, SweepInterval: time.Millisecond}, discardLogger())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.StartJanitor(context.Background())
		}()
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			assert.NoError(t, r.Shutdown(ctx))
		}()
		wg.Wait()

		// a janitor that won the race still exits on shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, r.Shutdown(ctx))
		cancel()
	}
}

func TestRegistry_ConcurrentCallers(t *testing.T) {
	runner := newScriptedRunner("x", "y")
	runner.open()
	r := New(runner, Config{}, discardLogger())

	var wg sync.WaitGroup
	ids := make(chan string, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Create(context.Background(), domain.JobRequest{Locator: fmt.Sprintf("src-%d", i)})
			if !assert.NoError(t, err) {
				return
			}
			ids <- id
			for j := 0; j < 5; j++ {
				snap, err := r.Get(id)
				assert.NoError(t, err)
				assert.LessOrEqual(t, len(snap.Transcript), len("x\ny\n"))
				if i%2 == 0 {
					_, err = r.RequestCancel(id)
					assert.NoError(t, err)
				}
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "ids are never reused")
		seen[id] = true
		snap := waitDone(t, r, id)
		assert.True(t, snap.Status.IsTerminal())
		if snap.Status == domain.JobStatusDone {
			assert.Equal(t, "x\ny\n", snap.Transcript)
		}
	}
	assert.Len(t, seen, 40)
}
