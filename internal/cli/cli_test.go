package cli

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/transcribe-service/internal/api/dto"
)

type fakeClient struct {
	mu        sync.Mutex
	created   []dto.CreateJobRequest
	jobs      map[string][]dto.JobDTO // successive snapshots per job
	polls     map[string]int
	cancelled []string
	deleted   []string
	pages     []dto.ListJobsResponse
	statuses  []string
	err       error
}

func newFakeClient() *fakeClient {
	return &fakeClient{jobs: map[string][]dto.JobDTO{}, polls: map[string]int{}}
}

func (f *fakeClient) CreateJob(_ context.Context, req dto.CreateJobRequest) (dto.CreateJobResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return dto.CreateJobResponse{}, f.err
	}
	f.created = append(f.created, req)
	return dto.CreateJobResponse{JobID: "job-1", Status: "QUEUED"}, nil
}

func (f *fakeClient) GetJob(_ context.Context, id string) (dto.JobDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return dto.JobDTO{}, f.err
	}
	snaps := f.jobs[id]
	n := f.polls[id]
	if n >= len(snaps) {
		n = len(snaps) - 1
	}
	f.polls[id]++
	return snaps[n], nil
}

func (f *fakeClient) ListJobs(_ context.Context, status, cursor string, _ int) (dto.ListJobsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	idx := 0
	if cursor != "" {
		idx = len(f.statuses) - 1
	}
	if idx >= len(f.pages) {
		return dto.ListJobsResponse{}, nil
	}
	return f.pages[idx], nil
}

func (f *fakeClient) CancelJob(_ context.Context, id string) (dto.CancelJobResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return dto.CancelJobResponse{JobID: id, Outcome: "accepted", Status: "PROCESSING"}, nil
}

func (f *fakeClient) DeleteJob(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeClient) WaitJob(ctx context.Context, id string, _ time.Duration, onUpdate func(dto.JobDTO)) (dto.JobDTO, error) {
	for {
		job, err := f.GetJob(ctx, id)
		if err != nil {
			return dto.JobDTO{}, err
		}
		if onUpdate != nil {
			onUpdate(job)
		}
		switch job.Status {
		case "DONE", "FAILED", "CANCELLED":
			return job, nil
		}
	}
}

func execute(t *testing.T, fc *fakeClient, args ...string) (string, error) {
	t.Helper()
	app := &appState{
		pollInterval: time.Millisecond,
		newClientFn:  func() jobClient { return fc },
		transcribeFileFn: func(_ context.Context, path string) (string, error) {
			if path == "missing.wav" {
				return "", errors.New("media file not found")
			}
			return "local transcript of " + path, nil
		},
	}
	cmd := newRootCmd(app)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--no-color", "--no-progress"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFileCommand(t *testing.T) {
	out, err := execute(t, newFakeClient(), "file", "clip.webm")
	require.NoError(t, err)
	assert.Equal(t, "local transcript of clip.webm\n", out)

	_, err = execute(t, newFakeClient(), "file", "missing.wav")
	assert.Error(t, err)

	_, err = execute(t, newFakeClient(), "file")
	assert.Error(t, err)
}

func TestSubmitCommand(t *testing.T) {
	fc := newFakeClient()

	out, err := execute(t, fc, "submit", "https://example.com/v", "--language", "zh-Hant", "--model", "base")
	require.NoError(t, err)
	assert.Equal(t, "job-1\n", out)
	require.Len(t, fc.created, 1)
	assert.Equal(t, "zh-Hant", fc.created[0].Language)
	assert.Equal(t, "base", fc.created[0].Model)
}

func TestSubmitCommand_Wait(t *testing.T) {
	fc := newFakeClient()
	fc.jobs["job-1"] = []dto.JobDTO{
		{JobID: "job-1", Status: "QUEUED"},
		{JobID: "job-1", Status: "PROCESSING", CurrentSegment: 1, TotalSegments: 2, Transcript: "a\n"},
		{JobID: "job-1", Status: "DONE", CurrentSegment: 2, TotalSegments: 2, Transcript: "a\nb\n"},
	}

	out, err := execute(t, fc, "submit", "https://example.com/v", "--wait")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out)
}

func TestStatusCommand_WaitFailed(t *testing.T) {
	fc := newFakeClient()
	fc.jobs["job-9"] = []dto.JobDTO{
		{JobID: "job-9", Status: "FAILED", Error: "transcription of segment 1: 503"},
	}

	_, err := execute(t, fc, "status", "job-9", "--wait")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcription of segment 1: 503")
}

func TestStatusCommand_WaitCancelled(t *testing.T) {
	fc := newFakeClient()
	fc.jobs["job-3"] = []dto.JobDTO{
		{JobID: "job-3", Status: "CANCELLED", CurrentSegment: 1, TotalSegments: 3, Transcript: "first\n"},
	}

	out, err := execute(t, fc, "status", "job-3", "--wait")
	require.NoError(t, err)
	assert.Equal(t, "first\n", out)
}

func TestStatusCommand(t *testing.T) {
	fc := newFakeClient()
	fc.jobs["job-2"] = []dto.JobDTO{
		{JobID: "job-2", Status: "PROCESSING", CurrentSegment: 1, TotalSegments: 4, Transcript: "x\n"},
	}

	out, err := execute(t, fc, "status", "job-2")
	require.NoError(t, err)
	assert.Contains(t, out, "job-2 PROCESSING 1/4")
	assert.Contains(t, out, "x\n")
}

func TestStatusCommand_ClientError(t *testing.T) {
	fc := newFakeClient()
	fc.err = errors.New("connection refused")

	_, err := execute(t, fc, "status", "job-2")
	assert.EqualError(t, err, "connection refused")
}

func TestCancelCommand(t *testing.T) {
	fc := newFakeClient()

	out, err := execute(t, fc, "cancel", "job-5")
	require.NoError(t, err)
	assert.Equal(t, []string{"job-5"}, fc.cancelled)
	assert.Contains(t, out, "job-5 accepted (PROCESSING)")
}

func TestDeleteCommand(t *testing.T) {
	fc := newFakeClient()

	out, err := execute(t, fc, "delete", "job-5")
	require.NoError(t, err)
	assert.Equal(t, []string{"job-5"}, fc.deleted)
	assert.Equal(t, "job-5 deleted\n", out)
}

func TestJobsCommand(t *testing.T) {
	fc := newFakeClient()
	fc.pages = []dto.ListJobsResponse{
		{Jobs: []dto.JobDTO{{JobID: "job-a", Status: "DONE", Locator: "https://a"}}, NextCursor: "c1"},
		{Jobs: []dto.JobDTO{{JobID: "job-b", Status: "FAILED", Locator: "/uploads/b.webm"}}},
	}

	out, err := execute(t, fc, "jobs", "--status", "DONE")
	require.NoError(t, err)
	assert.Contains(t, out, "job-a")
	assert.Contains(t, out, "job-b")
	assert.Equal(t, []string{"DONE", "DONE"}, fc.statuses)
}

func TestJobsCommand_Empty(t *testing.T) {
	out, err := execute(t, newFakeClient(), "jobs")
	require.NoError(t, err)
	assert.Equal(t, "No jobs found.\n", out)
}
