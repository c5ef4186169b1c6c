package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/transcribe-service/internal/api/dto"
)

func TestClient_CreateJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/jobs", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req dto.CreateJobRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://example.com/v", req.Locator)
		assert.Equal(t, "zh-Hant", req.Language)

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(dto.CreateJobResponse{JobID: "j1", Status: "QUEUED"})
	}))
	defer srv.Close()

	resp, err := New(srv.URL+"/", nil).CreateJob(context.Background(), dto.CreateJobRequest{
		Locator:  "https://example.com/v",
		Language: "zh-Hant",
	})
	require.NoError(t, err)
	assert.Equal(t, "j1", resp.JobID)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"job not found: x"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).GetJob(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "job not found: x")
}

func TestClient_PlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).CancelJob(context.Background(), "x")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "bad gateway", apiErr.Message)
	assert.False(t, IsNotFound(err))
}

func TestClient_ListJobsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DONE", r.URL.Query().Get("status"))
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		assert.Equal(t, "5", r.URL.Query().Get("page_size"))
		_ = json.NewEncoder(w).Encode(dto.ListJobsResponse{Jobs: []dto.JobDTO{{JobID: "a"}}})
	}))
	defer srv.Close()

	resp, err := New(srv.URL, nil).ListJobs(context.Background(), "DONE", "abc", 5)
	require.NoError(t, err)
	require.Len(t, resp.Jobs, 1)
}

func TestClient_DeleteJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.NoError(t, New(srv.URL, nil).DeleteJob(context.Background(), "j1"))
}

func TestClient_WaitJob(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		job := dto.JobDTO{JobID: "j1", Status: "PROCESSING", CurrentSegment: int(n), TotalSegments: 3}
		if n >= 3 {
			job.Status = "DONE"
			job.Transcript = "a\nb\nc\n"
		}
		_ = json.NewEncoder(w).Encode(job)
	}))
	defer srv.Close()

	var seen []int
	job, err := New(srv.URL, nil).WaitJob(context.Background(), "j1", time.Millisecond, func(j dto.JobDTO) {
		seen = append(seen, j.CurrentSegment)
	})
	require.NoError(t, err)
	assert.Equal(t, "DONE", job.Status)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestClient_WaitJobContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(dto.JobDTO{JobID: "j1", Status: "PROCESSING"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	job, err := New(srv.URL, nil).WaitJob(ctx, "j1", 5*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "PROCESSING", job.Status)
}
