// Package client talks to the transcription API service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/transcribe-service/internal/api/dto"
	"github.com/cuongbtq/transcribe-service/internal/domain"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the service
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is a thin JSON client for the job endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL, e.g. http://localhost:8080
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// CreateJob submits a locator and returns the new job id
func (c *Client) CreateJob(ctx context.Context, req dto.CreateJobRequest) (dto.CreateJobResponse, error) {
	var resp dto.CreateJobResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/jobs", req, &resp)
	return resp, err
}

// GetJob returns the current job snapshot
func (c *Client) GetJob(ctx context.Context, jobID string) (dto.JobDTO, error) {
	var resp dto.JobDTO
	err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(jobID), nil, &resp)
	return resp, err
}

// ListJobs returns one page of jobs; status may be empty
func (c *Client) ListJobs(ctx context.Context, status, cursor string, pageSize int) (dto.ListJobsResponse, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if pageSize > 0 {
		q.Set("page_size", fmt.Sprint(pageSize))
	}
	path := "/api/v1/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp dto.ListJobsResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// CancelJob requests cancellation at the next segment boundary
func (c *Client) CancelJob(ctx context.Context, jobID string) (dto.CancelJobResponse, error) {
	var resp dto.CancelJobResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(jobID)+"/cancel", nil, &resp)
	return resp, err
}

// DeleteJob evicts a finished job
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/jobs/"+url.PathEscape(jobID), nil, nil)
}

// WaitJob polls until the job is terminal. onUpdate, when set, sees every snapshot.
func (c *Client) WaitJob(ctx context.Context, jobID string, interval time.Duration, onUpdate func(dto.JobDTO)) (dto.JobDTO, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last dto.JobDTO
	for {
		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return last, err
		}
		last = job
		if onUpdate != nil {
			onUpdate(job)
		}
		if domain.JobStatus(job.Status).IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
