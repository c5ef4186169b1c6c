package dto

import (
	"time"

	"github.com/cuongbtq/transcribe-service/internal/domain"
)

type CreateJobRequest struct {
	Locator  string `json:"locator" binding:"required"`
	Language string `json:"language"`
	Model    string `json:"model"`
}

type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID           string `json:"job_id"`
	Locator         string `json:"locator"`
	Language        string `json:"language,omitempty"`
	Model           string `json:"model,omitempty"`
	Status          string `json:"status"`
	Transcript      string `json:"transcript"`
	CurrentSegment  int    `json:"current_segment"`
	TotalSegments   int    `json:"total_segments"`
	CancelRequested bool   `json:"cancel_requested"`
	Error           string `json:"error,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
	FinishedAt      string `json:"finished_at,omitempty"`
}

type CancelJobResponse struct {
	JobID   string `json:"job_id"`
	Outcome string `json:"outcome"`
	Status  string `json:"status"`
}

type TranscriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`
}

// FromSnapshot converts a job snapshot into its wire form
func FromSnapshot(s domain.Snapshot) JobDTO {
	out := JobDTO{
		JobID:           s.ID,
		Locator:         s.Locator,
		Language:        s.Language,
		Model:           s.Model,
		Status:          string(s.Status),
		Transcript:      s.Transcript,
		CurrentSegment:  s.CurrentSegment,
		TotalSegments:   s.TotalSegments,
		CancelRequested: s.CancelRequested,
		Error:           s.ErrorDetail,
		CreatedAt:       s.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:       s.UpdatedAt.Format(time.RFC3339Nano),
	}
	if !s.FinishedAt.IsZero() {
		out.FinishedAt = s.FinishedAt.Format(time.RFC3339Nano)
	}
	return out
}
