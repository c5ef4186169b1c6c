package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/transcribe-service/internal/api/dto"
	"github.com/cuongbtq/transcribe-service/internal/domain"
	"github.com/cuongbtq/transcribe-service/internal/registry"
)

// CreateJob handles POST /api/v1/jobs
// Registers a transcription job and returns without waiting for it
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	locator := strings.TrimSpace(req.Locator)
	if locator == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "locator is required",
		})
		return
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = h.defaultLanguage
	}

	jobID, err := h.jobs.Create(c.Request.Context(), domain.JobRequest{
		Locator:  locator,
		Language: language,
		Model:    strings.TrimSpace(req.Model),
	})
	if err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		writeError(c, err)
		return
	}

	status := domain.JobStatusQueued
	if snap, err := h.jobs.Get(jobID); err == nil {
		status = snap.Status
	}

	c.Header("Location", "/api/v1/jobs/"+jobID)
	c.JSON(http.StatusAccepted, dto.CreateJobResponse{
		JobID:  jobID,
		Status: string(status),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns a consistent snapshot of the job's progress and transcript
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id is required",
		})
		return
	}

	snap, err := h.jobs.Get(jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromSnapshot(snap))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs oldest first with optional status filter and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	status := domain.JobStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if status != "" && !status.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status filter",
		})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	snaps := h.jobs.List(registry.Filter{Status: status})
	page, next := paginate(snaps, cursor, req.PageSize)

	jobs := make([]dto.JobDTO, 0, len(page))
	for _, s := range page {
		jobs = append(jobs, dto.FromSnapshot(s))
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobs,
		NextCursor: next,
	})
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Cancellation takes effect at the next segment boundary; repeating it is harmless
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")

	outcome, err := h.jobs.RequestCancel(jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	snap, err := h.jobs.Get(jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CancelJobResponse{
		JobID:   jobID,
		Outcome: string(outcome),
		Status:  string(snap.Status),
	})
}

// DeleteJob handles DELETE /api/v1/jobs/:job_id
// Evicts a finished job; active jobs must be cancelled first
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if err := h.jobs.Evict(jobID); err != nil {
		writeError(c, err)
		return
	}

	h.logger.Info("Job evicted", slog.String("job_id", jobID))
	c.Status(http.StatusNoContent)
}
