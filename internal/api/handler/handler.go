package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/transcribe-service/internal/domain"
	"github.com/cuongbtq/transcribe-service/internal/registry"
)

// JobService is the registry surface the handlers use
type JobService interface {
	Create(ctx context.Context, req domain.JobRequest) (string, error)
	Get(id string) (domain.Snapshot, error)
	List(filter registry.Filter) []domain.Snapshot
	RequestCancel(id string) (domain.CancelOutcome, error)
	Evict(id string) error
	Active() int
}

// OneShotTranscriber transcribes an uploaded file without creating a job
type OneShotTranscriber interface {
	TranscribeSource(ctx context.Context, source domain.Resource, language, model string) (string, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger          *slog.Logger
	Jobs            JobService
	OneShot         OneShotTranscriber
	UploadDir       string
	MaxUploadBytes  int64
	DefaultLanguage string
	ServiceName     string
	AllowedOrigins  []string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger          *slog.Logger
	jobs            JobService
	defaultLanguage string
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:          deps.Logger,
		jobs:            deps.Jobs,
		defaultLanguage: deps.DefaultLanguage,
	}
}

// writeError maps domain errors to HTTP status codes
func writeError(c *gin.Context, err error) {
	var (
		acqErr *domain.AcquisitionError
		segErr *domain.SegmentationError
		trErr  *domain.TranscriptionError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrTooManyJobs):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrJobActive):
		status = http.StatusConflict
	case errors.As(err, &acqErr), errors.As(err, &segErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &trErr):
		status = http.StatusBadGateway
	}

	_ = c.Error(err)
	c.JSON(status, gin.H{
		"error": err.Error(),
	})
}
