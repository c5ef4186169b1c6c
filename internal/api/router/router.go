package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/transcribe-service/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(RecoveryMiddleware(deps.Logger))
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(deps.AllowedOrigins))

	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "transcribe-api-service"
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"service":     serviceName,
			"active_jobs": deps.Jobs.Active(),
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	transcriptionHandler := handler.NewTranscriptionHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a transcription job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with status filter and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Poll job progress and transcript
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/cancel - Request cancellation
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)

			// DELETE /api/v1/jobs/:job_id - Evict a finished job
			jobs.DELETE("/:job_id", jobHandler.DeleteJob)
		}

		// POST /api/v1/transcriptions - One-shot synchronous transcription
		v1.POST("/transcriptions", transcriptionHandler.Transcribe)
	}

	return r
}
