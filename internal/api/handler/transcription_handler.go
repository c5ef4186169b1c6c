package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/transcribe-service/internal/api/dto"
	"github.com/cuongbtq/transcribe-service/internal/media"
)

// TranscriptionHandler serves the synchronous one-shot path
type TranscriptionHandler struct {
	logger          *slog.Logger
	oneShot         OneShotTranscriber
	uploadDir       string
	maxUploadBytes  int64
	defaultLanguage string
}

// NewTranscriptionHandler creates a new TranscriptionHandler instance
func NewTranscriptionHandler(deps *Dependencies) *TranscriptionHandler {
	return &TranscriptionHandler{
		logger:          deps.Logger,
		oneShot:         deps.OneShot,
		uploadDir:       deps.UploadDir,
		maxUploadBytes:  deps.MaxUploadBytes,
		defaultLanguage: deps.DefaultLanguage,
	}
}

// Transcribe handles POST /api/v1/transcriptions
// Accepts a multipart "file" of any container ffmpeg can read and returns the transcript
func (h *TranscriptionHandler) Transcribe(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "Uploaded file is too large",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "file is required",
		})
		return
	}

	dir, err := os.MkdirTemp(h.uploadDir, "upload-*")
	if err != nil {
		h.logger.Error("Failed to create upload dir", slog.String("error", err.Error()))
		writeError(c, err)
		return
	}

	name := filepath.Base(file.Filename)
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	path := filepath.Join(dir, name)
	source := media.NewTempHandle(path, dir)

	if err := c.SaveUploadedFile(file, path); err != nil {
		h.logger.Error("Failed to save upload", slog.String("error", err.Error()))
		_ = source.Release()
		writeError(c, err)
		return
	}

	language := strings.TrimSpace(c.PostForm("language"))
	if language == "" {
		language = h.defaultLanguage
	}
	model := strings.TrimSpace(c.PostForm("model"))

	h.logger.Info("One-shot transcription started",
		slog.String("file", name),
		slog.Int64("size", file.Size),
		slog.String("language", language),
	)

	// the transcriber owns source from here and releases it
	text, err := h.oneShot.TranscribeSource(c.Request.Context(), source, language, model)
	if err != nil {
		h.logger.Error("One-shot transcription failed", slog.String("error", err.Error()))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.TranscriptionResponse{
		Text:     text,
		Language: language,
		Model:    model,
	})
}
