// Package transcribe puts the speech-to-text engines behind one interface.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/transcribe-service/internal/domain"
)

// EngineRequest is what an engine receives for one audio file
type EngineRequest struct {
	AudioPath string
	Language  string
	Model     string
}

// Engine is an external speech-to-text capability
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, req EngineRequest) (string, error)
}

// Request describes one adapter call
type Request struct {
	Audio    domain.Resource
	Language string
	Model    string
	// Segment is the segment index used in error details; -1 when unknown
	Segment int
}

// Adapter normalizes hints and wraps engine failures. It never retries.
type Adapter struct {
	engine       Engine
	defaultModel string
	logger       *slog.Logger
}

// NewAdapter wraps engine; defaultModel is used when a request names none
func NewAdapter(engine Engine, defaultModel string, logger *slog.Logger) *Adapter {
	return &Adapter{engine: engine, defaultModel: defaultModel, logger: logger}
}

// Transcribe returns the text of one audio resource
func (a *Adapter) Transcribe(ctx context.Context, req Request) (string, error) {
	if req.Audio == nil {
		return "", &domain.TranscriptionError{Segment: req.Segment, Err: fmt.Errorf("no audio resource")}
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = a.defaultModel
	}
	engineReq := EngineRequest{
		AudioPath: req.Audio.Path(),
		Language:  NormalizeLanguage(req.Language),
		Model:     model,
	}

	start := time.Now()
	text, err := a.engine.Transcribe(ctx, engineReq)
	if err != nil {
		return "", &domain.TranscriptionError{Segment: req.Segment, Err: fmt.Errorf("%s: %w", a.engine.Name(), err)}
	}

	a.logger.Debug("Segment transcribed",
		slog.String("engine", a.engine.Name()),
		slog.Int("segment", req.Segment),
		slog.String("language", engineReq.Language),
		slog.String("model", model),
		slog.Int("chars", len(text)),
		slog.Duration("took", time.Since(start)),
	)
	return text, nil
}
