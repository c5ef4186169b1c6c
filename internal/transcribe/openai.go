package transcribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// transcriptionClient is the slice of the OpenAI client the engine uses
type transcriptionClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAIEngine transcribes through the OpenAI audio API
type OpenAIEngine struct {
	client transcriptionClient
}

// NewOpenAIEngine creates an engine for apiKey. baseURL overrides the API endpoint when set.
func NewOpenAIEngine(apiKey, baseURL string) (*OpenAIEngine, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEngine{client: openai.NewClientWithConfig(cfg)}, nil
}

// Name returns the engine name
func (e *OpenAIEngine) Name() string { return "openai" }

// Transcribe uploads the audio file and returns the recognized text
func (e *OpenAIEngine) Transcribe(ctx context.Context, req EngineRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = openai.Whisper1
	}

	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: req.AudioPath,
		Language: req.Language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}
