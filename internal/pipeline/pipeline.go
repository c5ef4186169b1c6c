// Package pipeline assembles the fetch, segment and transcribe stages from configuration.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/cuongbtq/transcribe-service/internal/audio"
	"github.com/cuongbtq/transcribe-service/internal/command"
	"github.com/cuongbtq/transcribe-service/internal/config"
	"github.com/cuongbtq/transcribe-service/internal/events"
	"github.com/cuongbtq/transcribe-service/internal/media"
	"github.com/cuongbtq/transcribe-service/internal/runner"
	"github.com/cuongbtq/transcribe-service/internal/segment"
	"github.com/cuongbtq/transcribe-service/internal/transcribe"
)

// NewEngine returns the speech-to-text engine selected by the config
func NewEngine(cfg *config.TranscriptionConfig, workDir string, exec command.Runner) (transcribe.Engine, error) {
	switch cfg.Engine {
	case config.EngineOpenAI:
		engine, err := transcribe.NewOpenAIEngine(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case config.EngineWhisperCLI:
		return transcribe.NewWhisperCLIEngine(cfg.WhisperCLI.Binary, cfg.WhisperCLI.ModelDir, workDir, exec), nil
	default:
		return nil, fmt.Errorf("unknown transcription engine %q", cfg.Engine)
	}
}

// NewResolver combines the remote downloader and the local file resolver.
// Remote sources are only enabled with media.allow_remote.
func NewResolver(cfg *config.MediaConfig, exec command.Runner, logger *slog.Logger) *media.SchemeResolver {
	var remote media.Resolver
	if cfg.AllowRemote {
		remote = media.NewYTDLPResolver(cfg.YTDLPPath, cfg.WorkDir, exec, logger)
	}
	var local media.Resolver
	if len(cfg.UploadDirs) > 0 {
		local = media.NewLocalResolver(cfg.UploadDirs)
	}
	return media.NewSchemeResolver(remote, local, logger)
}

// NewRunner wires every stage into a job runner. A nil publisher drops events.
func NewRunner(cfg *config.Config, publisher events.Publisher, logger *slog.Logger) (*runner.Runner, error) {
	exec := command.NewExecRunner()

	engine, err := NewEngine(&cfg.Transcription, cfg.Media.WorkDir, exec)
	if err != nil {
		return nil, err
	}

	decoder := audio.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.FFprobePath, cfg.Media.WorkDir, exec, logger)

	logger.Info("Transcription pipeline ready",
		slog.String("engine", engine.Name()),
		slog.String("default_model", cfg.DefaultModel()),
		slog.Duration("max_segment_duration", cfg.Jobs.MaxSegmentDuration),
		slog.Bool("allow_remote", cfg.Media.AllowRemote),
	)

	return runner.New(
		NewResolver(&cfg.Media, exec, logger),
		segment.NewPlanner(decoder, logger),
		transcribe.NewAdapter(engine, cfg.DefaultModel(), logger),
		publisher,
		runner.Config{
			MaxSegmentDuration: cfg.Jobs.MaxSegmentDuration,
			AcquireTimeout:     cfg.Jobs.AcquireTimeout,
			SegmentTimeout:     cfg.Jobs.SegmentTimeout,
			TranscribeTimeout:  cfg.Jobs.TranscribeTimeout,
		},
		logger,
	), nil
}
