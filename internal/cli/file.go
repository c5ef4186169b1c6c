package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/transcribe-service/internal/config"
	"github.com/cuongbtq/transcribe-service/internal/media"
	"github.com/cuongbtq/transcribe-service/internal/pipeline"
)

func newFileCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file <media-file>",
		Short: "Transcribe a local media file without the service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := app.transcribeFileFn(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), transcript)
			return nil
		},
	}

	bindTranscriptionFlags(cmd, app)
	cmd.Flags().StringVar(&app.configPath, "config", app.configPath, "Path to configuration file")
	return cmd
}

// transcribeFile runs the segment and transcribe stages in-process.
// The file stays owned by the caller.
func (a *appState) transcribeFile(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("media file not found: %w", err)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateTranscription(); err != nil {
		return "", fmt.Errorf("invalid config: %w", err)
	}

	r, err := pipeline.NewRunner(cfg, nil, a.log())
	if err != nil {
		return "", err
	}

	language := a.language
	if language == "" {
		language = cfg.Jobs.DefaultLanguage
	}

	a.log().Info("Transcribing",
		slog.String("file", abs),
		slog.String("language", language),
		slog.String("model", a.model),
	)
	stop := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()

	text, err := r.TranscribeSource(ctx, media.NewBorrowedHandle(abs), language, a.model)
	stop()
	if err != nil {
		a.log().Warn("Transcription failed",
			slog.Duration("elapsed", time.Since(started)),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	a.log().Info("Transcription finished", slog.Duration("elapsed", time.Since(started)))
	return text, nil
}
