// Package cli implements the transcribe command line tool.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cuongbtq/transcribe-service/internal/client"
	"github.com/cuongbtq/transcribe-service/shared/logger"
)

const defaultServer = "http://localhost:8080"

type appState struct {
	verbose      bool
	jsonLogs     bool
	noProgress   bool
	noColor      bool
	server       string
	configPath   string
	language     string
	model        string
	pollInterval time.Duration

	logger *logger.Logger

	// hooks replaced in tests
	newClientFn      func() jobClient
	transcribeFileFn func(ctx context.Context, path string) (string, error)
	isTerminalFn     func() bool
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	app := &appState{
		server:       envOr("TRANSCRIBE_SERVER", defaultServer),
		configPath:   envOr("TRANSCRIBE_CONFIG_PATH", "configs/api-service/config.yaml"),
		pollInterval: time.Second,
	}
	app.newClientFn = func() jobClient { return client.New(app.server, nil) }
	app.transcribeFileFn = app.transcribeFile
	app.isTerminalFn = func() bool { return term.IsTerminal(int(os.Stderr.Fd())) }
	return newRootCmd(app)
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "transcribe",
		Short:         "Transcribe media locally or through the transcription service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, format := "info", "console"
			if app.verbose {
				level = "debug"
			}
			if app.jsonLogs {
				format = "json"
			}
			l, err := logger.New(&logger.Config{
				Level:      level,
				Format:     format,
				Output:     "stderr",
				TimeFormat: time.Kitchen,
				NoColor:    app.noColor,
			})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = l
			if app.noColor {
				color.NoColor = true
			}
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if app.logger != nil {
				return app.logger.Close()
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	flags.BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	flags.BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
	flags.BoolVar(&app.noColor, "no-color", app.noColor, "Disable colored output")
	flags.StringVar(&app.server, "server", app.server, "Transcription service base URL")

	cmd.AddCommand(newFileCmd(app))
	cmd.AddCommand(newSubmitCmd(app))
	cmd.AddCommand(newStatusCmd(app))
	cmd.AddCommand(newCancelCmd(app))
	cmd.AddCommand(newJobsCmd(app))
	cmd.AddCommand(newDeleteCmd(app))

	return cmd
}

func bindTranscriptionFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.language, "language", app.language, "Language hint (auto|en|zh-Hant|...)")
	cmd.Flags().StringVar(&app.model, "model", app.model, "Model name; empty uses the configured default")
}

func (a *appState) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a.logger.Logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress || a.isTerminalFn == nil {
		return false
	}
	return a.isTerminalFn()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
