package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/transcribe-service/internal/command"
	"github.com/cuongbtq/transcribe-service/internal/domain"
)

// YTDLPResolver downloads the best audio stream of a remote source with yt-dlp
type YTDLPResolver struct {
	binary    string
	workDir   string
	runner    command.Runner
	logger    *slog.Logger
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	glob      func(pattern string) ([]string, error)
}

// NewYTDLPResolver downloads into temp dirs created under workDir
func NewYTDLPResolver(binary, workDir string, runner command.Runner, logger *slog.Logger) *YTDLPResolver {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLPResolver{
		binary:    binary,
		workDir:   workDir,
		runner:    runner,
		logger:    logger,
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		glob:      filepath.Glob,
	}
}

// Resolve downloads the source into a private temp dir. Releasing the handle removes the dir.
func (r *YTDLPResolver) Resolve(ctx context.Context, locator string) (domain.Resource, error) {
	dir, err := r.mkdirTemp(r.workDir, "source-*")
	if err != nil {
		return nil, &domain.AcquisitionError{Locator: locator, Err: fmt.Errorf("create work dir: %w", err)}
	}

	args := buildDownloadArgs(dir, locator)
	res, err := r.runner.Run(ctx, r.binary, args...)
	if err != nil {
		_ = r.removeAll(dir)
		return nil, &domain.AcquisitionError{Locator: locator, Err: err}
	}

	path := lastLine(res.Stdout)
	if path == "" {
		matches, _ := r.glob(filepath.Join(dir, "source.*"))
		if len(matches) > 0 {
			path = matches[0]
		}
	}
	if path == "" {
		_ = r.removeAll(dir)
		return nil, &domain.AcquisitionError{Locator: locator, Err: fmt.Errorf("yt-dlp completed but produced no file")}
	}

	r.logger.Info("Source downloaded",
		slog.String("locator", locator),
		slog.String("path", path),
	)

	return NewTempHandle(path, dir), nil
}

// buildDownloadArgs builds yt-dlp args that fetch the best audio and print the final path
func buildDownloadArgs(dir, locator string) []string {
	return []string{
		"--no-playlist",
		"--no-progress",
		"--restrict-filenames",
		"-f", "bestaudio/best",
		"-P", dir,
		"-o", "source.%(ext)s",
		"--print", "after_move:filepath",
		locator,
	}
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
