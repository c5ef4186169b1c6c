// Package audio probes and cuts audio files with ffprobe and ffmpeg.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/transcribe-service/internal/command"
	"github.com/cuongbtq/transcribe-service/internal/domain"
	"github.com/cuongbtq/transcribe-service/internal/media"
)

// Range is a half-open time slice [Start, Start+Length) of a source
type Range struct {
	Start  time.Duration
	Length time.Duration
}

// End returns the exclusive end of the range
func (r Range) End() time.Duration {
	return r.Start + r.Length
}

// FFmpeg is the audio decoder backed by the ffprobe and ffmpeg binaries
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string
	runner      command.Runner
	logger      *slog.Logger
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
	stat        func(name string) (os.FileInfo, error)
}

// NewFFmpeg creates a decoder writing segment files into temp dirs under workDir
func NewFFmpeg(ffmpegPath, ffprobePath, workDir string, runner command.Runner, logger *slog.Logger) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		workDir:     workDir,
		runner:      runner,
		logger:      logger,
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		stat:        os.Stat,
	}
}

// Probe returns the duration of the audio behind the handle
func (f *FFmpeg) Probe(ctx context.Context, source domain.Resource) (time.Duration, error) {
	res, err := f.runner.Run(ctx, f.ffprobePath, buildProbeArgs(source.Path())...)
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}

	d, err := parseDuration(res.Stdout)
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}

	f.logger.Debug("Probed source duration",
		slog.String("path", source.Path()),
		slog.Duration("duration", d),
	)
	return d, nil
}

// Extract cuts rng out of the source into a 16 kHz mono PCM WAV file.
// The returned handle owns a private temp dir removed on release.
func (f *FFmpeg) Extract(ctx context.Context, source domain.Resource, rng Range, index int) (domain.Resource, error) {
	dir, err := f.mkdirTemp(f.workDir, fmt.Sprintf("segment-%03d-*", index))
	if err != nil {
		return nil, fmt.Errorf("create segment dir: %w", err)
	}

	outPath := filepath.Join(dir, fmt.Sprintf("segment-%03d.wav", index))
	if _, err := f.runner.Run(ctx, f.ffmpegPath, buildExtractArgs(source.Path(), outPath, rng)...); err != nil {
		_ = f.removeAll(dir)
		return nil, fmt.Errorf("extract segment %d: %w", index, err)
	}

	if _, err := f.stat(outPath); err != nil {
		_ = f.removeAll(dir)
		return nil, fmt.Errorf("extract segment %d: ffmpeg completed but output file is missing: %w", index, err)
	}

	return media.NewTempHandle(outPath, dir), nil
}

// buildProbeArgs asks ffprobe for the container duration in seconds only
func buildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// buildExtractArgs builds ffmpeg args for one segment as mono 16k PCM WAV
func buildExtractArgs(inputPath, outPath string, rng Range) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", formatSeconds(rng.Start),
		"-t", formatSeconds(rng.Length),
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// maxSourceSeconds caps source durations at one year
const maxSourceSeconds = 365 * 24 * 60 * 60

func parseDuration(out string) (time.Duration, error) {
	raw := strings.TrimSpace(out)
	if raw == "" || raw == "N/A" {
		return 0, fmt.Errorf("duration not reported")
	}

	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if secs > maxSourceSeconds {
		return 0, fmt.Errorf("duration %q exceeds %s", raw, time.Duration(maxSourceSeconds)*time.Second)
	}

	return time.Duration(math.Round(secs*1000)) * time.Millisecond, nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
