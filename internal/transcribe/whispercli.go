package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/transcribe-service/internal/command"
)

// WhisperCLIEngine runs a local whisper.cpp binary
type WhisperCLIEngine struct {
	binary    string
	modelDir  string
	workDir   string
	runner    command.Runner
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	readFile  func(name string) ([]byte, error)
}

// NewWhisperCLIEngine uses models named ggml-<model>.bin inside modelDir
func NewWhisperCLIEngine(binary, modelDir, workDir string, runner command.Runner) *WhisperCLIEngine {
	if binary == "" {
		binary = "whisper-cli"
	}
	return &WhisperCLIEngine{
		binary:    binary,
		modelDir:  modelDir,
		workDir:   workDir,
		runner:    runner,
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		readFile:  os.ReadFile,
	}
}

// Name returns the engine name
func (e *WhisperCLIEngine) Name() string { return "whisper-cli" }

// Transcribe runs whisper-cli with txt output and returns the text
func (e *WhisperCLIEngine) Transcribe(ctx context.Context, req EngineRequest) (string, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return "", fmt.Errorf("audio path is required")
	}

	modelPath, err := e.resolveModel(req.Model)
	if err != nil {
		return "", err
	}

	dir, err := e.mkdirTemp(e.workDir, "whisper-*")
	if err != nil {
		return "", fmt.Errorf("create whisper output dir: %w", err)
	}
	defer e.removeAll(dir)

	outBase := filepath.Join(dir, "transcript")
	if _, err := e.runner.Run(ctx, e.binary, buildWhisperArgs(modelPath, req.AudioPath, outBase, req.Language)...); err != nil {
		return "", err
	}

	content, err := e.readFile(outBase + ".txt")
	if err != nil {
		return "", fmt.Errorf("read whisper output: %w", err)
	}
	return strings.TrimSpace(string(content)), nil
}

// resolveModel accepts a model file path or a bare model name such as "tiny"
func (e *WhisperCLIEngine) resolveModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", fmt.Errorf("model is required")
	}
	if strings.ContainsRune(model, filepath.Separator) || strings.HasSuffix(model, ".bin") || strings.HasSuffix(model, ".gguf") {
		return model, nil
	}
	if strings.ContainsAny(model, "/\\") || strings.Contains(model, "..") {
		return "", fmt.Errorf("invalid model name %q", model)
	}
	return filepath.Join(e.modelDir, "ggml-"+model+".bin"), nil
}

// buildWhisperArgs builds whisper-cli args for plain text output without timestamps
func buildWhisperArgs(modelPath, audioPath, outBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-nt",
		"-otxt",
		"-of", outBase,
	}
	if language != "" {
		args = append(args, "-l", language)
	}
	return args
}
