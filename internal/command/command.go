// Package command runs the external tools (yt-dlp, ffprobe, ffmpeg, whisper-cli)
// the pipeline depends on.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result captures one command invocation
type Result struct {
	Command  string
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution so callers can be tested without the tools installed
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner executes commands via os/exec
type ExecRunner struct{}

// NewExecRunner returns the production runner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes one command and captures stdout, stderr and exit code
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Command: name,
		Args:    args,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, &Error{Result: result, Err: err}
	}

	return result, nil
}

// Error is a failed command with its captured output
type Error struct {
	Result Result
	Err    error
}

func (e *Error) Error() string {
	stderr := strings.TrimSpace(e.Result.Stderr)
	if len(stderr) > 512 {
		stderr = stderr[len(stderr)-512:]
	}
	if stderr == "" {
		return fmt.Sprintf("%s exited with code %d: %v", e.Result.Command, e.Result.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s exited with code %d: %v (%s)", e.Result.Command, e.Result.ExitCode, e.Err, stderr)
}

func (e *Error) Unwrap() error {
	return e.Err
}
