package exec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	apperrors "github.com/dygy/strudel-samples/internal/errors"
)

// Result holds command execution output
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes external commands with context support
type Runner struct {
	Dir string   // working directory, empty for the current one
	Env []string // extra KEY=VALUE pairs appended to the process environment
}

// NewRunner creates a new command runner
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes a command and captures output
func (r *Runner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	}

	if err != nil {
		return result, fmt.Errorf("command %s failed: %w", name, err)
	}

	return result, nil
}

// LookPath resolves a tool name (or explicit path) to an executable path.
// A missing tool yields an error wrapping ErrToolNotInstalled.
func (r *Runner) LookPath(tool string) (string, error) {
	path, err := exec.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("%w: %s", apperrors.ErrToolNotInstalled, tool)
	}
	return path, nil
}

// Version runs `<tool> <flag>` and returns the first line of output
func (r *Runner) Version(ctx context.Context, tool, flag string) (string, error) {
	result, err := r.Run(ctx, tool, flag)
	if err != nil {
		return "", fmt.Errorf("%w: %s", apperrors.ErrToolNotInstalled, tool)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(result.Stdout), "\n")
	return line, nil
}
