package transcode

import (
	"context"
	"path/filepath"
	"strings"

	apperrors "github.com/dygy/strudel-samples/internal/errors"
	"github.com/dygy/strudel-samples/internal/exec"
)

// FFmpeg converts any supported format through an external ffmpeg binary
type FFmpeg struct {
	Path   string
	runner *exec.Runner
}

// NewFFmpeg wraps an ffmpeg executable
func NewFFmpeg(path string, runner *exec.Runner) *FFmpeg {
	if runner == nil {
		runner = exec.NewRunner()
	}
	return &FFmpeg{Path: path, runner: runner}
}

func (f *FFmpeg) Name() string {
	return "ffmpeg"
}

// CanConvert accepts every convertible extension
func (f *FFmpeg) CanConvert(ext string) bool {
	switch ext {
	case ".mp3", ".ogg", ".flac", ".m4a", ".aac", ".opus", ".webm":
		return true
	}
	return false
}

// Convert writes dst as WAV, overwriting it if present
func (f *FFmpeg) Convert(ctx context.Context, src, dst string) error {
	result, err := f.runner.Run(ctx, f.Path, "-y", "-loglevel", "error", "-i", src, dst)
	if err != nil {
		exitCode, stderr := -1, ""
		if result != nil {
			exitCode, stderr = result.ExitCode, strings.TrimSpace(result.Stderr)
		}
		cause := err
		if exitCode <= 0 && stderr == "" {
			cause = apperrors.ErrToolNotInstalled
		}
		return apperrors.NewProcessError("ffmpeg", "convert", exitCode, stderr, cause)
	}
	return nil
}

func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
