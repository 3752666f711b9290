// Package transcode converts downloaded samples into the engine-native WAV format.
package transcode

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/dygy/strudel-samples/internal/errors"
	"github.com/dygy/strudel-samples/internal/exec"
)

// Converter turns one audio file into a WAV file
type Converter interface {
	Name() string
	CanConvert(ext string) bool
	Convert(ctx context.Context, src, dst string) error
}

// Chain tries each converter that accepts the extension, in order
type Chain []Converter

func (c Chain) Name() string {
	return "chain"
}

// CanConvert reports whether any member handles ext
func (c Chain) CanConvert(ext string) bool {
	for _, conv := range c {
		if conv.CanConvert(ext) {
			return true
		}
	}
	return false
}

// Convert runs the first accepting converter, falling through to the next
// one only when a tool is missing
func (c Chain) Convert(ctx context.Context, src, dst string) error {
	ext := extOf(src)
	var lastErr error
	for _, conv := range c {
		if !conv.CanConvert(ext) {
			continue
		}
		err := conv.Convert(ctx, src, dst)
		if err == nil {
			return nil
		}
		lastErr = err
		if pe, ok := err.(*apperrors.ProcessError); ok && pe.IsRecoverable() {
			continue
		}
		return err
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("%w: no converter for %s (ffmpeg not installed)", apperrors.ErrToolNotInstalled, ext)
}

// Detect builds the default converter chain: ffmpeg when it can be found,
// then the built-in MP3 decoder. A missing ffmpeg is logged once here as
// the standing warning; per-file conversions fail individually afterwards.
func Detect(ffmpegPath string, logger *slog.Logger) Chain {
	if logger == nil {
		logger = slog.Default()
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	runner := exec.NewRunner()
	var chain Chain
	if path, err := runner.LookPath(ffmpegPath); err == nil {
		chain = append(chain, NewFFmpeg(path, runner))
	} else {
		logger.Warn("ffmpeg not found, only native formats and mp3 will load", "tool", ffmpegPath)
	}
	return append(chain, MP3Decoder{})
}
