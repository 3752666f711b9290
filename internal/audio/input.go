package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/dygy/strudel-samples/internal/errors"
)

const (
	MaxFileSize = 100 * 1024 * 1024 // 100MB
)

// Format represents an audio file format
type Format string

const (
	FormatWAV     Format = "wav"
	FormatAIFF    Format = "aiff"
	FormatMP3     Format = "mp3"
	FormatOGG     Format = "ogg"
	FormatFLAC    Format = "flac"
	FormatUnknown Format = "unknown"
)

// NativeExt is the extension converted files are written with
const NativeExt = ".wav"

// Extensions the engine loads directly
var nativeExts = map[string]bool{
	".wav":  true,
	".aif":  true,
	".aiff": true,
}

// Extensions that need a transcoding pass before the engine can load them
var convertibleExts = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".opus": true,
	".webm": true,
}

// IsNative reports whether a filename's extension is an engine-native format
func IsNative(name string) bool {
	return nativeExts[Ext(name)]
}

// IsConvertible reports whether a filename's extension can be transcoded to native
func IsConvertible(name string) bool {
	return convertibleExts[Ext(name)]
}

// Ext returns the lowercased extension of a filename or URL, ignoring query strings
func Ext(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(filepath.Ext(name))
}

// ValidateNative checks that a file on disk really holds a native-format stream.
// Servers that answer 200 with an HTML error page are caught here.
func ValidateNative(path string) (Format, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return FormatUnknown, fmt.Errorf("%w: %s", apperrors.ErrFileNotFound, path)
	}
	if err != nil {
		return FormatUnknown, fmt.Errorf("stat file: %w", err)
	}

	if info.Size() > MaxFileSize {
		return FormatUnknown, fmt.Errorf("%w: %s exceeds 100MB", apperrors.ErrCorruptedFile, path)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return FormatUnknown, err
	}

	if format != FormatWAV && format != FormatAIFF {
		return format, fmt.Errorf("%w: %s is not WAV or AIFF (detected %s)", apperrors.ErrCorruptedFile, filepath.Base(path), format)
	}

	return format, nil
}

// DetectFormat checks file magic bytes to determine audio format
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("%w: %v", apperrors.ErrCorruptedFile, err)
	}
	defer f.Close()

	// Read first 12 bytes for magic detection
	header := make([]byte, 12)
	n, err := f.Read(header)
	if err != nil || n < 4 {
		return FormatUnknown, fmt.Errorf("%w: could not read file header", apperrors.ErrCorruptedFile)
	}

	return detectHeader(header[:n]), nil
}

func detectHeader(header []byte) Format {
	n := len(header)

	// RIFF....WAVE
	if n >= 12 && string(header[:4]) == "RIFF" && string(header[8:12]) == "WAVE" {
		return FormatWAV
	}

	// FORM....AIFF / AIFC
	if n >= 12 && string(header[:4]) == "FORM" && (string(header[8:12]) == "AIFF" || string(header[8:12]) == "AIFC") {
		return FormatAIFF
	}

	if n >= 4 && string(header[:4]) == "OggS" {
		return FormatOGG
	}

	if n >= 4 && string(header[:4]) == "fLaC" {
		return FormatFLAC
	}

	// MP3 with ID3 tag
	if n >= 3 && string(header[:3]) == "ID3" {
		return FormatMP3
	}

	// MP3 frame sync
	if n >= 2 && header[0] == 0xFF && (header[1]&0xE0) == 0xE0 {
		return FormatMP3
	}

	return FormatUnknown
}
