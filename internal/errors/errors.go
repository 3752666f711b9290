package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected failure modes
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptedFile     = errors.New("file corrupted or unreadable")
	ErrTimeout           = errors.New("operation timed out")
	ErrToolNotInstalled  = errors.New("required tool not installed")
	ErrNetwork           = errors.New("network fetch failed")
	ErrManifestParse     = errors.New("manifest could not be parsed")
	ErrInvalidSource     = errors.New("invalid sample source")
	ErrNoControlChannel  = errors.New("no engine control channel configured")
)

// ProcessError represents a failure in an external process
type ProcessError struct {
	Tool     string // "ffmpeg"
	Stage    string // "convert", "probe"
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed at %s (exit %d): %s", e.Tool, e.Stage, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s failed at %s (exit %d)", e.Tool, e.Stage, e.ExitCode)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// IsRecoverable returns true if fallback strategy exists
func (e *ProcessError) IsRecoverable() bool {
	return errors.Is(e.Cause, ErrToolNotInstalled)
}

// NewProcessError creates a ProcessError
func NewProcessError(tool, stage string, exitCode int, stderr string, cause error) *ProcessError {
	return &ProcessError{
		Tool:     tool,
		Stage:    stage,
		ExitCode: exitCode,
		Stderr:   stderr,
		Cause:    cause,
	}
}

// FetchError describes a failed manifest or sample download.
// It always matches ErrNetwork via errors.Is.
type FetchError struct {
	URL    string
	Status int // HTTP status, 0 when the request never completed
	Cause  error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("fetch %s failed", e.URL)
}

func (e *FetchError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrNetwork}
	}
	return []error{ErrNetwork, e.Cause}
}

// NewFetchError creates a FetchError
func NewFetchError(url string, status int, cause error) *FetchError {
	return &FetchError{URL: url, Status: status, Cause: cause}
}
