package main

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/dygy/strudel-samples/internal/pitch"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLevel(%q) error = %v", tt.in, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNoteEvent(t *testing.T) {
	tests := []struct {
		arg  string
		want float64
	}{
		{"60", 60},
		{"c4", 60},
		{"a4", 69},
		{"440hz", 69},
		{"zz", pitch.DefaultMidi},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			if got := pitch.ResolveTargetMidi(noteEvent(tt.arg)); got != tt.want {
				t.Errorf("target for %q = %v, want %v", tt.arg, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestReadCodeStdin(t *testing.T) {
	got, err := readCode("-", strings.NewReader(`s("bd sd")`))
	if err != nil {
		t.Fatalf("readCode() error = %v", err)
	}
	if got != `s("bd sd")` {
		t.Errorf("readCode() = %q", got)
	}

	if _, err := readCode("/nonexistent/pattern.strudel", nil); err == nil {
		t.Error("readCode() of a missing file succeeded")
	}
}
