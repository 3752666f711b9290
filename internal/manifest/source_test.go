package manifest

import (
	"errors"
	"path/filepath"
	"testing"

	apperrors "github.com/dygy/strudel-samples/internal/errors"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		raw      string
		kind     SourceKind
		location string
		base     string
	}{
		{
			raw:      "github:tidalcycles/dirt-samples",
			kind:     SourceShorthand,
			location: "https://raw.githubusercontent.com/tidalcycles/dirt-samples/main/strudel.json",
			base:     "https://raw.githubusercontent.com/tidalcycles/dirt-samples/main/",
		},
		{
			raw:      "github:user/repo/dev",
			kind:     SourceShorthand,
			location: "https://raw.githubusercontent.com/user/repo/dev/strudel.json",
			base:     "https://raw.githubusercontent.com/user/repo/dev/",
		},
		{
			raw:      "github:ritchse/tidal-drum-machines/main/machines/tidal-drum-machines.json",
			kind:     SourceShorthand,
			location: "https://raw.githubusercontent.com/ritchse/tidal-drum-machines/main/machines/tidal-drum-machines.json",
			base:     "https://raw.githubusercontent.com/ritchse/tidal-drum-machines/main/machines/",
		},
		{
			raw:      "https://example.com/packs/piano.json",
			kind:     SourceURL,
			location: "https://example.com/packs/piano.json",
			base:     "https://example.com/packs/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			src, err := ParseSource(tt.raw)
			if err != nil {
				t.Fatalf("ParseSource() error = %v", err)
			}
			if src.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", src.Kind, tt.kind)
			}
			if src.Location != tt.location {
				t.Errorf("Location = %q, want %q", src.Location, tt.location)
			}
			if src.Base != tt.base {
				t.Errorf("Base = %q, want %q", src.Base, tt.base)
			}
		})
	}
}

func TestParseSourceLocalDir(t *testing.T) {
	dir := t.TempDir()
	src, err := ParseSource(dir)
	if err != nil {
		t.Fatalf("ParseSource() error = %v", err)
	}
	if src.Kind != SourcePath {
		t.Errorf("Kind = %v, want path", src.Kind)
	}
	if src.Location != filepath.Join(dir, DefaultManifest) {
		t.Errorf("Location = %q", src.Location)
	}
}

func TestParseSourceErrors(t *testing.T) {
	for _, raw := range []string{"", "gitlab:user/repo", "github:onlyuser"} {
		if _, err := ParseSource(raw); !errors.Is(err, apperrors.ErrInvalidSource) {
			t.Errorf("ParseSource(%q) error = %v, want ErrInvalidSource", raw, err)
		}
	}
}

func TestResolveFile(t *testing.T) {
	tests := []struct {
		base, file, want string
	}{
		{"https://x.org/s/", "bd/a.wav", "https://x.org/s/bd/a.wav"},
		{"https://x.org/s", "bd/a.wav", "https://x.org/s/bd/a.wav"},
		{"https://x.org/s/", "https://cdn.org/a.wav", "https://cdn.org/a.wav"},
		{"", "bd/a.wav", "bd/a.wav"},
		{"/data/pack/", "bd/a.wav", filepath.Join("/data/pack", "bd", "a.wav")},
	}

	for _, tt := range tests {
		if got := ResolveFile(tt.base, tt.file); got != tt.want {
			t.Errorf("ResolveFile(%q, %q) = %q, want %q", tt.base, tt.file, got, tt.want)
		}
	}
}

func TestEffectiveBase(t *testing.T) {
	src := Source{Base: "https://from-location/"}

	if got := EffectiveBase(&Manifest{Base: "https://manifest/"}, "https://override/", src); got != "https://manifest/" {
		t.Errorf("_base should win, got %q", got)
	}
	if got := EffectiveBase(&Manifest{}, "https://override/", src); got != "https://override/" {
		t.Errorf("override should beat location, got %q", got)
	}
	if got := EffectiveBase(&Manifest{}, "", src); got != "https://from-location/" {
		t.Errorf("location fallback, got %q", got)
	}
}
