package manifest

import (
	"fmt"
	"path/filepath"
	"strings"

	apperrors "github.com/dygy/strudel-samples/internal/errors"
	"github.com/dygy/strudel-samples/internal/fetch"
)

// Defaults for hosting shorthands
const (
	DefaultBranch   = "main"
	DefaultManifest = "strudel.json"
	githubRawRoot   = "https://raw.githubusercontent.com/"
)

// SourceKind tells how a sample source is obtained
type SourceKind int

const (
	SourceInline SourceKind = iota
	SourceShorthand
	SourceURL
	SourcePath
)

func (k SourceKind) String() string {
	switch k {
	case SourceInline:
		return "inline"
	case SourceShorthand:
		return "shorthand"
	case SourceURL:
		return "url"
	case SourcePath:
		return "path"
	}
	return "unknown"
}

// Source is a resolved place to read a manifest from
type Source struct {
	Kind     SourceKind
	Raw      string    // what the caller passed
	Location string    // manifest URL or path; empty for inline
	Base     string    // base derived from the location
	Inline   *Manifest // set for SourceInline
}

// Inline wraps an in-memory manifest as a source
func Inline(m *Manifest) Source {
	return Source{Kind: SourceInline, Inline: m, Base: m.Base}
}

// ParseSource resolves a string source: a hosting shorthand
// (github:user/repo[/branch[/path]]), an http(s) or file:// URL, or a local path.
func ParseSource(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{}, fmt.Errorf("%w: empty source", apperrors.ErrInvalidSource)
	}

	if provider, rest, ok := strings.Cut(raw, ":"); ok && !fetch.IsAbsolute(raw) && isProviderName(provider) {
		location, err := ResolveShorthand(provider, rest)
		if err != nil {
			return Source{}, err
		}
		return Source{Kind: SourceShorthand, Raw: raw, Location: location, Base: urlDir(location)}, nil
	}

	if fetch.IsRemote(raw) {
		return Source{Kind: SourceURL, Raw: raw, Location: raw, Base: urlDir(raw)}, nil
	}

	path := fetch.LocalPath(raw)
	if !strings.HasSuffix(strings.ToLower(path), ".json") {
		path = filepath.Join(path, DefaultManifest)
	}
	return Source{Kind: SourcePath, Raw: raw, Location: path, Base: filepath.Dir(path) + string(filepath.Separator)}, nil
}

// ResolveShorthand maps provider + "user/repo[/branch[/path...]]" to a raw
// manifest URL. A trailing path segment ending in .json names the manifest;
// otherwise strudel.json is appended.
func ResolveShorthand(provider, rest string) (string, error) {
	if provider != "github" {
		return "", fmt.Errorf("%w: unsupported provider %q", apperrors.ErrInvalidSource, provider)
	}

	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%w: expected %s:user/repo[/branch], got %q", apperrors.ErrInvalidSource, provider, rest)
	}

	user, repo := parts[0], parts[1]
	branch := DefaultBranch
	if len(parts) > 2 && parts[2] != "" {
		branch = parts[2]
	}

	path := ""
	if len(parts) > 3 {
		path = strings.Join(parts[3:], "/")
	}
	if !strings.HasSuffix(path, ".json") {
		if path != "" {
			path += "/"
		}
		path += DefaultManifest
	}

	return githubRawRoot + user + "/" + repo + "/" + branch + "/" + path, nil
}

// ResolveFile turns a declared sample reference into a fetchable location.
// Absolute URLs pass through; everything else is appended to base.
func ResolveFile(base, file string) string {
	if fetch.IsAbsolute(file) || base == "" {
		return file
	}
	if fetch.IsAbsolute(base) {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		return base + strings.TrimPrefix(file, "/")
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, filepath.FromSlash(file))
}

// EffectiveBase picks the base for relative files: the manifest's _base,
// then the caller's override, then the directory the manifest came from.
func EffectiveBase(m *Manifest, override string, src Source) string {
	if m != nil && m.Base != "" {
		return m.Base
	}
	if override != "" {
		return override
	}
	return src.Base
}

func urlDir(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if i := strings.LastIndex(u, "/"); i >= len("https://") {
		return u[:i+1]
	}
	return u + "/"
}

// isProviderName rejects Windows drive letters and paths that merely contain a colon
func isProviderName(provider string) bool {
	if len(provider) < 2 {
		return false
	}
	for _, r := range provider {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
