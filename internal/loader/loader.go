// Package loader resolves sample sources into banks on disk: it downloads
// every declared file, converts non-native formats and promotes the results
// into the cache once a bank has settled.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dygy/strudel-samples/internal/audio"
	"github.com/dygy/strudel-samples/internal/cache"
	apperrors "github.com/dygy/strudel-samples/internal/errors"
	"github.com/dygy/strudel-samples/internal/manifest"
	"github.com/dygy/strudel-samples/internal/pitch"
	"github.com/dygy/strudel-samples/internal/transcode"
	"github.com/dygy/strudel-samples/internal/workspace"
)

// DefaultConcurrency bounds how many banks of one manifest load at once
const DefaultConcurrency = 4

// Fetcher reads manifests and downloads files; *fetch.Client satisfies it
type Fetcher interface {
	Get(ctx context.Context, src string) ([]byte, error)
	Download(ctx context.Context, src, dst string) (int64, error)
}

// Config wires a Loader
type Config struct {
	Cache       *cache.SampleCache
	Fetcher     Fetcher
	Converter   transcode.Converter // nil: convertible formats are skipped
	Registry    *pitch.Registry
	Logger      *slog.Logger
	Concurrency int
}

// Options adjusts a single load
type Options struct {
	BaseURL   string   // used when the manifest has no _base
	Banks     []string // restrict the load to these banks
	Soundfont bool     // name files NNN_noteMMM and mark metadata as soundfont
}

// Result lists the banks that hold at least one sample after the load
type Result struct {
	Root  string   `json:"root"`
	Banks []string `json:"banks"`
}

// Loader fills the sample cache
type Loader struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	manifests map[string]*manifest.Manifest
}

// New creates a loader
func New(cfg Config) *Loader {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Registry == nil {
		cfg.Registry = pitch.NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{cfg: cfg, logger: logger, manifests: make(map[string]*manifest.Manifest)}
}

// Root returns the cache root
func (l *Loader) Root() string {
	return l.cfg.Cache.Root()
}

// Registry returns the pitch registry the loader populates
func (l *Loader) Registry() *pitch.Registry {
	return l.cfg.Registry
}

// LoadSamples makes every bank of src available in the cache. Banks that
// are already cached cost no network access. Per-file and per-bank failures
// are logged and skipped; only a manifest that cannot be read is an error.
func (l *Loader) LoadSamples(ctx context.Context, src manifest.Source, opts Options) (*Result, error) {
	result := &Result{Root: l.Root()}

	if len(opts.Banks) > 0 && l.allCached(opts.Banks) {
		result.Banks = append(result.Banks, opts.Banks...)
		return result, nil
	}

	m, err := l.manifest(ctx, src)
	if err != nil {
		return nil, err
	}
	m = m.Filter(opts.Banks)
	base := manifest.EffectiveBase(m, opts.BaseURL, src)

	loaded := make([]bool, len(m.Banks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)
	for i, b := range m.Banks {
		g.Go(func() error {
			loaded[i] = l.loadBank(gctx, b, base, opts.Soundfont)
			return nil
		})
	}
	g.Wait()

	for i, b := range m.Banks {
		if loaded[i] {
			result.Banks = append(result.Banks, b.Name)
		}
	}
	return result, ctx.Err()
}

func (l *Loader) allCached(banks []string) bool {
	for _, b := range banks {
		if !l.cfg.Cache.IsCached(b) {
			return false
		}
	}
	for _, b := range banks {
		l.Restore(b)
	}
	return true
}

// manifest returns the parsed manifest of src, fetching each location once
func (l *Loader) manifest(ctx context.Context, src manifest.Source) (*manifest.Manifest, error) {
	if src.Kind == manifest.SourceInline {
		if src.Inline == nil {
			return nil, fmt.Errorf("%w: inline source without manifest", apperrors.ErrInvalidSource)
		}
		return src.Inline, nil
	}

	l.mu.Lock()
	m, ok := l.manifests[src.Location]
	l.mu.Unlock()
	if ok {
		return m, nil
	}

	data, err := l.cfg.Fetcher.Get(ctx, src.Location)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	m, err = manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", src.Location, err)
	}

	l.mu.Lock()
	l.manifests[src.Location] = m
	l.mu.Unlock()
	return m, nil
}

// Restore registers pitch metadata for a cached bank from its sidecar, or
// from NNN_noteMMM file names when there is none
func (l *Loader) Restore(bank string) bool {
	if _, ok := l.cfg.Registry.Get(bank); ok {
		return true
	}

	var meta pitch.BankMetadata
	if ok, err := l.cfg.Cache.ReadMetadata(bank, &meta); err != nil {
		l.logger.Warn("unreadable bank metadata", "bank", bank, "error", err)
	} else if ok {
		meta.Name = bank
		l.cfg.Registry.Put(meta)
		return true
	}

	files, err := l.cfg.Cache.Files(bank)
	if err != nil {
		return false
	}
	_, ok := l.cfg.Registry.RegisterFromFilenames(bank, files)
	return ok
}

type produced struct {
	entry pitch.Entry
	path  string // finished file inside the workspace
	name  string // final file name in the bank dir
}

func (l *Loader) loadBank(ctx context.Context, b manifest.Bank, base string, soundfont bool) bool {
	log := l.logger.With("bank", b.Name)

	if !cache.ValidBankName(b.Name) {
		log.Warn("skipping bank with unusable name")
		return false
	}
	if l.cfg.Cache.IsCached(b.Name) {
		if !l.Restore(b.Name) {
			l.cfg.Registry.Register(b.Name, b.Samples)
		}
		log.Debug("bank already cached")
		return true
	}

	ws, err := workspace.Create(l.Root())
	if err != nil {
		log.Error("create workspace", "error", err)
		return false
	}
	defer ws.Cleanup()

	entries, pitched := pitch.Order(b.Samples)
	var done []produced
	for i, e := range entries {
		if ctx.Err() != nil {
			return false
		}

		url := manifest.ResolveFile(base, e.File)
		path, ext, err := l.produce(ctx, ws, i, url)
		if err != nil {
			log.Warn("skipping sample", "url", url, "error", err)
			continue
		}

		index := len(done)
		name := cache.SampleFileName(index, e.File, ext)
		if soundfont && e.Parsed {
			name = cache.SoundfontFileName(index, e.Midi, ext)
		}
		done = append(done, produced{entry: e, path: path, name: name})
	}

	if len(done) == 0 {
		log.Warn("no samples could be loaded")
		return false
	}
	return l.commit(b.Name, ws, done, pitched, soundfont, log)
}

// produce downloads one file into the workspace, converting it when its
// format is not native. It returns the finished path and its extension.
func (l *Loader) produce(ctx context.Context, ws *workspace.Workspace, i int, url string) (string, string, error) {
	ext := audio.Ext(url)

	switch {
	case audio.IsNative(url):
		dl := ws.Download(i, ext)
		if _, err := l.cfg.Fetcher.Download(ctx, url, dl); err != nil {
			return "", "", err
		}
		if _, err := audio.ValidateNative(dl); err != nil {
			return "", "", err
		}
		return dl, ext, nil

	case audio.IsConvertible(url):
		if l.cfg.Converter == nil || !l.cfg.Converter.CanConvert(ext) {
			return "", "", fmt.Errorf("%w: cannot convert %s", apperrors.ErrToolNotInstalled, ext)
		}
		dl := ws.Download(i, ext)
		if _, err := l.cfg.Fetcher.Download(ctx, url, dl); err != nil {
			return "", "", err
		}
		out := ws.Converted(i, audio.NativeExt)
		err := l.cfg.Converter.Convert(ctx, dl, out)
		os.Remove(dl)
		if err != nil {
			return "", "", err
		}
		if _, err := audio.ValidateNative(out); err != nil {
			return "", "", err
		}
		return out, audio.NativeExt, nil
	}

	return "", "", fmt.Errorf("%w: %q", apperrors.ErrUnsupportedFormat, ext)
}

// commit moves the finished files into the bank directory together, so the
// bank only looks cached once every file has settled
func (l *Loader) commit(bank string, ws *workspace.Workspace, done []produced, pitched, soundfont bool, log *slog.Logger) bool {
	dir, err := l.cfg.Cache.EnsureBankDir(bank)
	if err != nil {
		log.Error("create bank dir", "error", err)
		return false
	}

	entries := make([]pitch.Entry, len(done))
	for i, p := range done {
		entries[i] = p.entry
	}
	meta := pitch.Describe(bank, entries, pitched)
	meta.IsSoundfont = soundfont && meta.IsPitched

	// The sidecar goes first: it is not a native file, so the bank still
	// reads as uncached until the samples land
	if err := l.cfg.Cache.WriteMetadata(bank, meta); err != nil {
		log.Warn("write bank metadata", "error", err)
	}

	promoted := 0
	for _, p := range done {
		if err := ws.Promote(p.path, filepath.Join(dir, p.name)); err != nil {
			log.Error("promote sample", "file", p.name, "error", err)
			continue
		}
		promoted++
	}
	if promoted == 0 {
		return false
	}

	l.cfg.Registry.Put(meta)
	log.Info("bank loaded", "samples", promoted, "pitched", meta.IsPitched)
	return true
}
