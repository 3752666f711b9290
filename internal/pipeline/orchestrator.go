// Package pipeline wires the sample subsystem together: it scans pattern
// code, classifies the sounds it finds, loads what the cache lacks and
// tells the engine to reload.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dygy/strudel-samples/internal/cache"
	"github.com/dygy/strudel-samples/internal/catalog"
	"github.com/dygy/strudel-samples/internal/fetch"
	"github.com/dygy/strudel-samples/internal/inflight"
	"github.com/dygy/strudel-samples/internal/loader"
	"github.com/dygy/strudel-samples/internal/manifest"
	"github.com/dygy/strudel-samples/internal/notify"
	"github.com/dygy/strudel-samples/internal/pitch"
	"github.com/dygy/strudel-samples/internal/progress"
	"github.com/dygy/strudel-samples/internal/scan"
	"github.com/dygy/strudel-samples/internal/transcode"
)

// Report summarizes one preload
type Report struct {
	Root      string                   `json:"root"`
	Sounds    []string                 `json:"sounds"`
	Resolved  []catalog.Classification `json:"resolved"`
	Cached    []string                 `json:"cached"`
	Loaded    []string                 `json:"loaded"`
	Failed    map[string]string        `json:"failed,omitempty"`
	Notified  bool                     `json:"notified"`
	Confirmed bool                     `json:"confirmed"`
}

// Deps are the collaborators a Preloader drives
type Deps struct {
	Cache    *cache.SampleCache
	Catalog  *catalog.Catalog
	Loader   *loader.Loader
	Notifier *notify.Notifier
	Scanner  scan.Extractor
	Progress *progress.Reporter
	Logger   *slog.Logger
}

// Preloader is the process-scoped sample context: one per process, shared
// by the CLI and the HTTP server
type Preloader struct {
	cfg      Config
	cache    *cache.SampleCache
	catalog  *catalog.Catalog
	loader   *loader.Loader
	notifier *notify.Notifier
	scanner  scan.Extractor
	progress *progress.Reporter
	logger   *slog.Logger

	loads inflight.Group[*loader.Result]
}

// New builds every collaborator from cfg
func New(cfg Config, out io.Writer, verbose bool, logger *slog.Logger) (*Preloader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sampleCache, err := cache.New(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("open sample cache: %w", err)
	}

	fetcher := fetch.New(cfg.HTTPTimeout)
	registry := pitch.NewRegistry()

	notifier, err := notify.New(notify.Config{
		EngineAddr: cfg.EngineAddr,
		ReplyAddr:  cfg.ReplyAddr,
		Logger:     logger,
	})
	if err != nil {
		logger.Warn("engine control channel unavailable", "addr", cfg.EngineAddr, "error", err)
		notifier, _ = notify.New(notify.Config{Logger: logger})
	}

	return NewPreloader(cfg, Deps{
		Cache: sampleCache,
		Catalog: catalog.New(catalog.Options{
			AliasURL:        cfg.AliasURL,
			DrumMachinesURL: cfg.DrumMachinesURL,
			Fetcher:         fetcher,
			Logger:          logger,
		}),
		Loader: loader.New(loader.Config{
			Cache:       sampleCache,
			Fetcher:     fetcher,
			Converter:   transcode.Detect(cfg.FFmpegPath, logger),
			Registry:    registry,
			Logger:      logger,
			Concurrency: cfg.Concurrency,
		}),
		Notifier: notifier,
		Progress: progress.NewReporter(out, verbose),
		Logger:   logger,
	}), nil
}

// NewPreloader assembles a preloader from existing collaborators
func NewPreloader(cfg Config, deps Deps) *Preloader {
	p := &Preloader{
		cfg:      cfg,
		cache:    deps.Cache,
		catalog:  deps.Catalog,
		loader:   deps.Loader,
		notifier: deps.Notifier,
		scanner:  deps.Scanner,
		progress: deps.Progress,
		logger:   deps.Logger,
	}
	if p.scanner == nil {
		p.scanner = scan.Default
	}
	if p.progress == nil {
		p.progress = progress.NewReporter(nil, false)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.cfg.SoundfontURL == "" {
		p.cfg.SoundfontURL = DefaultSoundfontURL
	}
	if p.cfg.Concurrency <= 0 {
		p.cfg.Concurrency = loader.DefaultConcurrency
	}
	return p
}

// Cache returns the sample cache
func (p *Preloader) Cache() *cache.SampleCache { return p.cache }

// Catalog returns the sound catalog
func (p *Preloader) Catalog() *catalog.Catalog { return p.catalog }

// Registry returns the pitch registry
func (p *Preloader) Registry() *pitch.Registry { return p.loader.Registry() }

// Notifier returns the engine notifier
func (p *Preloader) Notifier() *notify.Notifier { return p.notifier }

// Progress returns the progress reporter
func (p *Preloader) Progress() *progress.Reporter { return p.progress }

// Close releases the control channel
func (p *Preloader) Close() error {
	if p.notifier == nil {
		return nil
	}
	return p.notifier.Close()
}

// Restore registers pitch metadata for every bank already on disk. Run it
// once at startup so pitched banks work without being reloaded.
func (p *Preloader) Restore() (int, error) {
	banks, err := p.cache.Banks()
	if err != nil {
		return 0, fmt.Errorf("list cached banks: %w", err)
	}
	restored := 0
	for _, bank := range banks {
		if p.loader.Restore(bank) {
			restored++
		}
	}
	p.logger.Debug("restored bank metadata", "banks", len(banks), "pitched", restored)
	return restored, nil
}

// Preload makes every sound referenced by code available: scan, classify,
// check the cache, load what is missing (one load per name at a time), then
// ask the engine to reload. Individual failures are recorded in the report.
func (p *Preloader) Preload(ctx context.Context, code string) (*Report, error) {
	report := &Report{Root: p.cache.Root(), Failed: map[string]string{}}

	p.progress.StartStage(progress.StageScan)
	report.Sounds = p.scanner.ExtractSoundNames(code)
	usages := p.scanner.ExtractBankUsage(code)
	p.progress.StageComplete("Found %d sounds, %d bank usages", len(report.Sounds), len(usages))

	p.progress.StartStage(progress.StageResolve)
	if err := p.catalog.EnsureLoaded(ctx); err != nil {
		p.progress.Warning("Drum machine tables unavailable: %v", err)
	}
	pending := p.resolve(report, usages)
	p.progress.StageComplete("%d cached, %d to load", len(report.Cached), len(pending))

	p.progress.StartStage(progress.StageLoad)
	if len(pending) == 0 {
		p.progress.StageComplete("Nothing to download")
	} else {
		p.loadAll(ctx, pending, report)
		p.progress.StageComplete("Loaded %d of %d banks", len(report.Loaded), len(pending))
	}

	p.progress.StartStage(progress.StageNotify)
	switch {
	case len(report.Loaded) == 0:
		p.progress.StageComplete("Engine already up to date")
	case !p.notifier.Enabled():
		p.progress.StageComplete("No engine control channel configured")
	default:
		report.Notified = true
		report.Confirmed = p.notifier.NotifyReload(ctx, report.Root, p.cfg.ConfirmTimeout)
		if report.Confirmed || p.cfg.ConfirmTimeout <= 0 {
			p.progress.StageComplete("Engine reload requested")
		} else {
			p.progress.Warning("Engine did not confirm the reload within %s", p.cfg.ConfirmTimeout)
		}
	}

	return report, ctx.Err()
}

// resolve classifies every candidate and returns the ones missing from disk
func (p *Preloader) resolve(report *Report, usages []scan.BankUsage) []catalog.Classification {
	candidates := make([]catalog.Classification, 0, len(report.Sounds))
	for _, name := range report.Sounds {
		candidates = append(candidates, p.catalog.Classify(catalog.StripIndex(name)))
	}
	for _, u := range usages {
		for _, sound := range u.Sounds {
			candidates = append(candidates, p.classifyBankSound(u.Bank, sound))
		}
	}

	seen := make(map[string]bool)
	var pending []catalog.Classification
	for _, c := range candidates {
		if c.Kind == catalog.Unknown || seen[c.Bank] {
			continue
		}
		seen[c.Bank] = true
		report.Resolved = append(report.Resolved, c)

		if !c.Valid {
			report.Failed[c.Name] = fmt.Sprintf("no bank %s in the drum machine map", c.Bank)
			continue
		}
		if p.cache.IsCached(c.Bank) {
			p.loader.Restore(c.Bank)
			report.Cached = append(report.Cached, c.Bank)
			continue
		}
		pending = append(pending, c)
	}
	return pending
}

// classifyBankSound resolves sound played through .bank(bank): the bank may
// be a canonical machine name or an alias
func (p *Preloader) classifyBankSound(bank, sound string) catalog.Classification {
	full := bank + "_" + sound
	if _, ok := p.catalog.BankSamples(full); ok {
		return catalog.Classification{Name: full, Kind: catalog.DrumMachine, Bank: full, Valid: true}
	}
	return p.catalog.Classify(full)
}

func (p *Preloader) loadAll(ctx context.Context, pending []catalog.Classification, report *Report) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, c := range pending {
		g.Go(func() error {
			_, err := p.LoadSound(gctx, c)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[c.Name] = err.Error()
				p.progress.Warning("%s: %v", c.Name, err)
				return nil
			}
			report.Loaded = append(report.Loaded, c.Bank)
			p.progress.Update("Loaded %s", c.Bank)
			return nil
		})
	}
	g.Wait()
	slices.Sort(report.Loaded)
}

// LoadSound loads the bank behind a classification. Concurrent calls for
// the same name share one load.
func (p *Preloader) LoadSound(ctx context.Context, c catalog.Classification) (*loader.Result, error) {
	return p.loads.LoadOnce(ctx, c.Name, func(ctx context.Context) (*loader.Result, error) {
		src, opts, err := p.sourceFor(c)
		if err != nil {
			return nil, err
		}
		res, err := p.loader.LoadSamples(ctx, src, opts)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(res.Banks, c.Bank) {
			return res, fmt.Errorf("bank %s produced no samples", c.Bank)
		}
		return res, nil
	})
}

func (p *Preloader) sourceFor(c catalog.Classification) (manifest.Source, loader.Options, error) {
	opts := loader.Options{Banks: []string{c.Bank}}

	switch c.Kind {
	case catalog.Soundfont:
		src, err := manifest.ParseSource(fmt.Sprintf(p.cfg.SoundfontURL, c.Bank))
		opts.Soundfont = true
		return src, opts, err
	case catalog.StaticCollection:
		sb, _ := catalog.LookupStatic(c.Name)
		src, err := manifest.ParseSource(sb.Source)
		opts.BaseURL = sb.BaseURL
		return src, opts, err
	case catalog.DrumMachine:
		if src, ok := p.catalog.DrumSource(c.Bank); ok {
			return src, opts, nil
		}
		return manifest.Source{}, opts, fmt.Errorf("no bank %s in the drum machine map", c.Bank)
	}
	return manifest.Source{}, opts, fmt.Errorf("nothing to load for %s", c.Name)
}

// Fetch loads a source given as a shorthand, URL or path and notifies the
// engine when any bank is available. Concurrent fetches of the same source
// with the same options share one load. confirmed reports the engine's reply.
func (p *Preloader) Fetch(ctx context.Context, raw string, opts loader.Options) (res *loader.Result, confirmed bool, err error) {
	src, err := manifest.ParseSource(raw)
	if err != nil {
		return nil, false, err
	}

	res, err = p.loads.LoadOnce(ctx, fetchKey(raw, opts), func(ctx context.Context) (*loader.Result, error) {
		return p.loader.LoadSamples(ctx, src, opts)
	})
	if err != nil {
		return nil, false, err
	}

	if len(res.Banks) > 0 && p.notifier.Enabled() {
		confirmed = p.notifier.NotifyReload(ctx, res.Root, p.cfg.ConfirmTimeout)
	}
	return res, confirmed, nil
}

// fetchKey identifies a Fetch by source and every option that changes its
// result; bank order does not matter
func fetchKey(raw string, opts loader.Options) string {
	banks := slices.Clone(opts.Banks)
	slices.Sort(banks)
	return fmt.Sprintf("fetch:%s|base=%s|banks=%s|soundfont=%t",
		raw, opts.BaseURL, strings.Join(banks, ","), opts.Soundfont)
}
