// Package catalog holds the process-wide sound tables: drum-machine aliases,
// the drum-machine bank map, soundfont names and static collections.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dygy/strudel-samples/internal/manifest"
)

// Default remote tables
const (
	DefaultAliasURL        = "https://raw.githubusercontent.com/todepond/samples/main/tidal-drum-machines-alias.json"
	DefaultDrumMachinesURL = "github:ritchse/tidal-drum-machines/main/machines/tidal-drum-machines.json"
)

// Fetcher reads a manifest body; *fetch.Client satisfies it
type Fetcher interface {
	Get(ctx context.Context, src string) ([]byte, error)
}

// Options configures a Catalog
type Options struct {
	AliasURL        string
	DrumMachinesURL string
	Fetcher         Fetcher
	Logger          *slog.Logger
}

// Catalog is constructed once per process and passed to whoever needs it.
// Its tables are filled by EnsureLoaded and never change afterwards.
type Catalog struct {
	opts   Options
	logger *slog.Logger
	group  singleflight.Group

	mu      sync.RWMutex
	loaded  bool
	aliases *aliasTable
	banks   *bankTable
}

// New creates an unloaded catalog
func New(opts Options) *Catalog {
	if opts.AliasURL == "" {
		opts.AliasURL = DefaultAliasURL
	}
	if opts.DrumMachinesURL == "" {
		opts.DrumMachinesURL = DefaultDrumMachinesURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{opts: opts, logger: logger}
}

// EnsureLoaded fetches the alias file and drum-machine map once. Concurrent
// callers share a single fetch; a failure leaves the catalog unloaded so a
// later call retries.
func (c *Catalog) EnsureLoaded(ctx context.Context) error {
	if c.Loaded() {
		return nil
	}

	// the shared fetch runs detached; ctx only bounds this caller's wait
	ch := c.group.DoChan("load", func() (any, error) {
		if c.Loaded() {
			return nil, nil
		}
		return nil, c.load(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Catalog) load(ctx context.Context) error {
	if c.opts.Fetcher == nil {
		return fmt.Errorf("catalog: no fetcher configured")
	}

	data, err := c.opts.Fetcher.Get(ctx, c.opts.AliasURL)
	if err != nil {
		return fmt.Errorf("fetch alias table: %w", err)
	}
	pairs, err := manifest.ParseAliases(data)
	if err != nil {
		return fmt.Errorf("alias table %s: %w", c.opts.AliasURL, err)
	}

	src, err := manifest.ParseSource(c.opts.DrumMachinesURL)
	if err != nil {
		return fmt.Errorf("drum machine source: %w", err)
	}
	data, err = c.opts.Fetcher.Get(ctx, src.Location)
	if err != nil {
		return fmt.Errorf("fetch drum machine map: %w", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return fmt.Errorf("drum machine map %s: %w", src.Location, err)
	}

	c.Install(pairs, m, manifest.EffectiveBase(m, "", src))
	c.logger.Info("catalog loaded", "aliases", len(pairs), "banks", len(m.Banks))
	return nil
}

// Install sets the tables directly, marking the catalog loaded. Used by
// EnsureLoaded and by callers that ship their own tables.
func (c *Catalog) Install(pairs []manifest.AliasPair, m *manifest.Manifest, base string) {
	aliases := invertAliases(pairs)
	banks := newBankTable(m, base)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return
	}
	c.aliases, c.banks, c.loaded = aliases, banks, true
}

// Loaded reports whether the remote tables are available
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Catalog) tables() (*aliasTable, *bankTable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aliases, c.banks, c.loaded
}

// ResolveAlias maps a short alias to its canonical name, case-insensitive
// first with an exact-case fallback
func (c *Catalog) ResolveAlias(alias string) (string, bool) {
	aliases, _, ok := c.tables()
	if !ok {
		return "", false
	}
	return aliases.resolve(alias)
}

// Aliases returns the alias entries, longest first
func (c *Catalog) Aliases() []AliasEntry {
	aliases, _, ok := c.tables()
	if !ok {
		return nil
	}
	return append([]AliasEntry(nil), aliases.entries...)
}

// BankSamples returns the declared files of a drum-machine bank
func (c *Catalog) BankSamples(bank string) (manifest.Samples, bool) {
	_, banks, ok := c.tables()
	if !ok {
		return manifest.Samples{}, false
	}
	s, found := banks.banks[bank]
	return s, found
}

// DrumBanks lists every drum-machine bank name, sorted
func (c *Catalog) DrumBanks() []string {
	_, banks, ok := c.tables()
	if !ok {
		return nil
	}
	return banks.names()
}

// Base returns the root URL for relative drum-machine files
func (c *Catalog) Base() string {
	_, banks, ok := c.tables()
	if !ok {
		return ""
	}
	return banks.base
}

// DrumSource returns a loadable source holding only the named bank
func (c *Catalog) DrumSource(bank string) (manifest.Source, bool) {
	_, banks, ok := c.tables()
	if !ok {
		return manifest.Source{}, false
	}
	return banks.source(bank)
}
