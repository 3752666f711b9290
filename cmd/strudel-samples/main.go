package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dygy/strudel-samples/internal/cache"
	"github.com/dygy/strudel-samples/internal/catalog"
	"github.com/dygy/strudel-samples/internal/loader"
	"github.com/dygy/strudel-samples/internal/notify"
	"github.com/dygy/strudel-samples/internal/pipeline"
	"github.com/dygy/strudel-samples/internal/pitch"
	"github.com/dygy/strudel-samples/internal/scan"
	"github.com/dygy/strudel-samples/internal/server"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "strudel-samples",
	Short: "Fetch, convert and cache samples for Strudel patterns",
	Long: `strudel-samples makes the sounds a Strudel pattern uses available to
the audio engine before playback.

Pipeline: pattern code → sound names → classify → download/convert → cache → engine reload`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

var preloadCmd = &cobra.Command{
	Use:   "preload <file|->",
	Short: "Preload every sample a pattern uses",
	Long: `Scan pattern code, load the drum machines, soundfonts and sample
collections it references, and ask the engine to reload.

Examples:
  strudel-samples preload song.strudel
  cat song.strudel | strudel-samples preload - --engine 127.0.0.1:57120`,
	Args: cobra.ExactArgs(1),
	RunE: runPreload,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <source>",
	Short: "Load a sample manifest into the cache",
	Long: `Download every bank of a sample manifest. The source may be a
github:user/repo[/branch[/path]] shorthand, an http(s) or file:// URL, or a
local path (a directory means <dir>/strudel.json).

Examples:
  strudel-samples fetch github:tidalcycles/dirt-samples
  strudel-samples fetch https://example.com/pack/strudel.json --bank bd --bank sd
  strudel-samples fetch ./my-pack --base-url https://cdn.example.com/pack/`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <name...>",
	Short: "Show what sound names resolve to",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

var pitchCmd = &cobra.Command{
	Use:   "pitch <bank> <note>",
	Short: "Map a note onto a pitched bank",
	Long: `Show the sample index and playback speed a pitched bank uses for a
note. The note may be a name (c4, F#2), a MIDI number (60) or a frequency (440hz).

Example:
  strudel-samples pitch gm_piano c4`,
	Args: cobra.ExactArgs(2),
	RunE: runPitch,
}

var scanCmd = &cobra.Command{
	Use:   "scan <file|->",
	Short: "List the sound names and bank usages in pattern code",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

var notifyCmd = &cobra.Command{
	Use:   "notify [path]",
	Short: "Ask the engine to reload a sample directory",
	Long: `Send the loadSamples control message to the engine and wait for its
confirmation. The path defaults to the cache root.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNotify,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the sample cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached banks",
	RunE:  runCacheList,
}

var cacheSizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Show the cache size",
	RunE:  runCacheSize,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [bank...]",
	Short: "Remove cached banks (all of them when none are named)",
	RunE:  runCacheClear,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the JSON API for classification, pitch lookups and background
preloads with SSE progress.

Example:
  strudel-samples serve --port 8080`,
	RunE: runServe,
}

var (
	// Global flags
	cacheDir       string
	engineAddr     string
	replyAddr      string
	confirmTimeout time.Duration
	ffmpegPath     string
	concurrency    int
	logLevel       string
	verbose        bool
	aliasURL       string
	machinesURL    string
	soundfontURL   string

	// Command flags
	jsonOutput bool
	baseURL    string
	bankFilter []string
	soundfont  bool
	port       int
)

func init() {
	rootCmd.AddCommand(preloadCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(pitchCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(serveCmd)

	// Cache subcommands
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheSizeCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	defaults := pipeline.DefaultConfig()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cacheDir, "cache-dir", "", "Sample cache root (default: platform data dir, or $"+pipeline.EnvCacheDir+")")
	pf.StringVar(&engineAddr, "engine", "", "Engine control address host:port (or $"+pipeline.EnvEngineAddr+"); empty disables reload requests")
	pf.StringVar(&replyAddr, "reply-addr", defaults.ReplyAddr, "Local address for engine confirmations")
	pf.DurationVar(&confirmTimeout, "confirm-timeout", defaults.ConfirmTimeout, "How long to wait for the engine to confirm a reload (0: don't wait)")
	pf.StringVar(&ffmpegPath, "ffmpeg", defaults.FFmpegPath, "ffmpeg binary used to convert non-WAV samples (or $"+pipeline.EnvFFmpeg+")")
	pf.IntVar(&concurrency, "concurrency", defaults.Concurrency, "Banks loaded in parallel")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose progress output")
	pf.StringVar(&aliasURL, "alias-url", defaults.AliasURL, "Drum machine alias table")
	pf.StringVar(&machinesURL, "machines-url", defaults.DrumMachinesURL, "Drum machine bank map")
	pf.StringVar(&soundfontURL, "soundfont-url", defaults.SoundfontURL, "Soundfont manifest template (%s = instrument)")

	preloadCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")

	fetchCmd.Flags().StringVar(&baseURL, "base-url", "", "Base for relative sample paths when the manifest has no _base")
	fetchCmd.Flags().StringArrayVarP(&bankFilter, "bank", "b", nil, "Only load these banks (repeatable)")
	fetchCmd.Flags().BoolVar(&soundfont, "soundfont", false, "Store banks with the soundfont file layout")
	fetchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")

	classifyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print classifications as JSON")

	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
}

// parseLevel maps a --log-level value onto slog
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level: %s", level)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := parseLevel(logLevel)
	if err != nil {
		return err
	}
	if verbose && level > slog.LevelInfo {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// buildConfig merges flags, then environment, over the defaults
func buildConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.CacheDir = cacheDir
	cfg.EngineAddr = engineAddr
	cfg.ReplyAddr = replyAddr
	cfg.ConfirmTimeout = confirmTimeout
	cfg.FFmpegPath = ffmpegPath
	cfg.Concurrency = concurrency
	cfg.AliasURL = aliasURL
	cfg.DrumMachinesURL = machinesURL
	cfg.SoundfontURL = soundfontURL
	cfg.ApplyEnv()
	return cfg
}

// openPreloader builds the process-scoped preloader and restores pitch
// metadata of banks already on disk
func openPreloader(out io.Writer) (*pipeline.Preloader, error) {
	p, err := pipeline.New(buildConfig(), out, verbose, slog.Default())
	if err != nil {
		return nil, err
	}
	if _, err := p.Restore(); err != nil {
		slog.Warn("restore bank metadata", "error", err)
	}
	return p, nil
}

// signalContext is cancelled on SIGINT/SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// readCode reads pattern code from a file, or stdin for "-"
func readCode(arg string, stdin io.Reader) (string, error) {
	var data []byte
	var err error
	if arg == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("read pattern code: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runPreload(cmd *cobra.Command, args []string) error {
	code, err := readCode(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	progressOut := io.Writer(os.Stderr)
	if jsonOutput && !verbose {
		progressOut = io.Discard
	}
	p, err := openPreloader(progressOut)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := signalContext()
	defer cancel()

	report, err := p.Preload(ctx, code)
	if err != nil {
		p.Progress().Error(err)
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), report)
	}

	out := cmd.OutOrStdout()
	for _, name := range sortedKeys(report.Failed) {
		fmt.Fprintf(out, "  failed  %s: %s\n", name, report.Failed[name])
	}
	p.Progress().Done(report.Root)
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	p, err := openPreloader(os.Stderr)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := signalContext()
	defer cancel()

	res, confirmed, err := p.Fetch(ctx, args[0], loader.Options{
		BaseURL:   baseURL,
		Banks:     bankFilter,
		Soundfont: soundfont,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"root":      res.Root,
			"banks":     res.Banks,
			"confirmed": confirmed,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loaded %d banks into %s\n", len(res.Banks), res.Root)
	for _, bank := range res.Banks {
		fmt.Fprintf(out, "  %s\n", bank)
	}
	if p.Notifier().Enabled() {
		fmt.Fprintf(out, "Engine confirmed reload: %v\n", confirmed)
	}
	return nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	p, err := openPreloader(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := p.Catalog().EnsureLoaded(ctx); err != nil {
		slog.Warn("drum machine tables unavailable", "error", err)
	}

	results := make([]catalog.Classification, len(args))
	for i, name := range args {
		results[i] = p.Catalog().Classify(catalog.StripIndex(name))
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), results)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tBANK\tVALID\tCACHED")
	for _, c := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%v\n", c.Name, c.Kind, c.Bank, c.Valid, c.Bank != "" && p.Cache().IsCached(c.Bank))
	}
	return tw.Flush()
}

// noteEvent turns a CLI note argument into the event field the engine
// would carry for it
func noteEvent(arg string) pitch.Event {
	lower := strings.ToLower(arg)
	if hz, ok := strings.CutSuffix(lower, "hz"); ok {
		if f, err := strconv.ParseFloat(hz, 64); err == nil {
			return pitch.Event{pitch.FieldFreq: f}
		}
	}
	if n, err := strconv.ParseFloat(arg, 64); err == nil {
		return pitch.Event{pitch.FieldMidiNote: n}
	}
	return pitch.Event{pitch.FieldNote: arg}
}

func runPitch(cmd *cobra.Command, args []string) error {
	p, err := openPreloader(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	bank := args[0]
	ev := noteEvent(args[1])
	target := pitch.ResolveTargetMidi(ev)

	adjusted, ok := p.Registry().AdjustEvent(bank, ev)
	if !ok {
		return fmt.Errorf("bank %s is not pitched (or not cached)", bank)
	}
	meta, _ := p.Registry().Get(bank)
	n := adjusted[pitch.FieldIndex].(int)

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (midi %.2f) -> n=%d (sample %s) speed=%.4f\n",
		bank, args[1], target, n, pitch.NoteName(meta.SampleMidiNotes[n]), adjusted[pitch.FieldSpeed])
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	code, err := readCode(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Sounds:")
	for _, name := range scan.ExtractSoundNames(code) {
		fmt.Fprintf(out, "  %s\n", name)
	}

	usages := scan.ExtractBankUsage(code)
	if len(usages) > 0 {
		fmt.Fprintln(out, "Banks:")
		for _, u := range usages {
			fmt.Fprintf(out, "  %s: %s\n", u.Bank, strings.Join(u.Sounds, " "))
		}
	}
	return nil
}

func runNotify(cmd *cobra.Command, args []string) error {
	cfg := buildConfig()
	if cfg.EngineAddr == "" {
		return fmt.Errorf("no engine address: pass --engine or set %s", pipeline.EnvEngineAddr)
	}

	n, err := notify.New(notify.Config{
		EngineAddr: cfg.EngineAddr,
		ReplyAddr:  cfg.ReplyAddr,
		Logger:     slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("open control channel: %w", err)
	}
	defer n.Close()

	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		sampleCache, err := cache.New(cfg.CacheDir)
		if err != nil {
			return err
		}
		path = sampleCache.Root()
	}

	ctx, cancel := signalContext()
	defer cancel()

	if !n.NotifyReload(ctx, path, cfg.ConfirmTimeout) {
		return fmt.Errorf("engine at %s did not confirm loading %s within %s", cfg.EngineAddr, path, cfg.ConfirmTimeout)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Engine reloaded %s\n", path)
	return nil
}

func runCacheList(cmd *cobra.Command, args []string) error {
	p, err := openPreloader(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	banks, err := p.Cache().Banks()
	if err != nil {
		return fmt.Errorf("list banks: %w", err)
	}
	if len(banks) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No cached banks in %s\n", p.Cache().Root())
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BANK\tSAMPLES\tPITCHED")
	for _, bank := range banks {
		files, _ := p.Cache().Files(bank)
		meta, ok := p.Registry().Get(bank)
		fmt.Fprintf(tw, "%s\t%d\t%v\n", bank, len(files), ok && meta.IsPitched)
	}
	return tw.Flush()
}

func runCacheSize(cmd *cobra.Command, args []string) error {
	p, err := openPreloader(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	size, count, err := p.Cache().Size()
	if err != nil {
		return fmt.Errorf("measure cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d banks, %s in %s\n", count, formatBytes(size), p.Cache().Root())
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	p, err := openPreloader(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	if len(args) == 0 {
		if err := p.Cache().Clear(); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		p.Registry().Reset()
		fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
		return nil
	}

	for _, bank := range args {
		if err := p.Cache().Remove(bank); err != nil {
			return fmt.Errorf("remove %s: %w", bank, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", bank)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	p, err := openPreloader(os.Stderr)
	if err != nil {
		return err
	}
	defer p.Close()

	srv := server.New(server.Config{Port: port, Logger: slog.Default()}, p)
	defer srv.Close()
	return srv.Run()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
