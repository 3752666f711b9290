package pipeline

import (
	"os"
	"time"

	"github.com/dygy/strudel-samples/internal/catalog"
	"github.com/dygy/strudel-samples/internal/loader"
	"github.com/dygy/strudel-samples/internal/notify"
)

// Environment overrides
const (
	EnvCacheDir   = "STRUDEL_SAMPLES_DIR"
	EnvEngineAddr = "STRUDEL_ENGINE_ADDR"
	EnvFFmpeg     = "FFMPEG_PATH"
)

// DefaultSoundfontURL locates a soundfont's note-keyed manifest; %s is the
// instrument name
const DefaultSoundfontURL = "https://raw.githubusercontent.com/felixroos/dough-samples/main/soundfonts/%s.json"

// Config holds preloader configuration
type Config struct {
	CacheDir        string // empty: platform default
	AliasURL        string
	DrumMachinesURL string
	SoundfontURL    string
	EngineAddr      string // host:port of the engine; empty: no control channel
	ReplyAddr       string
	ConfirmTimeout  time.Duration // <= 0: fire-and-forget
	Concurrency     int
	HTTPTimeout     time.Duration
	FFmpegPath      string
}

// DefaultConfig returns default preloader configuration
func DefaultConfig() Config {
	return Config{
		AliasURL:        catalog.DefaultAliasURL,
		DrumMachinesURL: catalog.DefaultDrumMachinesURL,
		SoundfontURL:    DefaultSoundfontURL,
		ReplyAddr:       notify.DefaultReplyAddr,
		ConfirmTimeout:  5 * time.Second,
		Concurrency:     loader.DefaultConcurrency,
		HTTPTimeout:     60 * time.Second,
		FFmpegPath:      "ffmpeg",
	}
}

// ApplyEnv fills unset fields from the environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvCacheDir); v != "" && c.CacheDir == "" {
		c.CacheDir = v
	}
	if v := os.Getenv(EnvEngineAddr); v != "" && c.EngineAddr == "" {
		c.EngineAddr = v
	}
	if v := os.Getenv(EnvFFmpeg); v != "" && (c.FFmpegPath == "" || c.FFmpegPath == "ffmpeg") {
		c.FFmpegPath = v
	}
}
