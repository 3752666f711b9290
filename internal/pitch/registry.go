// Package pitch keeps per-bank pitch metadata and maps musical pitch onto
// the (sample index, playback speed) pairs the engine understands.
package pitch

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dygy/strudel-samples/internal/manifest"
)

// BankMetadata describes how a bank's sample indices relate to pitch.
// When IsPitched, SampleMidiNotes is ascending and has SampleCount entries.
type BankMetadata struct {
	Name            string `json:"name"`
	IsPitched       bool   `json:"isPitched"`
	SampleMidiNotes []int  `json:"sampleMidiNotes,omitempty"`
	SampleCount     int    `json:"sampleCount"`
	IsSoundfont     bool   `json:"isSoundfont"`
}

// Entry is one declared sample in production order
type Entry struct {
	Key    string // note key for keyed banks, empty for flat banks
	File   string
	Midi   int
	Parsed bool // Key is a valid note name
}

// Order lays out a bank's samples in the order files must be produced so
// that file position equals registry index. For pitched banks parsed keys
// come first, ascending by MIDI (declaration order on equal pitch), and
// unparsable keys follow. Underscore keys are not samples.
func Order(samples manifest.Samples) ([]Entry, bool) {
	if !samples.Keyed() {
		entries := make([]Entry, len(samples.Files))
		for i, f := range samples.Files {
			entries[i] = Entry{File: f}
		}
		return entries, false
	}

	var entries []Entry
	parsed := 0
	for _, nf := range samples.Notes {
		if strings.HasPrefix(nf.Key, "_") {
			continue
		}
		e := Entry{Key: nf.Key, File: nf.File}
		if n, ok := ParseNote(nf.Key); ok {
			e.Midi, e.Parsed = n, true
			parsed++
		}
		entries = append(entries, e)
	}

	pitched := parsed >= 2 && parsed*2 > len(entries)
	if pitched {
		sort.SliceStable(entries, func(i, j int) bool {
			a, b := entries[i], entries[j]
			if a.Parsed != b.Parsed {
				return a.Parsed
			}
			return a.Parsed && a.Midi < b.Midi
		})
	}
	return entries, pitched
}

// Describe builds metadata for entries laid out by Order. Unparsable keys
// of a pitched bank are left out of the mapping.
func Describe(bank string, entries []Entry, pitched bool) BankMetadata {
	meta := BankMetadata{Name: bank}
	if !pitched {
		meta.SampleCount = len(entries)
		return meta
	}

	for _, e := range entries {
		if e.Parsed {
			meta.SampleMidiNotes = append(meta.SampleMidiNotes, e.Midi)
		}
	}
	meta.SampleCount = len(meta.SampleMidiNotes)
	meta.IsPitched = meta.SampleCount > 0
	return meta
}

// Registry holds bank metadata for the process lifetime
type Registry struct {
	mu    sync.RWMutex
	banks map[string]BankMetadata
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{banks: make(map[string]BankMetadata)}
}

// Register classifies a bank's declared samples and stores the result
func (r *Registry) Register(bank string, samples manifest.Samples) BankMetadata {
	entries, pitched := Order(samples)
	meta := Describe(bank, entries, pitched)
	r.Put(meta)
	return meta
}

var soundfontFile = regexp.MustCompile(`^(\d+)_note(\d+)\.\w+$`)

// RegisterFromFilenames rebuilds soundfont metadata from cached file names
// of the form NNN_noteMMM.ext. At least two matching files are required.
func (r *Registry) RegisterFromFilenames(bank string, files []string) (BankMetadata, bool) {
	type indexed struct{ index, midi int }

	var found []indexed
	for _, f := range files {
		m := soundfontFile.FindStringSubmatch(f)
		if m == nil {
			continue
		}
		index, err1 := strconv.Atoi(m[1])
		midi, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		found = append(found, indexed{index, midi})
	}
	if len(found) < 2 {
		return BankMetadata{}, false
	}

	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })
	meta := BankMetadata{Name: bank, IsPitched: true, IsSoundfont: true, SampleCount: len(found)}
	for _, f := range found {
		meta.SampleMidiNotes = append(meta.SampleMidiNotes, f.midi)
	}
	r.Put(meta)
	return meta, true
}

// Put stores metadata computed elsewhere (loader results, disk sidecars)
func (r *Registry) Put(meta BankMetadata) {
	r.mu.Lock()
	r.banks[meta.Name] = meta
	r.mu.Unlock()
}

// Get returns the metadata of a bank
func (r *Registry) Get(bank string) (BankMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.banks[bank]
	return meta, ok
}

// Banks returns the registered bank names, sorted
func (r *Registry) Banks() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.banks))
	for name := range r.banks {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Reset drops every entry. Only tests need this.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.banks = make(map[string]BankMetadata)
	r.mu.Unlock()
}

// NearestSampleAndSpeed picks the sample closest in pitch to target and the
// speed that shifts it the rest of the way. ok is false for unknown or
// unpitched banks. Equal distances resolve to the lower index.
func (r *Registry) NearestSampleAndSpeed(bank string, target float64) (index int, speed float64, ok bool) {
	meta, found := r.Get(bank)
	if !found || !meta.IsPitched || len(meta.SampleMidiNotes) == 0 {
		return 0, 0, false
	}

	best := math.Inf(1)
	for i, m := range meta.SampleMidiNotes {
		if d := math.Abs(float64(m) - target); d < best {
			best, index = d, i
		}
	}
	return index, SpeedFor(target, float64(meta.SampleMidiNotes[index])), true
}
