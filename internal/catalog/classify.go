package catalog

import (
	"fmt"
	"strings"
)

// Kind is the category a sound name falls into
type Kind int

const (
	Unknown Kind = iota
	Soundfont
	StaticCollection
	DrumMachine
)

func (k Kind) String() string {
	switch k {
	case Soundfont:
		return "soundfont"
	case StaticCollection:
		return "static"
	case DrumMachine:
		return "drum-machine"
	}
	return "unknown"
}

// MarshalText lets Kind appear as a string in JSON responses
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText is the inverse of MarshalText
func (k *Kind) UnmarshalText(text []byte) error {
	for _, candidate := range []Kind{Unknown, Soundfont, StaticCollection, DrumMachine} {
		if candidate.String() == string(text) {
			*k = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown sound kind %q", text)
}

// Classification is the outcome of Classify. Bank is the bank to load: the
// soundfont or collection name, or the full drum-machine bank name.
type Classification struct {
	Name  string      `json:"name"`
	Kind  Kind        `json:"kind"`
	Bank  string      `json:"bank,omitempty"`
	Valid bool        `json:"valid"`
	Alias *AliasEntry `json:"alias,omitempty"`
}

// StripIndex removes a sample-index suffix: "sd:2" -> "sd"
func StripIndex(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}

// Classify decides what kind of sound name is. Unknown is not an error: it
// covers synth voices and names that need no loading. Drum-machine
// matching needs EnsureLoaded to have succeeded.
func (c *Catalog) Classify(name string) Classification {
	if IsSoundfont(name) {
		return Classification{Name: name, Kind: Soundfont, Bank: name, Valid: true}
	}
	if sb, ok := LookupStatic(name); ok {
		return Classification{Name: name, Kind: StaticCollection, Bank: sb.Bank, Valid: true}
	}
	if dm, ok := c.classifyDrum(name); ok {
		return dm
	}
	return Classification{Name: name, Kind: Unknown}
}

// classifyDrum returns the first alias whose bank exists. When no candidate
// bank exists the first structural match is returned with Valid false.
func (c *Catalog) classifyDrum(name string) (Classification, bool) {
	aliases, banks, ok := c.tables()
	if !ok {
		return Classification{}, false
	}

	lower := strings.ToLower(name)
	var fallback *Classification
	for i := range aliases.entries {
		entry := aliases.entries[i]

		var voice string
		switch {
		case strings.HasPrefix(lower, entry.AliasLower):
			voice = name[len(entry.AliasLower):]
		case strings.HasPrefix(name, entry.Alias):
			voice = name[len(entry.Alias):]
		default:
			continue
		}
		voice = strings.TrimLeft(voice, "_-")
		if voice == "" {
			continue
		}

		result := Classification{Name: name, Kind: DrumMachine, Alias: &entry}
		for _, v := range []string{voice, strings.ToLower(voice)} {
			bank := entry.CanonicalName + "_" + v
			if _, exists := banks.banks[bank]; exists {
				result.Bank, result.Valid = bank, true
				return result, true
			}
		}

		if fallback == nil {
			result.Bank = entry.CanonicalName + "_" + voice
			fallback = &result
		}
	}

	if fallback != nil {
		return *fallback, true
	}
	return Classification{}, false
}
