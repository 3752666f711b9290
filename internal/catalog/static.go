package catalog

import "sort"

const doughSamples = "https://raw.githubusercontent.com/felixroos/dough-samples/main/"

// StaticBank is a named sample collection with a fixed manifest location.
// Loads are filtered to Bank so one sound does not pull the whole collection.
type StaticBank struct {
	Name    string `json:"name"`
	Source  string `json:"source"`
	BaseURL string `json:"baseUrl,omitempty"`
	Bank    string `json:"bank"`
}

var dirtSamples = []string{
	"808", "808bd", "808cy", "808hc", "808ht", "808lc", "808lt", "808mc", "808mt",
	"808oh", "808sd", "arpy", "bass", "bass1", "bd", "bottle", "casio", "cp",
	"crow", "drum", "east", "feel", "future", "gtr", "hh", "hh27", "jazz",
	"jvbass", "metal", "moog", "numbers", "oh", "pluck", "sd", "sn", "space",
	"tabla", "wind",
}

var staticBanks = func() map[string]StaticBank {
	banks := map[string]StaticBank{
		"piano": {Name: "piano", Source: doughSamples + "piano.json", Bank: "piano"},
	}
	for _, name := range dirtSamples {
		banks[name] = StaticBank{Name: name, Source: doughSamples + "Dirt-Samples.json", Bank: name}
	}
	return banks
}()

// LookupStatic returns the static collection entry for name
func LookupStatic(name string) (StaticBank, bool) {
	b, ok := staticBanks[name]
	return b, ok
}

// StaticBanks lists every static collection name, sorted
func StaticBanks() []string {
	names := make([]string, 0, len(staticBanks))
	for name := range staticBanks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
