package catalog

import (
	"sort"

	"github.com/dygy/strudel-samples/internal/manifest"
)

// bankTable is the drum-machine BankSampleMap plus its resolved base
type bankTable struct {
	base    string
	banks   map[string]manifest.Samples
	ordered *manifest.Manifest
}

func newBankTable(m *manifest.Manifest, base string) *bankTable {
	t := &bankTable{
		base:    base,
		banks:   make(map[string]manifest.Samples, len(m.Banks)),
		ordered: m,
	}
	for _, b := range m.Banks {
		t.banks[b.Name] = b.Samples
	}
	return t
}

func (t *bankTable) names() []string {
	names := make([]string, 0, len(t.banks))
	for name := range t.banks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// source returns an inline manifest holding only the named bank
func (t *bankTable) source(bank string) (manifest.Source, bool) {
	samples, ok := t.banks[bank]
	if !ok {
		return manifest.Source{}, false
	}
	return manifest.Inline(&manifest.Manifest{
		Base:  t.base,
		Banks: []manifest.Bank{{Name: bank, Samples: samples}},
	}), true
}
