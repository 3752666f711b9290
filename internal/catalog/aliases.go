package catalog

import (
	"sort"
	"strings"

	"github.com/dygy/strudel-samples/internal/manifest"
)

// AliasEntry maps a short alias back to its canonical bank prefix
type AliasEntry struct {
	Alias         string `json:"alias"`
	AliasLower    string `json:"aliasLower"`
	CanonicalName string `json:"canonicalName"`
}

// aliasTable is immutable once built
type aliasTable struct {
	entries []AliasEntry // longest alias first
	lower   map[string]string
	exact   map[string]string
}

// invertAliases turns "Canonical": "alias" pairs into alias lookups.
// The first declaration of an alias wins.
func invertAliases(pairs []manifest.AliasPair) *aliasTable {
	t := &aliasTable{
		lower: make(map[string]string, len(pairs)),
		exact: make(map[string]string, len(pairs)),
	}

	for _, p := range pairs {
		if p.Alias == "" || p.Canonical == "" {
			continue
		}
		if _, dup := t.exact[p.Alias]; dup {
			continue
		}
		lower := strings.ToLower(p.Alias)
		t.exact[p.Alias] = p.Canonical
		if _, taken := t.lower[lower]; !taken {
			t.lower[lower] = p.Canonical
		}
		t.entries = append(t.entries, AliasEntry{Alias: p.Alias, AliasLower: lower, CanonicalName: p.Canonical})
	}

	// A shorter alias must not shadow a longer one sharing its prefix
	sort.SliceStable(t.entries, func(i, j int) bool {
		return len(t.entries[i].Alias) > len(t.entries[j].Alias)
	})
	return t
}

func (t *aliasTable) resolve(alias string) (string, bool) {
	if c, ok := t.lower[strings.ToLower(alias)]; ok {
		return c, true
	}
	c, ok := t.exact[alias]
	return c, ok
}
