// Package scan finds the sound names and bank usages referenced by pattern
// code. It is a regex heuristic, not a parser: it reads s("..."), sound("...")
// and bank("...") calls wherever they appear, including inside comments.
package scan

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultWindow is how many bytes either side of a bank("...") call are
// searched for the s(...) calls it applies to
const DefaultWindow = 200

// BankUsage associates a bank with the sounds played near it
type BankUsage struct {
	Bank   string   `json:"bank"`
	Sounds []string `json:"sounds"`
}

// Extractor finds sounds in pattern code
type Extractor interface {
	ExtractSoundNames(code string) []string
	ExtractBankUsage(code string) []BankUsage
}

const quoted = `\(\s*(?:"([^"]*)"|'([^']*)'|` + "`([^`]*)`" + `)`

var (
	soundCall = regexp.MustCompile(`\b(?:s|sound)` + quoted)
	bankCall  = regexp.MustCompile(`\bbank` + quoted)
	soundName = regexp.MustCompile(`^[0-9]*[A-Za-z_][A-Za-z0-9_]*$`)
)

// Mini-notation structure and operators; none can appear in a sound name
const delimiters = " \t\r\n[]<>*/,(){}|@!?~."

// Heuristic is the regex-based Extractor
type Heuristic struct {
	Window int
}

// Default is the extractor used by the package-level functions
var Default = Heuristic{Window: DefaultWindow}

// ExtractSoundNames returns the distinct sound names in code, sorted
func ExtractSoundNames(code string) []string {
	return Default.ExtractSoundNames(code)
}

// ExtractBankUsage returns each bank("...") with the sounds found around it
func ExtractBankUsage(code string) []BankUsage {
	return Default.ExtractBankUsage(code)
}

func (h Heuristic) ExtractSoundNames(code string) []string {
	names := soundsIn(code)
	sort.Strings(names)
	return names
}

func (h Heuristic) ExtractBankUsage(code string) []BankUsage {
	window := h.Window
	if window <= 0 {
		window = DefaultWindow
	}

	var usages []BankUsage
	index := make(map[string]int)
	for _, loc := range bankCall.FindAllStringSubmatchIndex(code, -1) {
		bank := strings.TrimSpace(group(code, loc))
		if bank == "" {
			continue
		}

		from := max(0, loc[0]-window)
		to := min(len(code), loc[1]+window)
		sounds := soundsIn(code[from:to])

		i, seen := index[bank]
		if !seen {
			index[bank] = len(usages)
			usages = append(usages, BankUsage{Bank: bank, Sounds: sounds})
			continue
		}
		usages[i].Sounds = appendNew(usages[i].Sounds, sounds...)
	}
	return usages
}

// soundsIn lists the sound names of every s()/sound() call in text, in
// order of first appearance
func soundsIn(text string) []string {
	var names []string
	for _, loc := range soundCall.FindAllStringSubmatchIndex(text, -1) {
		names = appendNew(names, Tokens(group(text, loc))...)
	}
	return names
}

// Tokens splits mini-notation into candidate sound names: index suffixes
// (name:N) are stripped and anything that is not a bare identifier dropped
func Tokens(pattern string) []string {
	var out []string
	for _, tok := range strings.FieldsFunc(pattern, func(r rune) bool {
		return strings.ContainsRune(delimiters, r)
	}) {
		if i := strings.IndexByte(tok, ':'); i >= 0 {
			tok = tok[:i]
		}
		if soundName.MatchString(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// group returns whichever quote alternative matched
func group(s string, loc []int) string {
	for g := 1; g*2+1 < len(loc); g++ {
		if loc[g*2] >= 0 {
			return s[loc[g*2]:loc[g*2+1]]
		}
	}
	return ""
}

func appendNew(list []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, have := range list {
			if have == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}
