// Package manifest parses sample manifests (strudel.json style) and the
// drum-machine alias file, preserving the key order found in the JSON text.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/dygy/strudel-samples/internal/errors"
)

// BaseKey is the manifest key that carries the default root URL
const BaseKey = "_base"

// NoteFile is one entry of a note-keyed bank
type NoteFile struct {
	Key  string `json:"key"`
	File string `json:"file"`
}

// Samples is the file list of a single bank. Exactly one of Files or Notes
// is set: Files for flat (positional) banks, Notes for key→file banks.
type Samples struct {
	Files []string   `json:"files,omitempty"`
	Notes []NoteFile `json:"notes,omitempty"`
}

// Keyed reports whether the bank was declared as a key→file mapping
func (s Samples) Keyed() bool {
	return s.Notes != nil
}

// Len returns the number of declared files
func (s Samples) Len() int {
	if s.Keyed() {
		return len(s.Notes)
	}
	return len(s.Files)
}

// Bank is a named sample collection in declaration order
type Bank struct {
	Name    string
	Samples Samples
}

// Manifest is a parsed sample manifest
type Manifest struct {
	Base  string
	Banks []Bank
}

// Lookup finds a bank by exact name
func (m *Manifest) Lookup(name string) (Bank, bool) {
	for _, b := range m.Banks {
		if b.Name == name {
			return b, true
		}
	}
	return Bank{}, false
}

// Names returns the bank names in declaration order
func (m *Manifest) Names() []string {
	names := make([]string, len(m.Banks))
	for i, b := range m.Banks {
		names[i] = b.Name
	}
	return names
}

// Filter returns a manifest restricted to the given bank names.
// An empty filter returns m unchanged.
func (m *Manifest) Filter(names []string) *Manifest {
	if len(names) == 0 {
		return m
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := &Manifest{Base: m.Base}
	for _, b := range m.Banks {
		if want[b.Name] {
			out.Banks = append(out.Banks, b)
		}
	}
	return out
}

// Parse decodes a sample manifest. Keys beginning with an underscore are
// never treated as banks; _base becomes Manifest.Base.
func Parse(data []byte) (*Manifest, error) {
	if err := validate(manifestSchema(), data); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	m := &Manifest{}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}

		switch {
		case key == BaseKey:
			var base string
			if err := dec.Decode(&base); err != nil {
				return nil, parseError("decode %s: %v", BaseKey, err)
			}
			m.Base = base
		case strings.HasPrefix(key, "_"):
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, parseError("skip %s: %v", key, err)
			}
		default:
			samples, err := readSamples(dec)
			if err != nil {
				return nil, parseError("bank %s: %v", key, err)
			}
			m.Banks = append(m.Banks, Bank{Name: key, Samples: samples})
		}
	}

	return m, nil
}

// AliasPair is one "CanonicalName": "alias" entry of the alias file
type AliasPair struct {
	Canonical string
	Alias     string
}

// ParseAliases decodes the full-name → short-name alias file in order
func ParseAliases(data []byte) ([]AliasPair, error) {
	if err := validate(aliasSchema(), data); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var pairs []AliasPair
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		var alias string
		if err := dec.Decode(&alias); err != nil {
			return nil, parseError("alias for %s: %v", key, err)
		}
		pairs = append(pairs, AliasPair{Canonical: key, Alias: alias})
	}
	return pairs, nil
}

// readSamples decodes one bank value: a string, an array of strings, or an
// object of key → string / key → [string, ...]
func readSamples(dec *json.Decoder) (Samples, error) {
	tok, err := dec.Token()
	if err != nil {
		return Samples{}, err
	}

	switch v := tok.(type) {
	case string:
		return Samples{Files: []string{v}}, nil
	case json.Delim:
		switch v {
		case '[':
			files := []string{}
			for dec.More() {
				var f string
				if err := dec.Decode(&f); err != nil {
					return Samples{}, err
				}
				files = append(files, f)
			}
			_, err := dec.Token()
			return Samples{Files: files}, err
		case '{':
			notes := []NoteFile{}
			for dec.More() {
				key, err := readKey(dec)
				if err != nil {
					return Samples{}, err
				}
				var raw json.RawMessage
				if err := dec.Decode(&raw); err != nil {
					return Samples{}, err
				}
				file, err := firstFile(raw)
				if err != nil {
					return Samples{}, fmt.Errorf("key %s: %w", key, err)
				}
				notes = append(notes, NoteFile{Key: key, File: file})
			}
			_, err := dec.Token()
			return Samples{Notes: notes}, err
		}
	}
	return Samples{}, fmt.Errorf("unexpected token %v", tok)
}

func firstFile(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", fmt.Errorf("empty file list")
	}
	return list[0], nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", parseError("read key: %v", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", parseError("expected object key, got %v", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err == io.EOF {
		return parseError("empty document")
	}
	if err != nil {
		return parseError("%v", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return parseError("expected %q, got %v", want, tok)
	}
	return nil
}

func parseError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrManifestParse, fmt.Sprintf(format, args...))
}
