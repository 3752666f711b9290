package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestCache(t *testing.T) *SampleCache {
	t.Helper()
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("RIFF\x00\x00\x00\x00WAVE"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIsCached(t *testing.T) {
	c := newTestCache(t)

	if c.IsCached("bd") {
		t.Fatal("missing bank should not be cached")
	}

	// Directory with only a convertible file is not cached
	writeFile(t, filepath.Join(c.BankDir("bd"), "kick.mp3"))
	if c.IsCached("bd") {
		t.Error("bank with only mp3 should not be cached")
	}

	// Metadata sidecar alone does not count
	writeFile(t, filepath.Join(c.BankDir("bd"), MetadataFile))
	if c.IsCached("bd") {
		t.Error("bank with only metadata should not be cached")
	}

	writeFile(t, filepath.Join(c.BankDir("bd"), "000_kick.wav"))
	if !c.IsCached("bd") {
		t.Error("bank with a wav file should be cached")
	}
}

func TestBanksSkipsHiddenDirs(t *testing.T) {
	c := newTestCache(t)
	writeFile(t, filepath.Join(c.BankDir("sd"), "000_snare.wav"))
	writeFile(t, filepath.Join(c.Root(), ".staging", "load-1", "download_000.wav"))
	if err := os.MkdirAll(c.BankDir("empty"), 0755); err != nil {
		t.Fatal(err)
	}

	banks, err := c.Banks()
	if err != nil {
		t.Fatalf("Banks() error = %v", err)
	}
	if len(banks) != 1 || banks[0] != "sd" {
		t.Errorf("Banks() = %v, want [sd]", banks)
	}
}

func TestFilesSorted(t *testing.T) {
	c := newTestCache(t)
	for _, name := range []string{"002_c.wav", "000_a.wav", "001_b.aiff"} {
		writeFile(t, filepath.Join(c.BankDir("x"), name))
	}

	files, err := c.Files("x")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"000_a.wav", "001_b.aiff", "002_c.wav"}
	if len(files) != len(want) {
		t.Fatalf("Files() = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("Files()[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestSanitizeStem(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"kick.wav", "kick"},
		{"bd/BT0A0A7.wav", "BT0A0A7"},
		{"https://x.org/samples/Snare Drum 01.mp3?raw=1", "Snare_Drum_01"},
		{"café-crème.ogg", "cafe-creme"},
		{"...", "sample"},
		{"", "sample"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeStem(tt.in); got != tt.want {
				t.Errorf("SanitizeStem(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFileNames(t *testing.T) {
	if got := SampleFileName(3, "a0.mp3", ".wav"); got != "003_a0.wav" {
		t.Errorf("SampleFileName() = %s", got)
	}
	if got := SoundfontFileName(12, 45, ".wav"); got != "012_note045.wav" {
		t.Errorf("SoundfontFileName() = %s", got)
	}
}

func TestValidBankName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"RolandTR909_bd", true},
		{"piano", true},
		{"_base", false},
		{".staging", false},
		{"..", false},
		{"a/b", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidBankName(tt.name); got != tt.want {
			t.Errorf("ValidBankName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	c := newTestCache(t)
	if _, err := c.EnsureBankDir("piano"); err != nil {
		t.Fatal(err)
	}

	type meta struct {
		Notes []int `json:"notes"`
	}
	if err := c.WriteMetadata("piano", meta{Notes: []int{21, 33}}); err != nil {
		t.Fatalf("WriteMetadata() error = %v", err)
	}

	var got meta
	ok, err := c.ReadMetadata("piano", &got)
	if err != nil || !ok {
		t.Fatalf("ReadMetadata() = %v, %v", ok, err)
	}
	if len(got.Notes) != 2 || got.Notes[1] != 33 {
		t.Errorf("metadata = %+v", got)
	}

	ok, err = c.ReadMetadata("missing", &got)
	if ok || err != nil {
		t.Errorf("ReadMetadata(missing) = %v, %v; want false, nil", ok, err)
	}
}
