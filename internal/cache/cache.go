package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"unicode"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dygy/strudel-samples/internal/audio"
)

// MetadataFile is the per-bank sidecar holding pitch metadata.
// Its extension is not native, so it never makes a bank look cached.
const MetadataFile = "bank.json"

// SampleCache manages the on-disk bank directories
type SampleCache struct {
	dir string
}

// DefaultRoot returns the platform-appropriate user data location for samples
func DefaultRoot() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "strudel", "samples"), nil
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "strudel", "samples"), nil
		}
		return filepath.Join(home, "AppData", "Local", "strudel", "samples"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "strudel", "samples"), nil
		}
		return filepath.Join(home, ".local", "share", "strudel", "samples"), nil
	}
}

// New opens (and creates) a sample cache rooted at dir. A leading ~ is expanded.
func New(dir string) (*SampleCache, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultRoot(); err != nil {
			return nil, err
		}
	}

	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("expand cache dir: %w", err)
	}

	if err := os.MkdirAll(expanded, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return &SampleCache{dir: expanded}, nil
}

// Root returns the cache root directory
func (c *SampleCache) Root() string {
	return c.dir
}

// ValidBankName rejects names that would escape the cache root or collide
// with hidden bookkeeping directories.
func ValidBankName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// BankDir returns the directory for a bank
func (c *SampleCache) BankDir(bank string) string {
	return filepath.Join(c.dir, bank)
}

// EnsureBankDir creates the bank directory
func (c *SampleCache) EnsureBankDir(bank string) (string, error) {
	if !ValidBankName(bank) {
		return "", fmt.Errorf("invalid bank name %q", bank)
	}
	dir := c.BankDir(bank)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create bank dir: %w", err)
	}
	return dir, nil
}

// IsCached reports whether the bank directory exists and holds at least one
// native-format file
func (c *SampleCache) IsCached(bank string) bool {
	if !ValidBankName(bank) {
		return false
	}
	files, err := c.Files(bank)
	return err == nil && len(files) > 0
}

// Files returns the native-format sample files of a bank, sorted by name.
// Sorting matches the engine's own folder ordering, so position == sample index.
func (c *SampleCache) Files(bank string) ([]string, error) {
	entries, err := os.ReadDir(c.BankDir(bank))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bank dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if audio.IsNative(name) {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Banks lists every cached bank (directories with at least one native file)
func (c *SampleCache) Banks() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var banks []string
	for _, entry := range entries {
		if !entry.IsDir() || !ValidBankName(entry.Name()) {
			continue
		}
		if c.IsCached(entry.Name()) {
			banks = append(banks, entry.Name())
		}
	}
	return banks, nil
}

// Size returns the total size of cached samples in bytes and the bank count
func (c *SampleCache) Size() (int64, int, error) {
	var totalSize int64
	var count int

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	for _, entry := range entries {
		if !entry.IsDir() || !ValidBankName(entry.Name()) {
			continue
		}
		count++

		subdir := filepath.Join(c.dir, entry.Name())
		files, _ := os.ReadDir(subdir)
		for _, f := range files {
			info, err := f.Info()
			if err == nil {
				totalSize += info.Size()
			}
		}
	}

	return totalSize, count, nil
}

// Remove deletes a single bank directory
func (c *SampleCache) Remove(bank string) error {
	if !ValidBankName(bank) {
		return fmt.Errorf("invalid bank name %q", bank)
	}
	return os.RemoveAll(c.BankDir(bank))
}

// Clear removes all cached banks
func (c *SampleCache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// WriteMetadata stores a JSON sidecar for the bank
func (c *SampleCache) WriteMetadata(bank string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	path := filepath.Join(c.BankDir(bank), MetadataFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return os.Rename(tmp, path)
}

// ReadMetadata loads the JSON sidecar for the bank. ok is false when absent.
func (c *SampleCache) ReadMetadata(bank string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(c.BankDir(bank), MetadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse metadata: %w", err)
	}
	return true, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// transform.Chain keeps state, so each call builds its own
func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// SanitizeStem turns an arbitrary remote filename into a safe stem:
// extension and directories dropped, accents folded, everything else
// outside [A-Za-z0-9_-] collapsed to a single underscore.
func SanitizeStem(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, filepath.Ext(name))

	if folded, _, err := transform.String(stripMarks(), name); err == nil {
		name = folded
	}

	name = strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_")
	if name == "" {
		return "sample"
	}
	return name
}

// SampleFileName builds the positional name NNN_<stem><ext>
func SampleFileName(index int, original, ext string) string {
	return fmt.Sprintf("%03d_%s%s", index, SanitizeStem(original), ext)
}

// SoundfontFileName builds NNN_noteMMM<ext>, the layout soundfont banks are
// re-registered from after a restart
func SoundfontFileName(index, midi int, ext string) string {
	return fmt.Sprintf("%03d_note%03d%s", index, midi, ext)
}
