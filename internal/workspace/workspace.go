package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StagingDirName is the hidden directory under the cache root that holds
// in-progress downloads. It lives next to the bank directories so finished
// files can be renamed into place without crossing filesystems.
const StagingDirName = ".staging"

// Workspace manages temporary files for a single bank load
type Workspace struct {
	Dir       string
	CreatedAt time.Time
}

// Create creates a new isolated workspace under root's staging directory
func Create(root string) (*Workspace, error) {
	staging := filepath.Join(root, StagingDirName)
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	dir, err := os.MkdirTemp(staging, "load-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Workspace{
		Dir:       dir,
		CreatedAt: time.Now(),
	}, nil
}

// Path helpers for workspace files
func (w *Workspace) Download(index int, ext string) string {
	return filepath.Join(w.Dir, fmt.Sprintf("download_%03d%s", index, ext))
}
func (w *Workspace) Converted(index int, ext string) string {
	return filepath.Join(w.Dir, fmt.Sprintf("converted_%03d%s", index, ext))
}

// Cleanup removes the workspace directory and all contents
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.Dir)
}

// Promote moves a finished file from the workspace to dst.
// The rename is atomic on the same filesystem, so dst never exists half-written.
func (w *Workspace) Promote(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("promote %s: %w", filepath.Base(dst), err)
	}
	return nil
}
