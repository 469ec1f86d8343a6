// Package logpath lays out per-process log files: one file per launch, under
// logs/<name>/<year>/<month>/, with a compact timestamped filename.
package logpath

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const timestampLayout = "060102_150405"

// Dir resolves log file placement under a root directory.
type Dir struct {
	Root string
}

// New returns a log layout rooted at root.
func New(root string) *Dir { return &Dir{Root: root} }

// NewLogPath creates the year/month directory for name and returns a fresh,
// collision-free log file path for a launch happening at now.
func (d *Dir) NewLogPath(name string, now time.Time) (string, error) {
	if err := d.migrateLegacy(); err != nil {
		return "", err
	}
	dir := filepath.Join(d.Root, name, now.Format("2006"), now.Format("01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := fmt.Sprintf("%s_%s.log", name, now.Format(timestampLayout))
	return uniquePath(filepath.Join(dir, base)), nil
}

// LatestLogPath returns the newest existing log file for name, or "" when
// the process has never produced one. The state-recorded path, when it still
// exists, wins over the mtime scan.
func (d *Dir) LatestLogPath(name, recorded string) string {
	if recorded != "" {
		if st, err := os.Stat(recorded); err == nil && !st.IsDir() {
			return recorded
		}
	}
	root := filepath.Join(d.Root, name)
	var newest string
	var newestMod time.Time
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() || !strings.HasSuffix(path, ".log") {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
		return nil
	})
	return newest
}

// migrateLegacy moves flat log files that predate the per-process layout
// into an old/ archive. Runs once; a marker file records completion.
func (d *Dir) migrateLegacy() error {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return err
	}
	marker := filepath.Join(d.Root, ".migrated")
	if _, err := os.Stat(marker); err == nil {
		return nil
	}
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return err
	}
	archive := filepath.Join(d.Root, "old")
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == filepath.Base(marker) {
			continue
		}
		if err := os.MkdirAll(archive, 0o755); err != nil {
			return err
		}
		dst := uniquePath(filepath.Join(archive, entry.Name()))
		if err := os.Rename(filepath.Join(d.Root, entry.Name()), dst); err != nil {
			return err
		}
	}
	return os.WriteFile(marker, nil, 0o644)
}

// uniquePath appends _1, _2, ... before the extension until the path does
// not exist yet.
func uniquePath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}
