package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/pithecene-io/bundler/iox"
	"github.com/pithecene-io/bundler/normalize"
)

// ErrUnsafeCleanDir is returned when Clean is asked to remove the working
// directory or the filesystem root.
var ErrUnsafeCleanDir = errors.New("refusing to clean directory")

// SweepDuplicates deletes accidental copies under each directory: names
// such as "granite 2.jpg", and ".jpeg" files that have a ".jpg" twin with
// the same stem, plus temp files left by an interrupted atomic write.
// Files listed in keep are never removed, so assets written
// by the current run stay on disk. Missing directories are skipped. Returns
// the number of files removed.
func SweepDuplicates(dirs, keep []string) (int, error) {
	kept := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		kept[absPath(k)] = struct{}{}
	}

	removed := 0
	for _, dir := range dirs {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		matches, err := doublestar.FilepathGlob(filepath.Join(dir, "**", "*"))
		if err != nil {
			return removed, fmt.Errorf("glob %s: %w", dir, err)
		}

		for _, m := range matches {
			if _, ok := kept[absPath(m)]; ok {
				continue
			}
			info, err := os.Lstat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}

			if normalize.IsDuplicateCopy(m) || hasJPGTwin(m) || isStaleTemp(m) {
				if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return removed, fmt.Errorf("remove duplicate %s: %w", m, err)
				}
				removed++
			}
		}
	}
	return removed, nil
}

func absPath(p string) string {
	p = filepath.FromSlash(p)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// isStaleTemp reports whether p is a temp file left behind by an
// interrupted atomic write.
func isStaleTemp(p string) bool {
	return iox.IsTempFile(filepath.Base(p))
}

// hasJPGTwin reports whether p is a .jpeg file with a .jpg sibling of the
// same stem.
func hasJPGTwin(p string) bool {
	ext := filepath.Ext(p)
	if !strings.EqualFold(ext, ".jpeg") {
		return false
	}
	_, err := os.Stat(strings.TrimSuffix(p, ext) + ".jpg")
	return err == nil
}

// Clean prepares output directories for a fresh run: duplicates are swept
// first, then each directory is removed entirely. Returns the number of
// duplicate copies removed.
func Clean(dirs []string) (int, error) {
	for _, dir := range dirs {
		if c := filepath.Clean(dir); dir == "" || c == "." || c == string(filepath.Separator) {
			return 0, fmt.Errorf("%w: %q", ErrUnsafeCleanDir, dir)
		}
	}

	removed, err := SweepDuplicates(dirs, nil)
	if err != nil {
		return removed, err
	}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("clean %s: %w", dir, err)
		}
	}
	return removed, nil
}
