// Package iox provides I/O helpers for resource cleanup and whole-file
// replacement.
package iox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(adapter))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

const tempSuffix = ".tmp"

// tempName matches the temp files WriteFileAtomic creates: ".<name>.<digits>.tmp".
var tempName = regexp.MustCompile(`^\..+\.[0-9]+\.tmp$`)

// IsTempFile reports whether name (a base name) is a temp file left by an
// interrupted WriteFileAtomic.
func IsTempFile(name string) bool {
	return tempName.MatchString(name)
}

// WriteFileAtomic replaces path with data. The bytes are written to a
// temporary file in the same directory and renamed over path, so readers
// see either the old content or the new content, never a partial write.
// Parent directories are created as needed.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		DiscardClose(tmp)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		DiscardClose(tmp)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
