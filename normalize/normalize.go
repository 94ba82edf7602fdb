// Package normalize derives local paths and file names from remote asset
// paths. Every function here is pure: the same descriptor and root always
// produce the same local path, so re-runs overwrite files instead of
// accumulating copies.
package normalize

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/pithecene-io/bundler/types"
)

// Extension sets used for classification. All entries are lower case.
var (
	// FileExtensions marks a listing entry as a file rather than a directory.
	FileExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".pdf"}
	// ImageExtensions are the extensions routed through the image optimizer.
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}
	// PDFExtensions are the document extensions.
	PDFExtensions = []string{".pdf"}
)

// ErrEscapesOutput is returned by LocalPath when a remote path would resolve
// outside the output directory.
var ErrEscapesOutput = errors.New("remote path escapes output directory")

// duplicateCopy matches names produced by desktop file managers when a file
// is saved over an existing one: "photo 2.jpg", "photo (1).jpg".
var duplicateCopy = regexp.MustCompile(`(?: [2-4]| \(\d+\))\.[^./]+$`)

// StripQuery removes a "?..." suffix from a remote path or name.
func StripQuery(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}

// HasExtension reports whether name (query stripped, case-insensitive)
// ends with one of exts.
func HasExtension(name string, exts []string) bool {
	ext := strings.ToLower(path.Ext(StripQuery(name)))
	if ext == "" {
		return false
	}
	return slices.Contains(exts, ext)
}

// IsImage reports whether name is an optimizable image.
func IsImage(name string) bool { return HasExtension(name, ImageExtensions) }

// IsPDF reports whether name is a PDF document.
func IsPDF(name string) bool { return HasExtension(name, PDFExtensions) }

// FileName returns the descriptor's name with query parameters removed,
// falling back to the basename of its remote path.
func FileName(d types.FileDescriptor) string {
	name := d.Name
	if name == "" {
		name = path.Base(StripQuery(d.RemotePath))
	}
	return StripQuery(name)
}

// LocalPath maps a remote path to its local path under outputBase.
//
// When the query-stripped remote path starts with rootPath, the remainder
// (leading slashes trimmed) is kept so subdirectories survive; otherwise
// only the basename is used. Underscores become hyphens. The result always
// uses forward slashes and stays strictly inside outputBase; a remote path
// whose ".." segments climb out of it returns ErrEscapesOutput.
func LocalPath(d types.FileDescriptor, rootPath, outputBase string) (string, error) {
	clean := StripQuery(d.RemotePath)

	var rel string
	if strings.HasPrefix(clean, rootPath) {
		rel = strings.TrimLeft(clean[len(rootPath):], "/")
	} else {
		rel = path.Base(clean)
	}
	rel = path.Clean(strings.ReplaceAll(rel, "_", "-"))

	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q", ErrEscapesOutput, d.RemotePath)
	}
	return path.Join(outputBase, rel), nil
}

// IsDuplicateCopy reports whether name looks like an accidental copy such
// as "granite 2.jpg" or "granite (1).jpg".
func IsDuplicateCopy(name string) bool {
	return duplicateCopy.MatchString(path.Base(name))
}

// AssetDir returns the directory of localPath with a trailing slash, the
// form used in build-config asset lists. Paths outside assets/ return "".
func AssetDir(localPath string) string {
	dir := path.Dir(strings.ReplaceAll(localPath, `\`, "/"))
	if !strings.HasPrefix(dir, "assets/") {
		return ""
	}
	return dir + "/"
}
