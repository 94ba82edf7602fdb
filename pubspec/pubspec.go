// Package pubspec declares asset directories in a Flutter pubspec.yaml.
//
// The file is edited as text, not parsed: Patch finds the assets list,
// compares it with the directories a run produced, and inserts the missing
// entries directly below the "assets:" line. Every other byte of the file
// is preserved.
package pubspec

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/pithecene-io/bundler/iox"
)

// DefaultPath is the build-config file patched by a bundle run.
const DefaultPath = "pubspec.yaml"

// ErrNoAssetsSection is returned when the file has no "assets:" line.
var ErrNoAssetsSection = errors.New("no assets: section found")

// Result reports what a patch did.
type Result struct {
	// Added lists the directories inserted, sorted.
	Added []string `json:"added" yaml:"added"`
	// AlreadyDeclared lists requested directories that were already present.
	AlreadyDeclared []string `json:"already_declared" yaml:"already_declared"`
}

// Changed reports whether the patch inserted anything.
func (r Result) Changed() bool { return len(r.Added) > 0 }

type line struct {
	text string // without line terminator
	eol  string
}

func splitLines(content []byte) []line {
	var out []line
	rest := string(content)
	for rest != "" {
		i := strings.IndexByte(rest, '\n')
		if i < 0 {
			out = append(out, line{text: rest})
			break
		}
		text, eol := rest[:i], "\n"
		if strings.HasSuffix(text, "\r") {
			text, eol = text[:len(text)-1], "\r\n"
		}
		out = append(out, line{text: text, eol: eol})
		rest = rest[i+1:]
	}
	return out
}

// stripComment removes a trailing "# ..." comment and surrounding space.
func stripComment(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		return ""
	}
	if i := strings.Index(s, " #"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

func leadingSpace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

// Patch returns content with every directory in dirs declared under the
// first assets: section. Directories already listed are left alone, so
// patching twice is a no-op. When nothing is missing the original content
// is returned unchanged.
func Patch(content []byte, dirs []string) (Result, []byte, error) {
	lines := splitLines(content)

	assetsIdx := -1
	for i, l := range lines {
		if stripComment(l.text) == "assets:" {
			assetsIdx = i
			break
		}
	}
	if assetsIdx < 0 {
		return Result{}, content, ErrNoAssetsSection
	}

	// Collect declared entries up to the first line that is not a list
	// item, a comment or blank.
	existing := make(map[string]bool)
	entryIndent := ""
	for _, l := range lines[assetsIdx+1:] {
		s := stripComment(l.text)
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, "-") {
			break
		}
		if entryIndent == "" {
			entryIndent = leadingSpace(l.text)
		}
		existing[strings.Trim(strings.TrimSpace(s[1:]), `"'`)] = true
	}
	if entryIndent == "" {
		entryIndent = leadingSpace(lines[assetsIdx].text) + "  "
	}

	var res Result
	seen := make(map[string]bool)
	for _, d := range dirs {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		if existing[d] {
			res.AlreadyDeclared = append(res.AlreadyDeclared, d)
		} else {
			res.Added = append(res.Added, d)
		}
	}
	slices.Sort(res.Added)
	slices.Sort(res.AlreadyDeclared)

	if !res.Changed() {
		return res, content, nil
	}

	eol := lines[assetsIdx].eol
	if eol == "" {
		// assets: is the last line and has no terminator.
		eol = "\n"
		lines[assetsIdx].eol = eol
	}

	var buf bytes.Buffer
	buf.Grow(len(content) + len(res.Added)*32)
	for i, l := range lines {
		buf.WriteString(l.text)
		buf.WriteString(l.eol)
		if i == assetsIdx {
			for _, d := range res.Added {
				buf.WriteString(entryIndent + "- " + d + eol)
			}
		}
	}
	return res, buf.Bytes(), nil
}

// PatchFile applies Patch to the file at path, rewriting it only when
// something was added.
func PatchFile(path string, dirs []string) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", path, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}

	res, patched, err := Patch(content, dirs)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	if !res.Changed() {
		return res, nil
	}

	if err := iox.WriteFileAtomic(path, patched, info.Mode().Perm()); err != nil {
		return res, err
	}
	return res, nil
}
